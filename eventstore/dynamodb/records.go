package dynamodb

import (
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// Attribute names shared by the journal and snapshot tables.
const (
	attrPkey       = "pkey"
	attrSkey       = "skey"
	attrAid        = "aid"
	attrSeqNr      = "seq_nr"
	attrPayload    = "payload"
	attrOccurredAt = "occurred_at"
	attrVersion    = "version"
	attrTtl        = "ttl"
)

// Cancellation reason code DynamoDB reports when a condition expression
// rejected one item of a transaction.
const conditionalCheckFailed = "ConditionalCheckFailed"

// journalRecord is the persisted form of one journal row. Rows are
// append-only; this engine never updates or deletes them.
type journalRecord struct {
	Pkey       string `dynamodbav:"pkey"`
	Skey       string `dynamodbav:"skey"`
	Aid        string `dynamodbav:"aid"`
	SeqNr      uint64 `dynamodbav:"seq_nr"`
	Payload    []byte `dynamodbav:"payload"`
	OccurredAt int64  `dynamodbav:"occurred_at"` // epoch milliseconds
}

// snapshotRecord is the persisted form of one snapshot row.
//
// The head row keeps SeqNr at 0 forever: it is the secondary-index sort
// key the latest-snapshot point query relies on, so the aggregate's real
// sequence number travels inside the payload. Historical rows carry the
// event's sequence number and, when configured, a TTL stamp consumed by
// an external pruning job.
type snapshotRecord struct {
	Pkey    string `dynamodbav:"pkey"`
	Skey    string `dynamodbav:"skey"`
	Aid     string `dynamodbav:"aid"`
	SeqNr   uint64 `dynamodbav:"seq_nr"`
	Payload []byte `dynamodbav:"payload"`
	Version uint64 `dynamodbav:"version"`
	Ttl     int64  `dynamodbav:"ttl,omitempty"`
}

func (r journalRecord) item() (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(r)
}

func (r snapshotRecord) item() (map[string]types.AttributeValue, error) {
	return attributevalue.MarshalMap(r)
}
