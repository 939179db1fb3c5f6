// Package dynamodb persists aggregates in DynamoDB: an append-only
// journal of events plus a compacted head snapshot per aggregate, both
// mutated together in single atomic transactions.
package dynamodb

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/rs/zerolog/log"

	"github.com/dynavault/dynavault/eventstore"
)

// Client is the slice of the DynamoDB API the store consumes: one atomic
// multi-item transaction per logical write and one query per logical
// read. *dynamodb.Client from the AWS SDK satisfies it; tests inject a
// mock.
type Client interface {
	TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error)
	Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error)
}

// EventStore reads and writes event history and snapshots for aggregates
// of type A emitting events of type E.
//
// All concurrency control is delegated to DynamoDB's conditioned writes:
// the store holds no mutable state besides its configuration, performs
// no retries, and is safe for concurrent use.
type EventStore[A eventstore.Aggregate, E eventstore.Event] struct {
	client               Client
	journalTableName     string
	journalAidIndexName  string
	snapshotTableName    string
	snapshotAidIndexName string
	shardCount           uint64
	keepSnapshotCount    uint32
	deleteTtl            time.Duration
	keyResolver          eventstore.KeyResolver
	eventSerializer      eventstore.EventSerializer[E]
	snapshotSerializer   eventstore.SnapshotSerializer[A]
	getUTC               func() time.Time // for mocking
}

// For testing
func (e *EventStore[A, E]) SetUTCGetter(getter func() time.Time) {
	e.getUTC = getter
}

// NewEventStore returns a store over the given tables and their
// aggregate-id secondary indexes. The key resolver defaults to
// eventstore.DefaultKeyResolver; snapshot retention and TTL stamping are
// off until enabled via WithKeepSnapshotCount / WithDeleteTtl.
func NewEventStore[A eventstore.Aggregate, E eventstore.Event](
	client Client,
	journalTableName string,
	journalAidIndexName string,
	snapshotTableName string,
	snapshotAidIndexName string,
	shardCount uint64,
	eventSerializer eventstore.EventSerializer[E],
	snapshotSerializer eventstore.SnapshotSerializer[A],
) (*EventStore[A, E], error) {
	if client == nil {
		return nil, eventstore.ValidationError{Message: "client must not be nil"}
	}
	if journalTableName == "" || journalAidIndexName == "" || snapshotTableName == "" || snapshotAidIndexName == "" {
		return nil, eventstore.ValidationError{Message: "table and index names must not be empty"}
	}
	if shardCount == 0 {
		return nil, eventstore.ValidationError{Message: "shard count must be positive"}
	}
	if eventSerializer == nil || snapshotSerializer == nil {
		return nil, eventstore.ValidationError{Message: "serializers must not be nil"}
	}
	return &EventStore[A, E]{
		client:               client,
		journalTableName:     journalTableName,
		journalAidIndexName:  journalAidIndexName,
		snapshotTableName:    snapshotTableName,
		snapshotAidIndexName: snapshotAidIndexName,
		shardCount:           shardCount,
		keyResolver:          eventstore.DefaultKeyResolver{},
		eventSerializer:      eventSerializer,
		snapshotSerializer:   snapshotSerializer,
		getUTC: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// WithDeleteTtl returns a derived store that stamps historical snapshot
// rows with a TTL of the given duration. The receiver is unmodified.
func (e *EventStore[A, E]) WithDeleteTtl(ttl time.Duration) *EventStore[A, E] {
	derived := *e
	derived.deleteTtl = ttl
	return &derived
}

// WithKeepSnapshotCount returns a derived store that also writes a
// historical snapshot row on every non-creation persist, to be retained
// up to the given count by an external pruning job. The receiver is
// unmodified.
func (e *EventStore[A, E]) WithKeepSnapshotCount(count uint32) *EventStore[A, E] {
	derived := *e
	derived.keepSnapshotCount = count
	return &derived
}

// WithKeyResolver returns a derived store using the given resolver. The
// receiver is unmodified.
func (e *EventStore[A, E]) WithKeyResolver(resolver eventstore.KeyResolver) *EventStore[A, E] {
	derived := *e
	derived.keyResolver = resolver
	return &derived
}

// WithEventSerializer returns a derived store using the given event
// serializer. The receiver is unmodified.
func (e *EventStore[A, E]) WithEventSerializer(serializer eventstore.EventSerializer[E]) *EventStore[A, E] {
	derived := *e
	derived.eventSerializer = serializer
	return &derived
}

// WithSnapshotSerializer returns a derived store using the given
// snapshot serializer. The receiver is unmodified.
func (e *EventStore[A, E]) WithSnapshotSerializer(serializer eventstore.SnapshotSerializer[A]) *EventStore[A, E] {
	derived := *e
	derived.snapshotSerializer = serializer
	return &derived
}

// GetEventsByIdSinceSeqNr returns all of the aggregate's events with
// sequence number >= seqNr, ascending. An aggregate with no matching
// events yields an empty slice, not an error.
func (e *EventStore[A, E]) GetEventsByIdSinceSeqNr(ctx context.Context, id eventstore.AggregateId, seqNr uint64) ([]E, error) {
	events := make([]E, 0)
	var exclusiveStartKey map[string]types.AttributeValue
	for {
		out, err := e.client.Query(ctx, &ddb.QueryInput{
			TableName:              aws.String(e.journalTableName),
			IndexName:              aws.String(e.journalAidIndexName),
			KeyConditionExpression: aws.String("#aid = :aid AND #seq_nr >= :seq_nr"),
			ExpressionAttributeNames: map[string]string{
				"#aid":    attrAid,
				"#seq_nr": attrSeqNr,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":aid":    &types.AttributeValueMemberS{Value: id.String()},
				":seq_nr": &types.AttributeValueMemberN{Value: strconv.FormatUint(seqNr, 10)},
			},
			ScanIndexForward:  aws.Bool(true),
			ExclusiveStartKey: exclusiveStartKey,
		})
		if err != nil {
			return nil, eventstore.StoreUnavailable{Underlying: err}
		}
		var records []journalRecord
		if err := attributevalue.UnmarshalListOfMaps(out.Items, &records); err != nil {
			return nil, eventstore.DeserializationError{TypeTag: id.TypeName(), Underlying: err}
		}
		for _, record := range records {
			event, err := e.eventSerializer.Deserialize(record.Payload, id.TypeName())
			if err != nil {
				return nil, err
			}
			events = append(events, event)
		}
		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		exclusiveStartKey = out.LastEvaluatedKey
	}
	return events, nil
}

// GetLatestSnapshotById returns the aggregate's head snapshot together
// with its authoritative version, or nil if the aggregate has never been
// created.
func (e *EventStore[A, E]) GetLatestSnapshotById(ctx context.Context, id eventstore.AggregateId) (*eventstore.LatestSnapshot[A], error) {
	out, err := e.client.Query(ctx, &ddb.QueryInput{
		TableName:              aws.String(e.snapshotTableName),
		IndexName:              aws.String(e.snapshotAidIndexName),
		KeyConditionExpression: aws.String("#aid = :aid AND #seq_nr = :seq_nr"),
		ExpressionAttributeNames: map[string]string{
			"#aid":    attrAid,
			"#seq_nr": attrSeqNr,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":    &types.AttributeValueMemberS{Value: id.String()},
			":seq_nr": &types.AttributeValueMemberN{Value: "0"},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, eventstore.StoreUnavailable{Underlying: err}
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var record snapshotRecord
	if err := attributevalue.UnmarshalMap(out.Items[0], &record); err != nil {
		return nil, eventstore.DeserializationError{TypeTag: id.TypeName(), Underlying: err}
	}
	aggregate, err := e.snapshotSerializer.Deserialize(record.Payload, id.TypeName())
	if err != nil {
		return nil, err
	}
	return &eventstore.LatestSnapshot[A]{Aggregate: aggregate, Version: record.Version}, nil
}

// PersistEvent appends a non-creation event and bumps the head
// snapshot's version in one transaction, leaving the snapshot payload
// untouched. expectedVersion must be the version the caller last read;
// a stale value aborts the whole transaction with ConcurrencyConflict.
func (e *EventStore[A, E]) PersistEvent(ctx context.Context, event E, expectedVersion uint64) error {
	id := event.AggregateId()
	if event.IsCreated() {
		return eventstore.ValidationError{Message: "a creation event must be persisted together with its snapshot"}
	}
	if expectedVersion == 0 {
		return eventstore.ValidationError{Message: "expected version must be at least 1"}
	}
	journalPut, err := e.journalPut(event)
	if err != nil {
		return err
	}
	log.Debug().Str("aggregate_id", id.String()).Uint64("seq_nr", event.SeqNr()).Msg("Appending event")
	items := []types.TransactWriteItem{journalPut, e.snapshotUpdate(id, expectedVersion, nil)}
	return e.transactWrite(ctx, items, func(idx int) error {
		if idx == 0 {
			return eventstore.AlreadyExists{ID: id, SeqNr: event.SeqNr()}
		}
		return eventstore.ConcurrencyConflict{ID: id, ExpectedVersion: expectedVersion}
	})
}

// PersistEventAndSnapshot appends an event and writes the matching
// snapshot mutation in one transaction. A creation event inserts the
// first journal row and the head snapshot row, both conditioned on
// non-existence; any other event appends its journal row and replaces
// the head snapshot's payload, conditioned on the aggregate's version.
func (e *EventStore[A, E]) PersistEventAndSnapshot(ctx context.Context, event E, aggregate A) error {
	id := event.AggregateId()
	if id.String() != aggregate.Id().String() {
		return eventstore.ValidationError{Message: "event and aggregate ids do not match"}
	}
	if event.IsCreated() {
		if event.SeqNr() != 1 {
			return eventstore.ValidationError{Message: "a creation event must have sequence number 1"}
		}
		return e.persistCreation(ctx, event, aggregate)
	}
	return e.persistUpdate(ctx, event, aggregate)
}

func (e *EventStore[A, E]) persistCreation(ctx context.Context, event E, aggregate A) error {
	id := event.AggregateId()
	journalPut, err := e.journalPut(event)
	if err != nil {
		return err
	}
	payload, err := e.snapshotSerializer.Serialize(aggregate)
	if err != nil {
		return eventstore.ValidationError{Message: "could not serialize aggregate: " + err.Error()}
	}
	headItem, err := snapshotRecord{
		Pkey:    e.keyResolver.ResolvePartitionKey(id, e.shardCount),
		Skey:    e.keyResolver.ResolveSortKey(id, 0),
		Aid:     id.String(),
		SeqNr:   0,
		Payload: payload,
		Version: 1,
	}.item()
	if err != nil {
		return eventstore.ValidationError{Message: "could not build snapshot item: " + err.Error()}
	}
	snapshotPut := types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(e.snapshotTableName),
			Item:                headItem,
			ConditionExpression: aws.String("attribute_not_exists(pkey) AND attribute_not_exists(skey)"),
		},
	}
	log.Debug().Str("aggregate_id", id.String()).Msg("Creating aggregate")
	return e.transactWrite(ctx, []types.TransactWriteItem{journalPut, snapshotPut}, func(idx int) error {
		if idx == 0 {
			return eventstore.AlreadyExists{ID: id, SeqNr: event.SeqNr()}
		}
		return eventstore.AlreadyExists{ID: id, SeqNr: 0}
	})
}

func (e *EventStore[A, E]) persistUpdate(ctx context.Context, event E, aggregate A) error {
	id := event.AggregateId()
	journalPut, err := e.journalPut(event)
	if err != nil {
		return err
	}
	payload, err := e.snapshotSerializer.Serialize(aggregate)
	if err != nil {
		return eventstore.ValidationError{Message: "could not serialize aggregate: " + err.Error()}
	}
	items := []types.TransactWriteItem{journalPut, e.snapshotUpdate(id, aggregate.Version(), payload)}
	if e.keepSnapshotCount > 0 {
		record := snapshotRecord{
			Pkey:    e.keyResolver.ResolvePartitionKey(id, e.shardCount),
			Skey:    e.keyResolver.ResolveSortKey(id, event.SeqNr()),
			Aid:     id.String(),
			SeqNr:   event.SeqNr(),
			Payload: payload,
			Version: aggregate.Version() + 1,
		}
		if e.deleteTtl > 0 {
			record.Ttl = e.getUTC().Add(e.deleteTtl).Unix()
		}
		historicalItem, err := record.item()
		if err != nil {
			return eventstore.ValidationError{Message: "could not build snapshot item: " + err.Error()}
		}
		items = append(items, types.TransactWriteItem{
			Put: &types.Put{
				TableName:           aws.String(e.snapshotTableName),
				Item:                historicalItem,
				ConditionExpression: aws.String("attribute_not_exists(pkey) AND attribute_not_exists(skey)"),
			},
		})
	}
	log.Debug().Str("aggregate_id", id.String()).Uint64("seq_nr", event.SeqNr()).Msg("Appending event and snapshot")
	return e.transactWrite(ctx, items, func(idx int) error {
		if idx == 1 {
			return eventstore.ConcurrencyConflict{ID: id, ExpectedVersion: aggregate.Version()}
		}
		return eventstore.AlreadyExists{ID: id, SeqNr: event.SeqNr()}
	})
}

// journalPut builds the conditioned journal insert for an event.
func (e *EventStore[A, E]) journalPut(event E) (types.TransactWriteItem, error) {
	id := event.AggregateId()
	payload, err := e.eventSerializer.Serialize(event)
	if err != nil {
		return types.TransactWriteItem{}, eventstore.ValidationError{Message: "could not serialize event: " + err.Error()}
	}
	item, err := journalRecord{
		Pkey:       e.keyResolver.ResolvePartitionKey(id, e.shardCount),
		Skey:       e.keyResolver.ResolveSortKey(id, event.SeqNr()),
		Aid:        id.String(),
		SeqNr:      event.SeqNr(),
		Payload:    payload,
		OccurredAt: event.OccurredAt().UnixMilli(),
	}.item()
	if err != nil {
		return types.TransactWriteItem{}, eventstore.ValidationError{Message: "could not build journal item: " + err.Error()}
	}
	return types.TransactWriteItem{
		Put: &types.Put{
			TableName:           aws.String(e.journalTableName),
			Item:                item,
			ConditionExpression: aws.String("attribute_not_exists(pkey) AND attribute_not_exists(skey)"),
		},
	}, nil
}

// snapshotUpdate builds the conditioned head-snapshot mutation: always a
// version bump, plus a payload replacement when one is supplied. The
// head row's sort dimension stays at sequence number 0.
func (e *EventStore[A, E]) snapshotUpdate(id eventstore.AggregateId, expectedVersion uint64, payload []byte) types.TransactWriteItem {
	names := map[string]string{"#version": attrVersion}
	values := map[string]types.AttributeValue{
		":before_version": &types.AttributeValueMemberN{Value: strconv.FormatUint(expectedVersion, 10)},
		":after_version":  &types.AttributeValueMemberN{Value: strconv.FormatUint(expectedVersion+1, 10)},
	}
	updateExpression := "SET #version = :after_version"
	if payload != nil {
		names["#payload"] = attrPayload
		values[":payload"] = &types.AttributeValueMemberB{Value: payload}
		updateExpression = "SET #version = :after_version, #payload = :payload"
	}
	return types.TransactWriteItem{
		Update: &types.Update{
			TableName: aws.String(e.snapshotTableName),
			Key: map[string]types.AttributeValue{
				attrPkey: &types.AttributeValueMemberS{Value: e.keyResolver.ResolvePartitionKey(id, e.shardCount)},
				attrSkey: &types.AttributeValueMemberS{Value: e.keyResolver.ResolveSortKey(id, 0)},
			},
			UpdateExpression:          aws.String(updateExpression),
			ConditionExpression:       aws.String("#version = :before_version"),
			ExpressionAttributeNames:  names,
			ExpressionAttributeValues: values,
		},
	}
}

// transactWrite runs one atomic transaction and maps a conditional-check
// cancellation back to the typed error for the item that failed. Any
// other failure is a StoreUnavailable; nothing is ever partially
// applied.
func (e *EventStore[A, E]) transactWrite(ctx context.Context, items []types.TransactWriteItem, onConditionFailed func(idx int) error) error {
	_, err := e.client.TransactWriteItems(ctx, &ddb.TransactWriteItemsInput{TransactItems: items})
	if err == nil {
		return nil
	}
	var canceled *types.TransactionCanceledException
	if errors.As(err, &canceled) {
		for idx, reason := range canceled.CancellationReasons {
			if reason.Code != nil && *reason.Code == conditionalCheckFailed {
				return onConditionFailed(idx)
			}
		}
	}
	return eventstore.StoreUnavailable{Underlying: err}
}
