package dynamodb

import (
	"context"

	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
)

// MockClient is a hand-rolled Client for tests. It records requests and
// returns empty successes unless an override is installed.
type MockClient struct {
	TransactWriteItemsCalled   uint
	TransactWriteItemsRequests []*ddb.TransactWriteItemsInput
	TransactWriteItemsOverride func(params *ddb.TransactWriteItemsInput) (*ddb.TransactWriteItemsOutput, error)

	QueryCalled   uint
	QueryRequests []*ddb.QueryInput
	QueryOverride func(params *ddb.QueryInput) (*ddb.QueryOutput, error)
}

func (m *MockClient) TransactWriteItems(ctx context.Context, params *ddb.TransactWriteItemsInput, optFns ...func(*ddb.Options)) (*ddb.TransactWriteItemsOutput, error) {
	m.TransactWriteItemsCalled++
	m.TransactWriteItemsRequests = append(m.TransactWriteItemsRequests, params)
	if m.TransactWriteItemsOverride != nil {
		return m.TransactWriteItemsOverride(params)
	}
	return &ddb.TransactWriteItemsOutput{}, nil
}

func (m *MockClient) Query(ctx context.Context, params *ddb.QueryInput, optFns ...func(*ddb.Options)) (*ddb.QueryOutput, error) {
	m.QueryCalled++
	m.QueryRequests = append(m.QueryRequests, params)
	if m.QueryOverride != nil {
		return m.QueryOverride(params)
	}
	return &ddb.QueryOutput{}, nil
}

var _ Client = &MockClient{}
