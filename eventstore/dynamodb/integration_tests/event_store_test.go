// +build integration

package integration_tests

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	ddb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dynavault/dynavault/eventstore"
	"github.com/dynavault/dynavault/eventstore/dynamodb"
	"github.com/dynavault/dynavault/example/useraccount"
)

var ctx = context.Background()

func buildStore(t *testing.T) *dynamodb.EventStore[*useraccount.UserAccount, useraccount.Event] {
	t.Helper()
	store, err := dynamodb.NewEventStore[*useraccount.UserAccount, useraccount.Event](
		dynamoClient,
		storeConf.JournalTableName,
		storeConf.JournalAidIndexName,
		storeConf.SnapshotTableName,
		storeConf.SnapshotAidIndexName,
		storeConf.ShardCount,
		useraccount.NewEventSerializer(),
		useraccount.NewSnapshotSerializer(),
	)
	require.NoError(t, err)
	return store
}

func Test_EventStore_endToEnd(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	snapshot, err := store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "Alice", snapshot.Aggregate.Name)
	assert.EqualValues(t, 1, snapshot.Version)

	loaded := snapshot.Aggregate
	loaded.Ver = snapshot.Version
	renamed, event := loaded.Rename("Bob", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, event, renamed))

	snapshot, err = store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	assert.Equal(t, "Bob", snapshot.Aggregate.Name)
	assert.EqualValues(t, 2, snapshot.Aggregate.SeqNr())
	assert.EqualValues(t, 2, snapshot.Version)

	events, err := store.GetEventsByIdSinceSeqNr(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.EqualValues(t, 1, events[0].SeqNr())
	assert.EqualValues(t, 2, events[1].SeqNr())

	replayed := useraccount.Replay(nil, events)
	assert.Equal(t, "Bob", replayed.Name)
	assert.EqualValues(t, 2, replayed.SeqNr())

	tail, err := store.GetEventsByIdSinceSeqNr(ctx, id, 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.EqualValues(t, 2, tail[0].SeqNr())
}

func Test_EventStore_absentAggregate(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	snapshot, err := store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	events, err := store.GetEventsByIdSinceSeqNr(ctx, id, 1)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func Test_EventStore_duplicateCreation(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	err := store.PersistEventAndSnapshot(ctx, created, account)
	require.Error(t, err)
	assert.IsType(t, eventstore.AlreadyExists{}, err)
}

func Test_EventStore_persistEventLeavesPayloadBehind(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	_, event := account.Rename("Bob", time.Now().UTC())
	require.NoError(t, store.PersistEvent(ctx, event, 1))

	snapshot, err := store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, snapshot)
	// version advanced but the payload still reflects the creation
	assert.EqualValues(t, 2, snapshot.Version)
	assert.Equal(t, "Alice", snapshot.Aggregate.Name)

	events, err := store.GetEventsByIdSinceSeqNr(ctx, id, 1)
	require.NoError(t, err)
	require.Len(t, events, 2)

	replayed := useraccount.Replay(snapshot.Aggregate, events[1:])
	assert.Equal(t, "Bob", replayed.Name)
}

func Test_EventStore_staleVersionConflicts(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	// move the version to 2
	_, event := account.Rename("Bob", time.Now().UTC())
	require.NoError(t, store.PersistEvent(ctx, event, 1))

	// a writer still holding version 1 must be refused
	staleEvent := &useraccount.Renamed{AccountId: id, Seq: 3, At: time.Now().UTC(), Name: "Mallory"}
	err := store.PersistEvent(ctx, staleEvent, 1)
	require.Error(t, err)
	require.IsType(t, eventstore.ConcurrencyConflict{}, err)
	assert.EqualValues(t, 1, err.(eventstore.ConcurrencyConflict).ExpectedVersion)

	// nothing from the refused transaction may be visible
	events, getErr := store.GetEventsByIdSinceSeqNr(ctx, id, 3)
	require.NoError(t, getErr)
	assert.Empty(t, events)
}

func Test_EventStore_concurrentWritersExactlyOneWins(t *testing.T) {
	store := buildStore(t)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	workers := 4
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			renamed, event := account.Rename("Bob", time.Now().UTC())
			errs[i] = store.PersistEventAndSnapshot(ctx, event, renamed)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			var storeErr eventstore.StoreErr
			require.ErrorAs(t, err, &storeErr)
		}
	}
	assert.Equal(t, 1, succeeded)

	events, err := store.GetEventsByIdSinceSeqNr(ctx, id, 2)
	require.NoError(t, err)
	assert.Len(t, events, 1, "losing writers must leave no journal rows")

	snapshot, err := store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, snapshot.Version)
}

func Test_EventStore_retentionKeepsHistoricalSnapshots(t *testing.T) {
	store := buildStore(t).
		WithKeepSnapshotCount(2).
		WithDeleteTtl(1 * time.Hour)
	id := useraccount.GenerateId()

	account, created := useraccount.Create(id, "Alice", time.Now().UTC())
	require.NoError(t, store.PersistEventAndSnapshot(ctx, created, account))

	current := account
	for _, name := range []string{"Bob", "Carol"} {
		next, event := current.Rename(name, time.Now().UTC())
		require.NoError(t, store.PersistEventAndSnapshot(ctx, event, next))
		next.Ver = current.Ver + 1
		current = next
	}

	// historical rows sit alongside the head row at seq_nr >= 1
	out, err := dynamoClient.Query(ctx, &ddb.QueryInput{
		TableName:              aws.String(storeConf.SnapshotTableName),
		IndexName:              aws.String(storeConf.SnapshotAidIndexName),
		KeyConditionExpression: aws.String("aid = :aid AND seq_nr >= :seq_nr"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":aid":    &types.AttributeValueMemberS{Value: id.String()},
			":seq_nr": &types.AttributeValueMemberN{Value: "1"},
		},
	})
	require.NoError(t, err)
	assert.Len(t, out.Items, 2)
	for _, item := range out.Items {
		_, hasTtl := item["ttl"]
		assert.True(t, hasTtl, "historical snapshots must carry a ttl stamp")
	}

	snapshot, err := store.GetLatestSnapshotById(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Carol", snapshot.Aggregate.Name)
	assert.EqualValues(t, 3, snapshot.Version)
}
