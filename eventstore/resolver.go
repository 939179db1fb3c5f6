package eventstore

import (
	"fmt"
	"hash/fnv"
)

// KeyResolver maps aggregate ids to the partition and sort keys the
// store writes rows under.
//
// Implementations must be pure and deterministic: the same inputs always
// yield the same keys, because keys are recomputed independently on
// every read and write and must land on the same physical row.
type KeyResolver interface {
	// ResolvePartitionKey buckets the id into one of shardCount
	// partitions, bounding the write throughput any one partition sees.
	ResolvePartitionKey(id AggregateId, shardCount uint64) string
	// ResolveSortKey orders an aggregate's rows within a partition by
	// sequence number.
	ResolveSortKey(id AggregateId, seqNr uint64) string
}

// DefaultKeyResolver hashes the id value and reduces it modulo the shard
// count for partition keys, and renders sequence numbers fixed-width
// zero-padded so that lexicographic sort-key order matches numeric event
// order.
type DefaultKeyResolver struct{}

func (DefaultKeyResolver) ResolvePartitionKey(id AggregateId, shardCount uint64) string {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(id.Value()))
	return fmt.Sprintf("%s-%d", id.TypeName(), hasher.Sum64()%shardCount)
}

func (DefaultKeyResolver) ResolveSortKey(id AggregateId, seqNr uint64) string {
	// 20 digits covers the full uint64 range
	return fmt.Sprintf("%s-%s-%020d", id.TypeName(), id.Value(), seqNr)
}
