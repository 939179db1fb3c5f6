// Package eventstore holds the contracts shared between applications and
// store implementations: the capability interfaces an aggregate id, an
// aggregate and an event must satisfy, the serializer and key resolver
// contracts, and the error taxonomy.
//
// It deliberately carries no store dependencies so that domain packages
// can implement the contracts without pulling in any backend SDK.
package eventstore

import (
	"fmt"
	"time"
)

// AggregateId identifies a single aggregate instance. Equality is by
// string value.
type AggregateId interface {
	fmt.Stringer
	// TypeName returns the aggregate type name, e.g. "user_account".
	// It scopes ids, keys and payload type tags per aggregate type.
	TypeName() string
	// Value returns the instance-unique part of the id.
	Value() string
}

// Aggregate is an entity whose state is derived from an ordered event
// history.
//
// SeqNr is the number of events applied so far; Version is the
// optimistic-lock counter held against the head snapshot, independent of
// SeqNr. A persist call presents Version as-is; the store bumps the
// persisted version by one on success.
type Aggregate interface {
	Id() AggregateId
	SeqNr() uint64
	Version() uint64
}

// Event is an immutable fact about a state change to one aggregate.
//
// SeqNr is the event's position in the owning aggregate's history,
// starting at 1. IsCreated distinguishes the aggregate's first event
// from all subsequent ones.
type Event interface {
	AggregateId() AggregateId
	SeqNr() uint64
	IsCreated() bool
	OccurredAt() time.Time
}

// LatestSnapshot is the head snapshot of an aggregate as read back from
// the store.
//
// Version is the authoritative optimistic-lock counter from the snapshot
// row; the aggregate decoded from the payload may lag it, since a
// payload-less persist bumps the version without rewriting the payload.
type LatestSnapshot[A Aggregate] struct {
	Aggregate A
	Version   uint64
}
