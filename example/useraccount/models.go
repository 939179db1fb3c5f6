// Package useraccount is a small reference aggregate showing how to
// implement the eventstore contracts: a user account that is created
// with a name and can be renamed afterwards.
package useraccount

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dynavault/dynavault/eventstore"
)

const TypeName = "user_account"

// Id for a user account
type Id string

// GenerateId generates a random account id
func GenerateId() Id {
	return Id(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func (i Id) TypeName() string {
	return TypeName
}

func (i Id) Value() string {
	return string(i)
}

func (i Id) String() string {
	return TypeName + "-" + string(i)
}

// Event is the closed set of events a UserAccount can emit
type Event interface {
	eventstore.Event
}

// Created is the account's creation event, always at sequence number 1
type Created struct {
	AccountId Id        `json:"aggregate_id"`
	Seq       uint64    `json:"seq_nr"`
	At        time.Time `json:"occurred_at"`
	Name      string    `json:"name"`
}

func (e *Created) AggregateId() eventstore.AggregateId { return e.AccountId }
func (e *Created) SeqNr() uint64                       { return e.Seq }
func (e *Created) IsCreated() bool                     { return true }
func (e *Created) OccurredAt() time.Time               { return e.At }

// Renamed records a change of the account's name
type Renamed struct {
	AccountId Id        `json:"aggregate_id"`
	Seq       uint64    `json:"seq_nr"`
	At        time.Time `json:"occurred_at"`
	Name      string    `json:"name"`
}

func (e *Renamed) AggregateId() eventstore.AggregateId { return e.AccountId }
func (e *Renamed) SeqNr() uint64                       { return e.Seq }
func (e *Renamed) IsCreated() bool                     { return false }
func (e *Renamed) OccurredAt() time.Time               { return e.At }

// UserAccount is the materialized aggregate state.
//
// Seq counts the events applied; Ver is the optimistic-lock version as
// last read from the store. Persist calls present Ver unchanged and the
// store bumps the persisted version on success, so after a successful
// persist the caller's next expected version is Ver+1.
type UserAccount struct {
	AccountId Id     `json:"id"`
	Name      string `json:"name"`
	Seq       uint64 `json:"seq_nr"`
	Ver       uint64 `json:"version"`
}

func (a *UserAccount) Id() eventstore.AggregateId { return a.AccountId }
func (a *UserAccount) SeqNr() uint64              { return a.Seq }
func (a *UserAccount) Version() uint64            { return a.Ver }

// Create returns a fresh account along with its creation event.
func Create(id Id, name string, at time.Time) (*UserAccount, *Created) {
	account := &UserAccount{
		AccountId: id,
		Name:      name,
		Seq:       1,
		Ver:       1,
	}
	event := &Created{
		AccountId: id,
		Seq:       1,
		At:        at,
		Name:      name,
	}
	return account, event
}

// Rename returns a copy of the account with the new name applied and the
// matching event. Ver is carried over untouched; it is the version the
// subsequent persist call will be conditioned on.
func (a *UserAccount) Rename(name string, at time.Time) (*UserAccount, *Renamed) {
	renamed := *a
	renamed.Name = name
	renamed.Seq = a.Seq + 1
	event := &Renamed{
		AccountId: a.AccountId,
		Seq:       renamed.Seq,
		At:        at,
		Name:      name,
	}
	return &renamed, event
}

// Apply folds a single event into the account state.
func (a *UserAccount) Apply(event Event) *UserAccount {
	switch e := event.(type) {
	case *Created:
		return &UserAccount{AccountId: e.AccountId, Name: e.Name, Seq: e.Seq, Ver: a.Ver}
	case *Renamed:
		next := *a
		next.Name = e.Name
		next.Seq = e.Seq
		return &next
	default:
		return a
	}
}

// Replay rebuilds account state from a snapshot plus trailing events,
// or from scratch when snapshot is nil.
func Replay(snapshot *UserAccount, events []Event) *UserAccount {
	account := snapshot
	if account == nil {
		account = &UserAccount{}
	}
	for _, event := range events {
		account = account.Apply(event)
	}
	return account
}

// NewEventSerializer returns the JSON serializer for this aggregate's
// events with all variants registered.
func NewEventSerializer() eventstore.JsonEventSerializer[Event] {
	registry := eventstore.NewRegistry[Event]().
		Register("Created", func() Event { return &Created{} }).
		Register("Renamed", func() Event { return &Renamed{} })
	return eventstore.NewJsonEventSerializer[Event](registry)
}

// NewSnapshotSerializer returns the JSON serializer for the aggregate
// snapshot payload.
func NewSnapshotSerializer() eventstore.JsonSnapshotSerializer[*UserAccount] {
	registry := eventstore.NewRegistry[*UserAccount]().
		Register("UserAccount", func() *UserAccount { return &UserAccount{} })
	return eventstore.NewJsonSnapshotSerializer[*UserAccount](registry)
}
