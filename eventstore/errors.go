package eventstore

import "fmt"

// <-- Store Errors

// StoreErr is an error interface for failures scoped to one aggregate
type StoreErr interface {
	error
	Id() AggregateId
}

type WrappingErr interface {
	error
	Unwrap() error
}

// ValidationError is returned on caller misuse, e.g. persisting a
// creation event through the non-creation path
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("Invalid use of the event store: %s", e.Message)
}

// ConcurrencyConflict is returned when the head snapshot's version
// precondition failed; another writer won the race
type ConcurrencyConflict struct {
	ID              AggregateId
	ExpectedVersion uint64
}

func (e ConcurrencyConflict) Error() string {
	return fmt.Sprintf("Expected version [%d] did not match the persisted version for [%v]", e.ExpectedVersion, e.ID)
}

func (e ConcurrencyConflict) Id() AggregateId {
	return e.ID
}

// AlreadyExists is returned when the journal or head-snapshot
// non-existence precondition failed; duplicate creation or duplicate
// sequence number
type AlreadyExists struct {
	ID    AggregateId
	SeqNr uint64
}

func (e AlreadyExists) Error() string {
	return fmt.Sprintf("A record for [%v] at sequence number [%d] already exists", e.ID, e.SeqNr)
}

func (e AlreadyExists) Id() AggregateId {
	return e.ID
}

// DeserializationError is returned when a stored payload is missing or
// cannot be decoded for its declared type
type DeserializationError struct {
	TypeTag    string
	Underlying error
}

func (e DeserializationError) Error() string {
	return fmt.Sprintf("Could not deserialize payload for type tag [%s]: %v", e.TypeTag, e.Underlying)
}

func (e DeserializationError) Unwrap() error {
	return e.Underlying
}

// StoreUnavailable is returned when the backend transaction or query
// failed for transport or service reasons
type StoreUnavailable struct {
	Underlying error
}

func (e StoreUnavailable) Error() string {
	return fmt.Sprintf("Error from the backing store: %v", e.Underlying)
}

func (e StoreUnavailable) Unwrap() error {
	return e.Underlying
}

//     Errors -->
