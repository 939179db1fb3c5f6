package eventstore

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// EventSerializer encodes events to and from opaque byte payloads.
//
// Serialize must be total for well-formed in-memory values, and the pair
// must satisfy the round-trip law: deserializing the serialization of any
// valid event yields a value structurally equal to the original.
//
// The typeTag passed to Deserialize is the owning aggregate's type name;
// discrimination between event variants of one aggregate is the
// serializer's own concern (the default implementation embeds the
// variant name in the payload).
type EventSerializer[E Event] interface {
	Serialize(event E) ([]byte, error)
	Deserialize(payload []byte, typeTag string) (E, error)
}

// SnapshotSerializer encodes materialized aggregates to and from opaque
// byte payloads, under the same totality and round-trip laws as
// EventSerializer.
type SnapshotSerializer[A Aggregate] interface {
	Serialize(aggregate A) ([]byte, error)
	Deserialize(payload []byte, typeTag string) (A, error)
}

// TypeNameOf returns the unqualified type name of v, dereferencing
// pointers. It is the name the default serializers stamp into payload
// envelopes, so registry entries should be keyed by it.
func TypeNameOf(v interface{}) string {
	t := reflect.TypeOf(v)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// Registry maps payload type names to constructors so persisted payloads
// can be decoded back into fresh instances.
type Registry[T any] struct {
	mu    sync.RWMutex
	ctors map[string]func() T
}

func NewRegistry[T any]() *Registry[T] {
	return &Registry[T]{ctors: map[string]func() T{}}
}

// Register associates a type name with a constructor. The constructor
// must return a pointer so that decoding can populate it.
func (r *Registry[T]) Register(typeName string, ctor func() T) *Registry[T] {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ctors[typeName] = ctor
	return r
}

func (r *Registry[T]) new(typeName string) (T, bool) {
	r.mu.RLock()
	ctor, ok := r.ctors[typeName]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, false
	}
	return ctor(), true
}

// jsonEnvelope is the persisted form the default serializers write: the
// concrete type name alongside the JSON-encoded value.
type jsonEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func envelope(v interface{}) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonEnvelope{Type: TypeNameOf(v), Data: data})
}

func unEnvelope[T any](registry *Registry[T], payload []byte, typeTag string) (T, error) {
	var zero T
	if len(payload) == 0 {
		return zero, DeserializationError{TypeTag: typeTag, Underlying: fmt.Errorf("payload is empty")}
	}
	var env jsonEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return zero, DeserializationError{TypeTag: typeTag, Underlying: err}
	}
	decoded, ok := registry.new(env.Type)
	if !ok {
		return zero, DeserializationError{TypeTag: typeTag, Underlying: fmt.Errorf("no constructor registered for type [%s]", env.Type)}
	}
	if err := json.Unmarshal(env.Data, decoded); err != nil {
		return zero, DeserializationError{TypeTag: typeTag, Underlying: err}
	}
	return decoded, nil
}

// JsonEventSerializer is the default EventSerializer: a self-describing
// JSON envelope with a constructor registry for decoding.
type JsonEventSerializer[E Event] struct {
	registry *Registry[E]
}

func NewJsonEventSerializer[E Event](registry *Registry[E]) JsonEventSerializer[E] {
	return JsonEventSerializer[E]{registry: registry}
}

func (s JsonEventSerializer[E]) Serialize(event E) ([]byte, error) {
	return envelope(event)
}

func (s JsonEventSerializer[E]) Deserialize(payload []byte, typeTag string) (E, error) {
	return unEnvelope(s.registry, payload, typeTag)
}

// JsonSnapshotSerializer is the default SnapshotSerializer, symmetric to
// JsonEventSerializer.
type JsonSnapshotSerializer[A Aggregate] struct {
	registry *Registry[A]
}

func NewJsonSnapshotSerializer[A Aggregate](registry *Registry[A]) JsonSnapshotSerializer[A] {
	return JsonSnapshotSerializer[A]{registry: registry}
}

func (s JsonSnapshotSerializer[A]) Serialize(aggregate A) ([]byte, error) {
	return envelope(aggregate)
}

func (s JsonSnapshotSerializer[A]) Deserialize(payload []byte, typeTag string) (A, error) {
	return unEnvelope(s.registry, payload, typeTag)
}
