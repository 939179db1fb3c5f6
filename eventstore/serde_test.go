package eventstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type widgetMade struct {
	WidgetId widgetId  `json:"widget_id"`
	Seq      uint64    `json:"seq_nr"`
	At       time.Time `json:"occurred_at"`
}

func (e *widgetMade) AggregateId() AggregateId { return e.WidgetId }
func (e *widgetMade) SeqNr() uint64            { return e.Seq }
func (e *widgetMade) IsCreated() bool          { return true }
func (e *widgetMade) OccurredAt() time.Time    { return e.At }

type widget struct {
	WidgetId widgetId `json:"widget_id"`
	Label    string   `json:"label"`
	Seq      uint64   `json:"seq_nr"`
	Ver      uint64   `json:"version"`
}

func (w *widget) Id() AggregateId { return w.WidgetId }
func (w *widget) SeqNr() uint64   { return w.Seq }
func (w *widget) Version() uint64 { return w.Ver }

func widgetEventSerializer() JsonEventSerializer[Event] {
	registry := NewRegistry[Event]().
		Register("widgetMade", func() Event { return &widgetMade{} })
	return NewJsonEventSerializer(registry)
}

func Test_TypeNameOf(t *testing.T) {
	assert.Equal(t, "widget", TypeNameOf(widget{}))
	assert.Equal(t, "widget", TypeNameOf(&widget{}))
	assert.Equal(t, "widgetMade", TypeNameOf(&widgetMade{}))
}

func Test_JsonEventSerializer_roundTrip(t *testing.T) {
	serializer := widgetEventSerializer()
	original := &widgetMade{
		WidgetId: "abc",
		Seq:      1,
		At:       time.Date(2021, 6, 1, 12, 30, 0, 0, time.UTC),
	}

	payload, err := serializer.Serialize(original)
	require.NoError(t, err)

	decoded, err := serializer.Deserialize(payload, "widget")
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func Test_JsonEventSerializer_emptyPayload(t *testing.T) {
	serializer := widgetEventSerializer()
	_, err := serializer.Deserialize(nil, "widget")
	require.Error(t, err)
	assert.IsType(t, DeserializationError{}, err)
	assert.Equal(t, "widget", err.(DeserializationError).TypeTag)
}

func Test_JsonEventSerializer_truncatedPayload(t *testing.T) {
	serializer := widgetEventSerializer()
	original := &widgetMade{WidgetId: "abc", Seq: 1, At: time.Now().UTC()}
	payload, err := serializer.Serialize(original)
	require.NoError(t, err)

	_, err = serializer.Deserialize(payload[:len(payload)/2], "widget")
	assert.IsType(t, DeserializationError{}, err)
}

func Test_JsonEventSerializer_unregisteredType(t *testing.T) {
	serializer := widgetEventSerializer()
	_, err := serializer.Deserialize([]byte(`{"type":"widgetScrapped","data":{}}`), "widget")
	require.Error(t, err)
	assert.IsType(t, DeserializationError{}, err)
	assert.Contains(t, err.Error(), "widgetScrapped")
}

func Test_JsonSnapshotSerializer_roundTrip(t *testing.T) {
	registry := NewRegistry[*widget]().
		Register("widget", func() *widget { return &widget{} })
	serializer := NewJsonSnapshotSerializer(registry)

	original := &widget{WidgetId: "abc", Label: "thing", Seq: 3, Ver: 2}
	payload, err := serializer.Serialize(original)
	require.NoError(t, err)

	decoded, err := serializer.Deserialize(payload, "widget")
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}
