package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItemPayload struct {
	LineItemID string `json:"line_item_id"`
	Quantity   int    `json:"quantity"`
}

func TestNewEvent_Fields(t *testing.T) {
	ev, err := NewEvent("line_item.created", "li-1", "line_item", "line-item-service", lineItemPayload{LineItemID: "li-1", Quantity: 2})
	require.NoError(t, err)

	assert.NotEmpty(t, ev.EventID)
	assert.Equal(t, "line_item.created", ev.EventType)
	assert.Equal(t, "li-1", ev.AggregateID)
	assert.Equal(t, "line_item", ev.AggregateType)
	assert.Equal(t, 1, ev.Version)
	assert.False(t, ev.Timestamp.IsZero())
	assert.JSONEq(t, `{"line_item_id":"li-1","quantity":2}`, string(ev.Data))
}

func TestNewEvent_InvalidData(t *testing.T) {
	_, err := NewEvent("x", "id", "t", "s", make(chan int))
	assert.Error(t, err)
}

func TestEvent_RoundTripWithMetadata(t *testing.T) {
	ev, err := NewEvent("line_item.updated", "li-1", "line_item", "svc", lineItemPayload{Quantity: 3})
	require.NoError(t, err)
	ev.WithCorrelationID("corr-1").WithMetadata("order_id", "o-1")

	raw, err := ev.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalEvent(raw)
	require.NoError(t, err)

	assert.Equal(t, ev.EventID, decoded.EventID)
	assert.Equal(t, "corr-1", decoded.CorrelationID)
	assert.Equal(t, "o-1", decoded.Metadata["order_id"])

	var payload lineItemPayload
	require.NoError(t, decoded.UnmarshalData(&payload))
	assert.Equal(t, 3, payload.Quantity)
}

func TestUnmarshalEvent_Invalid(t *testing.T) {
	_, err := UnmarshalEvent([]byte("{not json"))
	assert.Error(t, err)
	_, err = UnmarshalEvent(nil)
	assert.Error(t, err)
}

func TestTopic(t *testing.T) {
	assert.Equal(t, "ecommerce.line_item.created", Topic("line_item", "created"))
	assert.Equal(t, "ecommerce.product.deleted", Topic("product", "deleted"))
}
