package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

func TestResolveDecodesTypedPayload(t *testing.T) {
	reg := newTestRegistry(t)
	orderID := uuid.New()

	resolved, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderCompleted,
		AggregateType: enums.AggregatePurchaseOrder,
		AggregateID:   orderID,
		Payload: envelopeJSON(t, payloads.OrderCompletedEvent{
			OrderID:     orderID,
			OrderNumber: "PO-20250101-0000AAAA",
			Currency:    enums.CurrencyTZS,
			TotalAmount: decimal.RequireFromString("1000.00"),
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "po-topic", resolved.Descriptor.Topic)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.Equal(t, "clerk-1", resolved.Envelope.Actor.Actor)

	payload, ok := resolved.Payload.(*payloads.OrderCompletedEvent)
	require.True(t, ok, "payload type %T", resolved.Payload)
	assert.Equal(t, orderID, payload.OrderID)
	assert.True(t, payload.TotalAmount.Equal(decimal.NewFromInt(1000)))
}

func TestResolveRoutesByEventType(t *testing.T) {
	reg := newTestRegistry(t)

	cases := map[enums.OutboxEventType]struct {
		data  any
		topic string
	}{
		enums.EventOrderPaymentRecorded: {payloads.PaymentRecordedEvent{PaymentID: uuid.New()}, "payments-topic"},
		enums.EventOrderReturned:        {payloads.OrderReturnedEvent{ReturnID: uuid.New(), Quantity: 2}, "po-topic"},
		enums.EventOrderCompleted:       {payloads.OrderCompletedEvent{OrderID: uuid.New()}, "po-topic"},
	}
	for eventType, tc := range cases {
		t.Run(string(eventType), func(t *testing.T) {
			resolved, err := reg.Resolve(models.OutboxEvent{
				EventType:     eventType,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   uuid.New(),
				Payload:       envelopeJSON(t, tc.data),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.topic, resolved.Descriptor.Topic)
		})
	}
}

func TestResolveRejectsBadRowsAsNonRetryable(t *testing.T) {
	reg := newTestRegistry(t)

	cases := []struct {
		name  string
		event models.OutboxEvent
	}{
		{
			name: "unknown event type",
			event: models.OutboxEvent{
				EventType:     enums.OutboxEventType("order.teleported"),
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   uuid.New(),
				Payload:       envelopeJSON(t, map[string]any{"reason": "none"}),
			},
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType:     enums.EventOrderReturned,
				AggregateType: enums.AggregateFundingAccount,
				AggregateID:   uuid.New(),
				Payload:       envelopeJSON(t, map[string]any{"quantity": 1}),
			},
		},
		{
			name: "missing aggregate id",
			event: models.OutboxEvent{
				EventType:     enums.EventOrderCompleted,
				AggregateType: enums.AggregatePurchaseOrder,
				Payload:       envelopeJSON(t, map[string]any{}),
			},
		},
		{
			name: "null data",
			event: models.OutboxEvent{
				EventType:     enums.EventOrderCompleted,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   uuid.New(),
				Payload:       envelopeJSON(t, nil),
			},
		},
		{
			name: "corrupt envelope",
			event: models.OutboxEvent{
				EventType:     enums.EventOrderCompleted,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{"version":`),
			},
		},
		{
			name: "payload shape mismatch",
			event: models.OutboxEvent{
				EventType:     enums.EventOrderReturned,
				AggregateType: enums.AggregatePurchaseOrder,
				AggregateID:   uuid.New(),
				Payload:       envelopeJSON(t, map[string]any{"quantity": "three"}),
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			require.Error(t, err)
			var nonRetryable NonRetryableError
			assert.ErrorAs(t, err, &nonRetryable)
		})
	}
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{PaymentsTopic: "payments"})
	assert.Error(t, err)

	_, err = NewEventRegistry(config.PubSubConfig{PurchaseOrdersTopic: "po", PaymentsTopic: "  "})
	assert.Error(t, err)
}

func newTestRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{
		PurchaseOrdersTopic: "po-topic",
		PaymentsTopic:       "payments-topic",
	})
	require.NoError(t, err)
	return reg
}

func envelopeJSON(t *testing.T, data any) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	out, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Actor:      &outbox.ActorRef{Actor: "clerk-1"},
		Data:       raw,
	})
	require.NoError(t, err)
	return out
}
