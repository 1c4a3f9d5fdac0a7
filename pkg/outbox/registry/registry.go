// Package registry maps outbox event types to their Pub/Sub topic and payload
// schema so the relay can validate rows before publishing them.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks rows that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error {
	return e.Err
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes lifecycle events to the purchase order topic and
// payment events to the payments topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	ordersTopic := strings.TrimSpace(cfg.PurchaseOrdersTopic)
	paymentsTopic := strings.TrimSpace(cfg.PaymentsTopic)
	if ordersTopic == "" {
		return nil, errors.New("purchase orders topic is required")
	}
	if paymentsTopic == "" {
		return nil, errors.New("payments topic is required")
	}

	routes := []EventDescriptor{
		{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregatePurchaseOrder,
			Topic:         ordersTopic,
			newPayload:    func() any { return &payloads.OrderCompletedEvent{} },
		},
		{
			EventType:     enums.EventOrderReturned,
			AggregateType: enums.AggregatePurchaseOrder,
			Topic:         ordersTopic,
			newPayload:    func() any { return &payloads.OrderReturnedEvent{} },
		},
		{
			EventType:     enums.EventOrderPaymentRecorded,
			AggregateType: enums.AggregatePurchaseOrder,
			Topic:         paymentsTopic,
			newPayload:    func() any { return &payloads.PaymentRecordedEvent{} },
		},
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(routes))}
	for _, route := range routes {
		reg.entries[route.EventType] = route
	}
	return reg, nil
}

// Resolve checks the row against its descriptor and decodes the typed
// payload. Every failure is non-retryable.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	if !ok {
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", event.EventType))
	}
	if desc.AggregateType != event.AggregateType {
		return nil, NewNonRetryableError(fmt.Errorf("%s belongs to %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType))
	}
	if event.AggregateID == uuid.Nil {
		return nil, NewNonRetryableError(errors.New("missing aggregate_id"))
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("%s: %w", event.EventType, err))
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", event.EventType, err))
	}

	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
