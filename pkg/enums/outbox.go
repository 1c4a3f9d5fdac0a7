package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregatePurchaseOrder  OutboxAggregateType = "purchase_order"
	AggregateFundingAccount OutboxAggregateType = "funding_account"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregatePurchaseOrder,
	AggregateFundingAccount,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCompleted       OutboxEventType = "order.completed"
	EventOrderPaymentRecorded OutboxEventType = "order.payment_recorded"
	EventOrderReturned        OutboxEventType = "order.returned"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCompleted,
	EventOrderPaymentRecorded,
	EventOrderReturned,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// DeadLetterReason maps to the error_reason column of outbox_dlq.
type DeadLetterReason string

const (
	DeadLetterMaxAttempts  DeadLetterReason = "max_attempts"
	DeadLetterNonRetryable DeadLetterReason = "non_retryable"
)

func (r DeadLetterReason) IsValid() bool {
	return r == DeadLetterMaxAttempts || r == DeadLetterNonRetryable
}
