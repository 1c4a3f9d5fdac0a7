package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// OrderCompletedEvent is emitted once a purchase order reaches completed.
type OrderCompletedEvent struct {
	OrderID       uuid.UUID                `json:"order_id"`
	OrderNumber   string                   `json:"order_number"`
	SupplierID    uuid.UUID                `json:"supplier_id"`
	Currency      enums.Currency           `json:"currency"`
	TotalAmount   decimal.Decimal          `json:"total_amount"`
	TotalPaid     decimal.Decimal          `json:"total_paid"`
	PaymentStatus enums.OrderPaymentStatus `json:"payment_status"`
	PaymentPolicy enums.PaymentPolicy      `json:"payment_policy"`
	CompletedBy   string                   `json:"completed_by"`
	CompletedAt   time.Time                `json:"completed_at"`
}

// PaymentRecordedEvent is emitted for every new, non-replayed supplier payment.
type PaymentRecordedEvent struct {
	OrderID             uuid.UUID                `json:"order_id"`
	PaymentID           uuid.UUID                `json:"payment_id"`
	FundingAccountID    uuid.UUID                `json:"funding_account_id"`
	Amount              decimal.Decimal          `json:"amount"`
	Currency            enums.Currency           `json:"currency"`
	OrderCurrencyAmount decimal.Decimal          `json:"order_currency_amount"`
	Method              enums.PaymentMethod      `json:"method"`
	TotalPaid           decimal.Decimal          `json:"total_paid"`
	PaymentStatus       enums.OrderPaymentStatus `json:"payment_status"`
	PaidAt              time.Time                `json:"paid_at"`
}

// OrderReturnedEvent is emitted when received goods go back to the supplier.
type OrderReturnedEvent struct {
	OrderID      uuid.UUID          `json:"order_id"`
	ReturnID     uuid.UUID          `json:"return_id"`
	LineID       uuid.UUID          `json:"line_id"`
	Quantity     int64              `json:"quantity"`
	Reason       enums.ReturnReason `json:"reason"`
	RefundAmount *decimal.Decimal   `json:"refund_amount,omitempty"`
	ReturnedAt   time.Time          `json:"returned_at"`
}
