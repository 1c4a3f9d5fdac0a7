package purchaseorders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/internal/quantity"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// LineInput describes one catalog item to order.
type LineInput struct {
	CatalogItemID   string          `json:"catalog_item_id" validate:"required,max=128"`
	Description     string          `json:"description" validate:"max=512"`
	OrderedQuantity int64           `json:"ordered_quantity" validate:"gt=0"`
	UnitCost        decimal.Decimal `json:"unit_cost"`
}

// CreateInput opens a draft order.
type CreateInput struct {
	OrderNumber string         `json:"order_number,omitempty" validate:"omitempty,max=64"`
	SupplierID  uuid.UUID      `json:"supplier_id" validate:"required"`
	Currency    enums.Currency `json:"currency,omitempty"`
	Notes       string         `json:"notes,omitempty"`
	Lines       []LineInput    `json:"lines" validate:"required,min=1,dive"`
}

// ConfirmInput freezes a draft.
type ConfirmInput struct {
	AllowOverReceipt bool `json:"allow_over_receipt"`
}

// LineDelta is a quantity applied to one line.
type LineDelta struct {
	LineID   uuid.UUID `json:"line_id" validate:"required"`
	Quantity int64     `json:"quantity"`
}

// ReceiveInput books goods that arrived.
type ReceiveInput struct {
	Lines               []LineDelta `json:"lines" validate:"required,min=1,dive"`
	OverrideOverReceipt bool        `json:"override_over_receipt"`
	Notes               string      `json:"notes,omitempty"`
}

// ReturnInput sends received goods back. RefundPaymentID asks for a
// compensating reversal when the reason implies a refund.
type ReturnInput struct {
	LineID          uuid.UUID          `json:"line_id" validate:"required"`
	Quantity        int64              `json:"quantity"`
	Reason          enums.ReturnReason `json:"reason" validate:"required,enum"`
	Notes           string             `json:"notes,omitempty"`
	RefundPaymentID *uuid.UUID         `json:"refund_payment_id,omitempty"`
}

// PaymentInput pays the supplier from a funding account.
type PaymentInput struct {
	FundingAccountID uuid.UUID           `json:"funding_account_id" validate:"required"`
	Amount           decimal.Decimal     `json:"amount"`
	Currency         enums.Currency      `json:"currency,omitempty"`
	ExchangeRate     *decimal.Decimal    `json:"exchange_rate,omitempty"`
	Method           enums.PaymentMethod `json:"method" validate:"required"`
	Reference        string              `json:"reference,omitempty" validate:"max=128"`
	Notes            string              `json:"notes,omitempty"`
	IdempotencyKey   string              `json:"idempotency_key" validate:"required,max=128"`
	PaidAt           *time.Time          `json:"paid_at,omitempty"`
}

// ReverseInput returns money from a payment to its funding account.
type ReverseInput struct {
	PaymentID uuid.UUID       `json:"payment_id" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason" validate:"required,max=512"`
}

// CompleteInput closes a fully received order. A nil policy uses the
// configured default.
type CompleteInput struct {
	Notes         string               `json:"notes,omitempty"`
	PaymentPolicy *enums.PaymentPolicy `json:"payment_policy,omitempty"`
}

// QualityCheckInput records an inspection of received goods.
type QualityCheckInput struct {
	LineID         uuid.UUID `json:"line_id" validate:"required"`
	Passed         bool      `json:"passed"`
	InspectedCount int64     `json:"inspected_count"`
	FailedCount    int64     `json:"failed_count"`
	Notes          string    `json:"notes,omitempty"`
}

// ListFilters narrow the order list.
type ListFilters struct {
	Status          *enums.PurchaseOrderStatus
	PaymentStatus   *enums.OrderPaymentStatus
	SupplierID      *uuid.UUID
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
	Query           string
	IncludeArchived bool
}

// LineSummary is one line with its derived quantities.
type LineSummary struct {
	ID            uuid.UUID       `json:"id"`
	Position      int             `json:"position"`
	CatalogItemID string          `json:"catalog_item_id"`
	Description   string          `json:"description"`
	Ordered       int64           `json:"ordered_quantity"`
	Received      int64           `json:"received_quantity"`
	Returned      int64           `json:"returned_quantity"`
	Outstanding   int64           `json:"outstanding_quantity"`
	NetReceived   int64           `json:"net_received_quantity"`
	Complete      bool            `json:"complete"`
	UnitCost      decimal.Decimal `json:"unit_cost"`
	LineTotal     decimal.Decimal `json:"line_total"`
}

// OrderSummary is the read model returned by every order operation.
type OrderSummary struct {
	ID                 uuid.UUID                 `json:"id"`
	OrderNumber        string                    `json:"order_number"`
	SupplierID         uuid.UUID                 `json:"supplier_id"`
	Currency           enums.Currency            `json:"currency"`
	Status             enums.PurchaseOrderStatus `json:"status"`
	PaymentStatus      enums.OrderPaymentStatus  `json:"payment_status"`
	TotalAmount        decimal.Decimal           `json:"total_amount"`
	TotalPaid          decimal.Decimal           `json:"total_paid"`
	AmountDue          decimal.Decimal           `json:"amount_due"`
	AllowOverReceipt   bool                      `json:"allow_over_receipt"`
	CompletionEligible bool                      `json:"completion_eligible"`
	Quantities         quantity.Summary          `json:"quantities"`
	Lines              []LineSummary             `json:"lines"`
	Notes              *string                   `json:"notes,omitempty"`
	CreatedBy          string                    `json:"created_by"`
	CompletedBy        *string                   `json:"completed_by,omitempty"`
	CompletionNotes    *string                   `json:"completion_notes,omitempty"`
	CancellationReason *string                   `json:"cancellation_reason,omitempty"`
	ShortCloseReason   *string                   `json:"short_close_reason,omitempty"`
	Version            int64                     `json:"version"`
	ConfirmedAt        *time.Time                `json:"confirmed_at,omitempty"`
	CompletedAt        *time.Time                `json:"completed_at,omitempty"`
	CancelledAt        *time.Time                `json:"cancelled_at,omitempty"`
	ShortClosedAt      *time.Time                `json:"short_closed_at,omitempty"`
	ArchivedAt         *time.Time                `json:"archived_at,omitempty"`
	CreatedAt          time.Time                 `json:"created_at"`
	UpdatedAt          time.Time                 `json:"updated_at"`
}

// OrderListItem is the compact row returned by List.
type OrderListItem struct {
	ID            uuid.UUID                 `json:"id"`
	OrderNumber   string                    `json:"order_number"`
	SupplierID    uuid.UUID                 `json:"supplier_id"`
	Currency      enums.Currency            `json:"currency"`
	Status        enums.PurchaseOrderStatus `json:"status"`
	PaymentStatus enums.OrderPaymentStatus  `json:"payment_status"`
	TotalAmount   decimal.Decimal           `json:"total_amount"`
	TotalPaid     decimal.Decimal           `json:"total_paid"`
	CreatedAt     time.Time                 `json:"created_at"`
}

// OrderList wraps paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderListItem `json:"orders"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

// PaymentResult is returned by RecordPayment.
type PaymentResult struct {
	Payment  *models.Payment `json:"payment"`
	Replayed bool            `json:"replayed"`
	Order    *OrderSummary   `json:"order"`
}

// ReversalResult is returned by ReversePayment.
type ReversalResult struct {
	Reversal *models.PaymentReversal `json:"reversal"`
	Payment  *models.Payment         `json:"payment"`
	Order    *OrderSummary           `json:"order"`
}

// ReturnResult is returned by ReturnItems. Reversal is set when a refund was issued.
type ReturnResult struct {
	Return   *models.PurchaseOrderReturn `json:"return"`
	Reversal *models.PaymentReversal     `json:"reversal,omitempty"`
	Order    *OrderSummary               `json:"order"`
}

func summaryFromModel(order *models.PurchaseOrder) *OrderSummary {
	snapshot := quantity.FromModels(order.Lines)
	lines := make([]LineSummary, 0, len(order.Lines))
	for i, l := range order.Lines {
		q := snapshot[i]
		lines = append(lines, LineSummary{
			ID:            l.ID,
			Position:      l.Position,
			CatalogItemID: l.CatalogItemID,
			Description:   l.Description,
			Ordered:       l.OrderedQuantity,
			Received:      l.ReceivedQuantity,
			Returned:      l.ReturnedQuantity,
			Outstanding:   quantity.Outstanding(q),
			NetReceived:   quantity.NetReceived(q),
			Complete:      quantity.IsLineComplete(q),
			UnitCost:      l.UnitCost,
			LineTotal:     l.LineTotal().Round(2),
		})
	}
	due := order.TotalAmount.Sub(order.TotalPaid)
	if due.IsNegative() {
		due = decimal.Zero
	}
	return &OrderSummary{
		ID:                 order.ID,
		OrderNumber:        order.OrderNumber,
		SupplierID:         order.SupplierID,
		Currency:           order.Currency,
		Status:             order.Status,
		PaymentStatus:      order.PaymentStatus,
		TotalAmount:        order.TotalAmount,
		TotalPaid:          order.TotalPaid,
		AmountDue:          due,
		AllowOverReceipt:   order.AllowOverReceipt,
		CompletionEligible: quantity.OrderCompletionEligible(snapshot),
		Quantities:         quantity.Summarize(snapshot),
		Lines:              lines,
		Notes:              order.Notes,
		CreatedBy:          order.CreatedBy,
		CompletedBy:        order.CompletedBy,
		CompletionNotes:    order.CompletionNotes,
		CancellationReason: order.CancellationReason,
		ShortCloseReason:   order.ShortCloseReason,
		Version:            order.Version,
		ConfirmedAt:        order.ConfirmedAt,
		CompletedAt:        order.CompletedAt,
		CancelledAt:        order.CancelledAt,
		ShortClosedAt:      order.ShortClosedAt,
		ArchivedAt:         order.ArchivedAt,
		CreatedAt:          order.CreatedAt,
		UpdatedAt:          order.UpdatedAt,
	}
}

func listItemFromModel(order models.PurchaseOrder) OrderListItem {
	return OrderListItem{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		SupplierID:    order.SupplierID,
		Currency:      order.Currency,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		TotalAmount:   order.TotalAmount,
		TotalPaid:     order.TotalPaid,
		CreatedAt:     order.CreatedAt,
	}
}
