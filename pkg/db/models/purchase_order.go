package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// PurchaseOrder is a buyer's commitment to acquire goods from one supplier.
// TotalAmount is the sum of line totals and is frozen once the order is confirmed.
type PurchaseOrder struct {
	ID                 uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber        string                    `gorm:"column:order_number;not null;uniqueIndex"`
	SupplierID         uuid.UUID                 `gorm:"column:supplier_id;type:uuid;not null"`
	Currency           enums.Currency            `gorm:"column:currency;type:text;not null"`
	TotalAmount        decimal.Decimal           `gorm:"column:total_amount;type:numeric(18,2);not null;default:0"`
	Status             enums.PurchaseOrderStatus `gorm:"column:status;type:purchase_order_status;not null;default:'draft'"`
	PaymentStatus      enums.OrderPaymentStatus  `gorm:"column:payment_status;type:order_payment_status;not null;default:'unpaid'"`
	TotalPaid          decimal.Decimal           `gorm:"column:total_paid;type:numeric(18,2);not null;default:0"`
	AllowOverReceipt   bool                      `gorm:"column:allow_over_receipt;not null;default:false"`
	Notes              *string                   `gorm:"column:notes"`
	CreatedBy          string                    `gorm:"column:created_by;not null"`
	CompletedBy        *string                   `gorm:"column:completed_by"`
	CompletionNotes    *string                   `gorm:"column:completion_notes"`
	CancellationReason *string                   `gorm:"column:cancellation_reason"`
	ShortCloseReason   *string                   `gorm:"column:short_close_reason"`
	Version            int64                     `gorm:"column:version;not null;default:1"`
	ConfirmedAt        *time.Time                `gorm:"column:confirmed_at"`
	CompletedAt        *time.Time                `gorm:"column:completed_at"`
	CancelledAt        *time.Time                `gorm:"column:cancelled_at"`
	ShortClosedAt      *time.Time                `gorm:"column:short_closed_at"`
	ArchivedAt         *time.Time                `gorm:"column:archived_at"`
	Lines              []PurchaseOrderLine       `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (PurchaseOrder) TableName() string { return "purchase_orders" }
