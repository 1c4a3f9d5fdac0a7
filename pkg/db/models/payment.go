package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// Payment records money sent to a supplier against a purchase order.
// Amount is never mutated; reversals are stored as PaymentReversal rows.
type Payment struct {
	ID                  uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID             uuid.UUID           `gorm:"column:order_id;type:uuid;not null;index"`
	FundingAccountID    uuid.UUID           `gorm:"column:funding_account_id;type:uuid;not null"`
	Amount              decimal.Decimal     `gorm:"column:amount;type:numeric(18,2);not null"`
	Currency            enums.Currency      `gorm:"column:currency;type:text;not null"`
	ExchangeRate        *decimal.Decimal    `gorm:"column:exchange_rate;type:numeric(18,8)"`
	OrderCurrencyAmount decimal.Decimal     `gorm:"column:order_currency_amount;type:numeric(18,2);not null"`
	Method              enums.PaymentMethod `gorm:"column:method;type:payment_method;not null"`
	Reference           *string             `gorm:"column:reference"`
	Notes               *string             `gorm:"column:notes"`
	Status              enums.PaymentStatus `gorm:"column:status;type:payment_status;not null;default:'completed'"`
	IdempotencyKey      string              `gorm:"column:idempotency_key;not null;uniqueIndex"`
	RecordedBy          string              `gorm:"column:recorded_by;not null"`
	PaidAt              time.Time           `gorm:"column:paid_at;not null"`
	Reversals           []PaymentReversal   `gorm:"foreignKey:PaymentID"`
	CreatedAt           time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (Payment) TableName() string { return "purchase_order_payments" }
