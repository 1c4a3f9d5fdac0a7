package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PaymentReversal moves part or all of a payment back to its funding account.
type PaymentReversal struct {
	ID                  uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID           uuid.UUID       `gorm:"column:payment_id;type:uuid;not null;index"`
	OrderID             uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ReturnID            *uuid.UUID      `gorm:"column:return_id;type:uuid"`
	Amount              decimal.Decimal `gorm:"column:amount;type:numeric(18,2);not null"`
	OrderCurrencyAmount decimal.Decimal `gorm:"column:order_currency_amount;type:numeric(18,2);not null"`
	Reason              string          `gorm:"column:reason;not null"`
	RecordedBy          string          `gorm:"column:recorded_by;not null"`
	CreatedAt           time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (PaymentReversal) TableName() string { return "purchase_order_payment_reversals" }
