package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// FundingAccount is a buyer-side source of money debited by supplier payments.
type FundingAccount struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Currency  enums.Currency  `gorm:"column:currency;type:text;not null"`
	Balance   decimal.Decimal `gorm:"column:balance;type:numeric(18,2);not null;default:0"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (FundingAccount) TableName() string { return "funding_accounts" }
