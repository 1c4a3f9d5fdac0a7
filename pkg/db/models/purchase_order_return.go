package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
)

// PurchaseOrderReturn records goods sent back to the supplier for one line.
type PurchaseOrderReturn struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	LineID     uuid.UUID          `gorm:"column:line_id;type:uuid;not null"`
	Quantity   int64              `gorm:"column:quantity;not null"`
	Reason     enums.ReturnReason `gorm:"column:reason;type:return_reason;not null"`
	Notes      *string            `gorm:"column:notes"`
	ReversalID *uuid.UUID         `gorm:"column:reversal_id;type:uuid"`
	ReturnedBy string             `gorm:"column:returned_by;not null"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (PurchaseOrderReturn) TableName() string { return "purchase_order_returns" }
