package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PurchaseOrderLine is one catalog item on a purchase order.
type PurchaseOrderLine struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	Position         int             `gorm:"column:position;not null"`
	CatalogItemID    string          `gorm:"column:catalog_item_id;not null"`
	Description      string          `gorm:"column:description;not null;default:''"`
	OrderedQuantity  int64           `gorm:"column:ordered_quantity;not null"`
	ReceivedQuantity int64           `gorm:"column:received_quantity;not null;default:0"`
	ReturnedQuantity int64           `gorm:"column:returned_quantity;not null;default:0"`
	UnitCost         decimal.Decimal `gorm:"column:unit_cost;type:numeric(18,2);not null"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName pins the table name.
func (PurchaseOrderLine) TableName() string { return "purchase_order_lines" }

// LineTotal is ordered quantity times unit cost.
func (l PurchaseOrderLine) LineTotal() decimal.Decimal {
	return l.UnitCost.Mul(decimal.NewFromInt(l.OrderedQuantity))
}
