package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/types"
)

// AuditEntry is an append-only record of one state-changing operation.
type AuditEntry struct {
	ID         uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID    *uuid.UUID            `gorm:"column:order_id;type:uuid;index"`
	EntityType enums.AuditEntityType `gorm:"column:entity_type;type:text;not null"`
	EntityID   uuid.UUID             `gorm:"column:entity_id;type:uuid;not null"`
	Operation  enums.AuditOperation  `gorm:"column:operation;type:text;not null"`
	Actor      string                `gorm:"column:actor;not null"`
	Before     types.JSONMap         `gorm:"column:before_state;type:jsonb;serializer:json"`
	After      types.JSONMap         `gorm:"column:after_state;type:jsonb;serializer:json"`
	Metadata   types.JSONMap         `gorm:"column:metadata;type:jsonb;serializer:json"`
	OccurredAt time.Time             `gorm:"column:occurred_at;not null"`
}

// TableName pins the table name.
func (AuditEntry) TableName() string { return "purchase_order_audit_entries" }
