package models

import (
	"time"

	"github.com/google/uuid"
)

// QualityCheck captures an inspection of received goods on one line.
type QualityCheck struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	LineID         uuid.UUID `gorm:"column:line_id;type:uuid;not null"`
	Passed         bool      `gorm:"column:passed;not null"`
	InspectedCount int64     `gorm:"column:inspected_count;not null"`
	FailedCount    int64     `gorm:"column:failed_count;not null;default:0"`
	Notes          *string   `gorm:"column:notes"`
	CheckedBy      string    `gorm:"column:checked_by;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName pins the table name.
func (QualityCheck) TableName() string { return "purchase_order_quality_checks" }
