package purchaseorders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/payments"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

// Repository defines persistence operations for purchase orders and their
// child rows.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.PurchaseOrder) error
	CreateLines(ctx context.Context, lines []models.PurchaseOrderLine) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error)
	UpdateOrder(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) error
	UpdateLineQuantities(ctx context.Context, lineID uuid.UUID, received, returned int64) error
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	CreateReturn(ctx context.Context, ret *models.PurchaseOrderReturn) error
	ListReturns(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrderReturn, error)
	CreateQualityCheck(ctx context.Context, check *models.QualityCheck) error
	ListQualityChecks(ctx context.Context, orderID uuid.UUID) ([]models.QualityCheck, error)
	FindCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
	EmitOnce(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// PaymentReconciler applies money movements inside an order transaction.
type PaymentReconciler interface {
	RecordPayment(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, input payments.RecordInput) (*payments.RecordResult, error)
	ReversePayment(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, input payments.ReverseInput) (*payments.ReverseResult, error)
	RefundAmount(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, orderAmount decimal.Decimal) (decimal.Decimal, error)
	Totals(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder) (decimal.Decimal, enums.OrderPaymentStatus, error)
	CompletedCount(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
}

// PaymentReader lists stored payments.
type PaymentReader interface {
	ListByOrderID(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
}
