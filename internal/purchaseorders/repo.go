package purchaseorders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

// errVersionConflict signals that the order row moved since it was read.
var errVersionConflict = errors.New("purchase order version changed")

type repository struct {
	db *gorm.DB
}

// NewRepository builds a purchase order repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.PurchaseOrder) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.PurchaseOrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		if lines[i].ID == uuid.Nil {
			lines[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&lines).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Preload("Lines", orderLines).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// FindByIDForUpdate locks the order row, then loads its lines through the same
// transaction.
func (r *repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.PurchaseOrder, error) {
	var order models.PurchaseOrder
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	var lines []models.PurchaseOrderLine
	if err := orderLines(r.db.WithContext(ctx)).Where("order_id = ?", id).Find(&lines).Error; err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

// UpdateOrder writes updates only if the row still carries version, and bumps it.
func (r *repository) UpdateOrder(ctx context.Context, id uuid.UUID, version int64, updates map[string]any) error {
	values := make(map[string]any, len(updates)+2)
	for k, v := range updates {
		values[k] = v
	}
	values["version"] = version + 1
	values["updated_at"] = time.Now().UTC()

	res := r.db.WithContext(ctx).
		Model(&models.PurchaseOrder{}).
		Where("id = ? AND version = ?", id, version).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errVersionConflict
	}
	return nil
}

func (r *repository) UpdateLineQuantities(ctx context.Context, lineID uuid.UUID, received, returned int64) error {
	res := r.db.WithContext(ctx).
		Model(&models.PurchaseOrderLine{}).
		Where("id = ?", lineID).
		Updates(map[string]any{
			"received_quantity": received,
			"returned_quantity": returned,
			"updated_at":        time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	limit := pagination.NormalizeLimit(params.Limit)

	query := r.db.WithContext(ctx).Model(&models.PurchaseOrder{})
	if filters.Status != nil {
		query = query.Where("status = ?", *filters.Status)
	}
	if filters.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filters.PaymentStatus)
	}
	if filters.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filters.SupplierID)
	}
	if filters.CreatedFrom != nil {
		query = query.Where("created_at >= ?", filters.CreatedFrom.UTC())
	}
	if filters.CreatedTo != nil {
		query = query.Where("created_at <= ?", filters.CreatedTo.UTC())
	}
	if q := strings.TrimSpace(filters.Query); q != "" {
		query = query.Where("order_number LIKE ?", "%"+q+"%")
	}
	if !filters.IncludeArchived {
		query = query.Where("archived_at IS NULL")
	}
	if cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}

	var rows []models.PurchaseOrder
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit + 1).
		Find(&rows).Error; err != nil {
		return nil, err
	}

	rows, next := pagination.Trim(rows, limit, func(o models.PurchaseOrder) pagination.Cursor {
		return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
	})
	list := &OrderList{NextCursor: next}
	list.Orders = make([]OrderListItem, 0, len(rows))
	for _, row := range rows {
		list.Orders = append(list.Orders, listItemFromModel(row))
	}
	return list, nil
}

func (r *repository) CreateReturn(ctx context.Context, ret *models.PurchaseOrderReturn) error {
	if ret.ID == uuid.Nil {
		ret.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(ret).Error
}

func (r *repository) ListReturns(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrderReturn, error) {
	var rows []models.PurchaseOrderReturn
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) CreateQualityCheck(ctx context.Context, check *models.QualityCheck) error {
	if check.ID == uuid.Nil {
		check.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(check).Error
}

func (r *repository) ListQualityChecks(ctx context.Context, orderID uuid.UUID) ([]models.QualityCheck, error) {
	var rows []models.QualityCheck
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&rows).Error
	return rows, err
}

// FindCancelledBefore returns unarchived cancelled orders older than cutoff.
func (r *repository) FindCancelledBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error) {
	var rows []models.PurchaseOrder
	query := r.db.WithContext(ctx).
		Where("status = ?", enums.PurchaseOrderStatusCancelled).
		Where("archived_at IS NULL").
		Where("cancelled_at < ?", cutoff.UTC()).
		Order("cancelled_at ASC").
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&rows).Error
	return rows, err
}

func orderLines(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC").Order("id ASC")
}
