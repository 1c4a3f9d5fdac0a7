package purchaseorders

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

func (s *service) Get(ctx context.Context, orderID uuid.UUID) (*OrderSummary, error) {
	order, err := s.load(ctx, orderID, "get purchase order")
	if err != nil {
		return nil, err
	}
	return summaryFromModel(order), nil
}

func (s *service) List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if filters.Status != nil && !filters.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid status filter %q", *filters.Status)
	}
	if filters.PaymentStatus != nil && !filters.PaymentStatus.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid payment status filter %q", *filters.PaymentStatus)
	}
	if _, err := pagination.ParseCursor(params.Cursor); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	list, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, db.Classify(ctx, err, "list purchase orders")
	}
	return list, nil
}

func (s *service) ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error) {
	if _, err := s.load(ctx, orderID, "list payments"); err != nil {
		return nil, err
	}
	rows, err := s.paymentReader.ListByOrderID(ctx, orderID)
	if err != nil {
		return nil, db.Classify(ctx, err, "list payments")
	}
	return rows, nil
}

func (s *service) ListReturns(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrderReturn, error) {
	if _, err := s.load(ctx, orderID, "list returns"); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListReturns(ctx, orderID)
	if err != nil {
		return nil, db.Classify(ctx, err, "list returns")
	}
	return rows, nil
}

func (s *service) ListQualityChecks(ctx context.Context, orderID uuid.UUID) ([]models.QualityCheck, error) {
	if _, err := s.load(ctx, orderID, "list quality checks"); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListQualityChecks(ctx, orderID)
	if err != nil {
		return nil, db.Classify(ctx, err, "list quality checks")
	}
	return rows, nil
}

func (s *service) AuditTrail(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error) {
	if _, err := s.load(ctx, orderID, "audit trail"); err != nil {
		return nil, err
	}
	rows, err := s.audit.ListForOrder(ctx, orderID)
	if err != nil {
		return nil, db.Classify(ctx, err, "audit trail")
	}
	return rows, nil
}

// ListArchivable returns cancelled orders older than cutoff that are still visible.
func (s *service) ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error) {
	rows, err := s.repo.FindCancelledBefore(ctx, cutoff, limit)
	if err != nil {
		return nil, db.Classify(ctx, err, "list archivable orders")
	}
	return rows, nil
}

func (s *service) load(ctx context.Context, orderID uuid.UUID, op string) (*models.PurchaseOrder, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		return nil, db.Classify(ctx, orderNotFound(err, orderID), op)
	}
	return order, nil
}
