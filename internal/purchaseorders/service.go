package purchaseorders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/pagination"
)

// Service exposes the purchase order lifecycle.
type Service interface {
	Create(ctx context.Context, actor string, input CreateInput) (*OrderSummary, error)
	AddLines(ctx context.Context, actor string, orderID uuid.UUID, lines []LineInput) (*OrderSummary, error)
	Confirm(ctx context.Context, actor string, orderID uuid.UUID, input ConfirmInput) (*OrderSummary, error)
	Receive(ctx context.Context, actor string, orderID uuid.UUID, input ReceiveInput) (*OrderSummary, error)
	ReturnItems(ctx context.Context, actor string, orderID uuid.UUID, input ReturnInput) (*ReturnResult, error)
	RecordPayment(ctx context.Context, actor string, orderID uuid.UUID, input PaymentInput) (*PaymentResult, error)
	ReversePayment(ctx context.Context, actor string, orderID uuid.UUID, input ReverseInput) (*ReversalResult, error)
	Complete(ctx context.Context, actor string, orderID uuid.UUID, input CompleteInput) (*OrderSummary, error)
	ShortClose(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*OrderSummary, error)
	Cancel(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*OrderSummary, error)
	Archive(ctx context.Context, actor string, orderID uuid.UUID) (*OrderSummary, error)
	RecordQualityCheck(ctx context.Context, actor string, orderID uuid.UUID, input QualityCheckInput) (*models.QualityCheck, error)

	Get(ctx context.Context, orderID uuid.UUID) (*OrderSummary, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListPayments(ctx context.Context, orderID uuid.UUID) ([]models.Payment, error)
	ListReturns(ctx context.Context, orderID uuid.UUID) ([]models.PurchaseOrderReturn, error)
	ListQualityChecks(ctx context.Context, orderID uuid.UUID) ([]models.QualityCheck, error)
	AuditTrail(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error)
	ListArchivable(ctx context.Context, cutoff time.Time, limit int) ([]models.PurchaseOrder, error)
}

// ServiceParams bundles collaborators and tuning for the order service.
type ServiceParams struct {
	Repo             Repository
	Tx               txRunner
	Outbox           outboxPublisher
	Audit            audit.Service
	Payments         PaymentReconciler
	PaymentReader    PaymentReader
	Logger           *logger.Logger
	DefaultPolicy    enums.PaymentPolicy
	DefaultCurrency  enums.Currency
	OperationTimeout time.Duration
	MaxRetries       int
	Now              func() time.Time
}

type service struct {
	repo            Repository
	tx              txRunner
	outbox          outboxPublisher
	audit           audit.Service
	payments        PaymentReconciler
	paymentReader   PaymentReader
	logg            *logger.Logger
	policy          enums.PaymentPolicy
	defaultCurrency enums.Currency
	timeout         time.Duration
	maxRetries      int
	now             func() time.Time
}

// NewService builds the purchase order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("purchase order repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment reconciler required")
	}
	if params.PaymentReader == nil {
		return nil, fmt.Errorf("payment reader required")
	}
	policy := params.DefaultPolicy
	if policy == "" {
		policy = enums.PaymentPolicyFullyPaid
	}
	if !policy.IsValid() {
		return nil, fmt.Errorf("invalid default payment policy %q", policy)
	}
	currency := params.DefaultCurrency
	if currency != "" && !currency.IsValid() {
		return nil, fmt.Errorf("invalid default currency %q", currency)
	}
	if params.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            params.Repo,
		tx:              params.Tx,
		outbox:          params.Outbox,
		audit:           params.Audit,
		payments:        params.Payments,
		paymentReader:   params.PaymentReader,
		logg:            params.Logger,
		policy:          policy,
		defaultCurrency: currency,
		timeout:         params.OperationTimeout,
		maxRetries:      params.MaxRetries,
		now:             now,
	}, nil
}

// mutation runs with the order row locked. Writes to the order go through
// saveOrder so the version check applies.
type mutation func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error

// mutate locks orderID, applies fn in one transaction and returns the
// reloaded order. A version conflict reruns the whole transaction.
func (s *service) mutate(ctx context.Context, orderID uuid.UUID, op string, fn mutation) (*models.PurchaseOrder, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for attempt := 0; ; attempt++ {
		var result *models.PurchaseOrder
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := repo.FindByIDForUpdate(ctx, orderID)
			if err != nil {
				return orderNotFound(err, orderID)
			}
			if err := fn(ctx, tx, repo, order); err != nil {
				return err
			}
			result, err = repo.FindByID(ctx, orderID)
			return err
		})
		if errors.Is(err, errVersionConflict) {
			if attempt < s.maxRetries {
				if s.logg != nil {
					logCtx := s.logg.WithOperation(s.logg.WithOrderID(ctx, orderID.String()), op)
					s.logg.Debug(s.logg.WithField(logCtx, "attempt", attempt+1), "purchase order version conflict, retrying")
				}
				continue
			}
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, op+": order changed concurrently").
				WithDetails(pkgerrors.Violation{EntityID: orderID.String(), Field: "version"})
		}
		if err != nil {
			return nil, db.Classify(ctx, err, op)
		}
		return result, nil
	}
}

func (s *service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

// saveOrder writes updates under the optimistic version check.
func saveOrder(ctx context.Context, repo Repository, order *models.PurchaseOrder, updates map[string]any) error {
	if err := repo.UpdateOrder(ctx, order.ID, order.Version, updates); err != nil {
		return err
	}
	order.Version++
	return nil
}

func (s *service) record(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, input audit.RecordInput) error {
	if order != nil {
		id := order.ID
		input.OrderID = &id
	}
	_, err := s.audit.Record(ctx, tx, input)
	return err
}

func (s *service) recordStatusChange(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, from, to enums.PurchaseOrderStatus, actor, cause string) error {
	return s.record(ctx, tx, order, audit.RecordInput{
		EntityType: enums.AuditEntityPurchaseOrder,
		EntityID:   order.ID,
		Operation:  enums.AuditOpStatusChanged,
		Actor:      actor,
		Before:     map[string]any{"status": from},
		After:      map[string]any{"status": to},
		Metadata:   map[string]any{"cause": cause},
	})
}

func (s *service) logTransition(ctx context.Context, order *models.PurchaseOrder, op, actor string) {
	if s.logg == nil || order == nil {
		return
	}
	ctx = s.logg.WithOrderID(ctx, order.ID.String())
	ctx = s.logg.WithActor(ctx, actor)
	ctx = s.logg.WithOperation(ctx, op)
	ctx = s.logg.WithFields(ctx, map[string]any{
		"status":         order.Status,
		"payment_status": order.PaymentStatus,
		"version":        order.Version,
	})
	s.logg.Info(ctx, "purchase order updated")
}

func (s *service) nowUTC() time.Time {
	return s.now().UTC()
}

func eventActor(actor string) *outbox.ActorRef {
	return &outbox.ActorRef{Actor: actor}
}

func requireActor(actor string) (string, error) {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	return actor, nil
}

func orderNotFound(err error, orderID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "purchase order not found").
			WithDetails(pkgerrors.Violation{EntityID: orderID.String()})
	}
	return err
}

func invalidTransition(order *models.PurchaseOrder, op string, allowed ...enums.PurchaseOrderStatus) error {
	names := make([]string, 0, len(allowed))
	for _, st := range allowed {
		names = append(names, string(st))
	}
	return pkgerrors.NewViolation(pkgerrors.CodeInvalidTransition, fmt.Sprintf("%s is not allowed while the order is %s", op, order.Status), pkgerrors.Violation{
		EntityID:   order.ID.String(),
		Field:      "status",
		Current:    order.Status,
		Attempted:  op,
		Constraint: "status in (" + strings.Join(names, ", ") + ")",
	})
}

func findLine(order *models.PurchaseOrder, lineID uuid.UUID) (int, error) {
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			return i, nil
		}
	}
	return -1, pkgerrors.NewViolation(pkgerrors.CodeValidation, "line does not belong to the order", pkgerrors.Violation{
		EntityID:   order.ID.String(),
		Field:      "line_id",
		Attempted:  lineID.String(),
		Constraint: "line belongs to order",
	})
}

func optionalText(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
