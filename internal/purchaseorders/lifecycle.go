package purchaseorders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/internal/quantity"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

func (s *service) Create(ctx context.Context, actor string, input CreateInput) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	if input.SupplierID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "supplier id is required")
	}
	currency := input.Currency
	if currency == "" {
		currency = s.defaultCurrency
	}
	if !currency.IsValid() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "unsupported currency", pkgerrors.Violation{
			Field:     "currency",
			Attempted: currency,
		})
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "an order needs at least one line", pkgerrors.Violation{
			Field:      "lines",
			Attempted:  0,
			Constraint: "len(lines) >= 1",
		})
	}
	if err := validateLines(input.Lines); err != nil {
		return nil, err
	}

	now := s.nowUTC()
	number := strings.TrimSpace(input.OrderNumber)
	if number == "" {
		number = generateOrderNumber(now)
	}
	order := &models.PurchaseOrder{
		ID:            uuid.New(),
		OrderNumber:   number,
		SupplierID:    input.SupplierID,
		Currency:      currency,
		Status:        enums.PurchaseOrderStatusDraft,
		PaymentStatus: enums.OrderPaymentStatusUnpaid,
		TotalPaid:     decimal.Zero,
		Notes:         optionalText(input.Notes),
		CreatedBy:     actor,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	order.Lines = buildLines(order.ID, 0, input.Lines, now)
	order.TotalAmount = linesTotal(order.Lines)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.CreateOrder(ctx, order); err != nil {
			return err
		}
		if err := repo.CreateLines(ctx, order.Lines); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderCreated,
			Actor:      actor,
			After:      summaryFromModel(order),
		})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "ux_purchase_orders_order_number") || db.IsUniqueViolation(err, "order_number") {
			return nil, pkgerrors.NewViolation(pkgerrors.CodeConflict, "order number already exists", pkgerrors.Violation{
				Field:     "order_number",
				Attempted: number,
			})
		}
		return nil, db.Classify(ctx, err, "create purchase order")
	}
	s.logTransition(ctx, order, "create", actor)
	return summaryFromModel(order), nil
}

func (s *service) AddLines(ctx context.Context, actor string, orderID uuid.UUID, lines []LineInput) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	order, err := s.mutate(ctx, orderID, "add lines", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		if order.Status != enums.PurchaseOrderStatusDraft {
			return invalidTransition(order, "add_lines", enums.PurchaseOrderStatusDraft)
		}
		maxPos := 0
		for _, l := range order.Lines {
			if l.Position > maxPos {
				maxPos = l.Position
			}
		}
		added := buildLines(order.ID, maxPos, lines, s.nowUTC())
		if err := repo.CreateLines(ctx, added); err != nil {
			return err
		}
		before := order.TotalAmount
		after := linesTotal(append(append([]models.PurchaseOrderLine{}, order.Lines...), added...))
		if err := saveOrder(ctx, repo, order, map[string]any{"total_amount": after}); err != nil {
			return err
		}
		ids := make([]string, 0, len(added))
		for _, l := range added {
			ids = append(ids, l.ID.String())
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpLinesAdded,
			Actor:      actor,
			Before:     map[string]any{"total_amount": before.StringFixed(2), "line_count": len(order.Lines)},
			After:      map[string]any{"total_amount": after.StringFixed(2), "line_count": len(order.Lines) + len(added)},
			Metadata:   map[string]any{"line_ids": ids},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "add_lines", actor)
	return summaryFromModel(order), nil
}

func (s *service) Confirm(ctx context.Context, actor string, orderID uuid.UUID, input ConfirmInput) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	order, err := s.mutate(ctx, orderID, "confirm purchase order", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		if order.Status != enums.PurchaseOrderStatusDraft {
			return invalidTransition(order, "confirm", enums.PurchaseOrderStatusDraft)
		}
		if len(order.Lines) == 0 {
			return pkgerrors.NewViolation(pkgerrors.CodeValidation, "an order needs at least one line", pkgerrors.Violation{
				EntityID:   order.ID.String(),
				Field:      "lines",
				Current:    0,
				Constraint: "len(lines) >= 1",
			})
		}
		now := s.nowUTC()
		if err := saveOrder(ctx, repo, order, map[string]any{
			"status":             enums.PurchaseOrderStatusConfirmed,
			"confirmed_at":       now,
			"allow_over_receipt": input.AllowOverReceipt,
			"total_amount":       linesTotal(order.Lines),
		}); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderConfirmed,
			Actor:      actor,
			Before:     map[string]any{"status": order.Status},
			After:      map[string]any{"status": enums.PurchaseOrderStatusConfirmed, "allow_over_receipt": input.AllowOverReceipt},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "confirm", actor)
	return summaryFromModel(order), nil
}

func (s *service) Complete(ctx context.Context, actor string, orderID uuid.UUID, input CompleteInput) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	policy := s.policy
	if input.PaymentPolicy != nil {
		policy = *input.PaymentPolicy
	}
	if !policy.IsValid() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "unknown payment policy", pkgerrors.Violation{
			Field:     "payment_policy",
			Attempted: policy,
		})
	}

	order, err := s.mutate(ctx, orderID, "complete purchase order", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		lines := quantity.FromModels(order.Lines)
		switch order.Status {
		case enums.PurchaseOrderStatusReceived:
		case enums.PurchaseOrderStatusDraft,
			enums.PurchaseOrderStatusConfirmed,
			enums.PurchaseOrderStatusPartialReceived:
			return incompleteReceipt(order, lines)
		default:
			// completed, cancelled and short_closed are past the gate
			return invalidTransition(order, "complete", enums.PurchaseOrderStatusReceived)
		}
		if !quantity.OrderCompletionEligible(lines) {
			return incompleteReceipt(order, lines)
		}

		totalPaid, paymentStatus, err := s.payments.Totals(ctx, tx, order)
		if err != nil {
			return err
		}
		if policy == enums.PaymentPolicyFullyPaid && paymentStatus != enums.OrderPaymentStatusPaid {
			return pkgerrors.NewViolation(pkgerrors.CodePaymentPolicyViolation, "order must be fully paid before completion", pkgerrors.Violation{
				EntityID:   order.ID.String(),
				Field:      "total_paid",
				Current:    totalPaid.StringFixed(2),
				Attempted:  order.TotalAmount.StringFixed(2),
				Constraint: "payment_status = paid under policy fully_paid",
			})
		}

		now := s.nowUTC()
		from := order.Status
		notes := optionalText(input.Notes)
		if err := saveOrder(ctx, repo, order, map[string]any{
			"status":           enums.PurchaseOrderStatusCompleted,
			"completed_at":     now,
			"completed_by":     actor,
			"completion_notes": notes,
			"total_paid":       totalPaid,
			"payment_status":   paymentStatus,
		}); err != nil {
			return err
		}
		if err := s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderCompleted,
			Actor:      actor,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": enums.PurchaseOrderStatusCompleted},
			Metadata: map[string]any{
				"payment_policy": policy,
				"payment_status": paymentStatus,
				"total_paid":     totalPaid.StringFixed(2),
				"notes":          input.Notes,
			},
		}); err != nil {
			return err
		}
		return s.outbox.EmitOnce(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderCompleted,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         eventActor(actor),
			OccurredAt:    now,
			Data: payloads.OrderCompletedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				SupplierID:    order.SupplierID,
				Currency:      order.Currency,
				TotalAmount:   order.TotalAmount,
				TotalPaid:     totalPaid,
				PaymentStatus: paymentStatus,
				PaymentPolicy: policy,
				CompletedBy:   actor,
				CompletedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "complete", actor)
	return summaryFromModel(order), nil
}

func (s *service) ShortClose(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "short-close reason is required")
	}
	order, err := s.mutate(ctx, orderID, "short-close purchase order", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		switch order.Status {
		case enums.PurchaseOrderStatusPartialReceived, enums.PurchaseOrderStatusReceived:
		default:
			return invalidTransition(order, "short_close", enums.PurchaseOrderStatusPartialReceived, enums.PurchaseOrderStatusReceived)
		}
		from := order.Status
		summary := quantity.Summarize(quantity.FromModels(order.Lines))
		if err := saveOrder(ctx, repo, order, map[string]any{
			"status":             enums.PurchaseOrderStatusShortClosed,
			"short_closed_at":    s.nowUTC(),
			"short_close_reason": reason,
		}); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderShortClosed,
			Actor:      actor,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": enums.PurchaseOrderStatusShortClosed},
			Metadata:   map[string]any{"reason": reason, "outstanding_quantity": summary.Outstanding},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "short_close", actor)
	return summaryFromModel(order), nil
}

func (s *service) Cancel(ctx context.Context, actor string, orderID uuid.UUID, reason string) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	reason = strings.TrimSpace(reason)
	order, err := s.mutate(ctx, orderID, "cancel purchase order", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		switch order.Status {
		case enums.PurchaseOrderStatusDraft:
		case enums.PurchaseOrderStatusConfirmed:
			summary := quantity.Summarize(quantity.FromModels(order.Lines))
			if summary.Received > 0 {
				return cancellationNotAllowed(order, "received_quantity", summary.Received)
			}
			paid, err := s.payments.CompletedCount(ctx, tx, order.ID)
			if err != nil {
				return err
			}
			if paid > 0 {
				return cancellationNotAllowed(order, "completed_payments", paid)
			}
		default:
			return cancellationNotAllowed(order, "status", order.Status)
		}
		from := order.Status
		if err := saveOrder(ctx, repo, order, map[string]any{
			"status":              enums.PurchaseOrderStatusCancelled,
			"cancelled_at":        s.nowUTC(),
			"cancellation_reason": optionalText(reason),
		}); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderCancelled,
			Actor:      actor,
			Before:     map[string]any{"status": from},
			After:      map[string]any{"status": enums.PurchaseOrderStatusCancelled},
			Metadata:   map[string]any{"reason": reason},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "cancel", actor)
	return summaryFromModel(order), nil
}

// Archive hides a cancelled order from default listings. Rows are kept.
func (s *service) Archive(ctx context.Context, actor string, orderID uuid.UUID) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	order, err := s.mutate(ctx, orderID, "archive purchase order", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		if order.Status != enums.PurchaseOrderStatusCancelled {
			return invalidTransition(order, "archive", enums.PurchaseOrderStatusCancelled)
		}
		if order.ArchivedAt != nil {
			return pkgerrors.NewViolation(pkgerrors.CodeInvalidTransition, "order is already archived", pkgerrors.Violation{
				EntityID: order.ID.String(),
				Field:    "archived_at",
				Current:  order.ArchivedAt.UTC(),
			})
		}
		now := s.nowUTC()
		if err := saveOrder(ctx, repo, order, map[string]any{"archived_at": now}); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPurchaseOrder,
			EntityID:   order.ID,
			Operation:  enums.AuditOpOrderArchived,
			Actor:      actor,
			After:      map[string]any{"archived_at": now},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "archive", actor)
	return summaryFromModel(order), nil
}

func validateLines(lines []LineInput) error {
	for i, l := range lines {
		field := fmt.Sprintf("lines[%d]", i)
		if strings.TrimSpace(l.CatalogItemID) == "" {
			return pkgerrors.NewViolation(pkgerrors.CodeValidation, "catalog item id is required", pkgerrors.Violation{
				Field: field + ".catalog_item_id",
			})
		}
		if l.OrderedQuantity <= 0 {
			return pkgerrors.NewViolation(pkgerrors.CodeValidation, "ordered quantity must be positive", pkgerrors.Violation{
				Field:      field + ".ordered_quantity",
				Attempted:  l.OrderedQuantity,
				Constraint: "ordered_quantity > 0",
			})
		}
		if l.UnitCost.IsNegative() {
			return pkgerrors.NewViolation(pkgerrors.CodeValidation, "unit cost cannot be negative", pkgerrors.Violation{
				Field:      field + ".unit_cost",
				Attempted:  l.UnitCost.String(),
				Constraint: "unit_cost >= 0",
			})
		}
	}
	return nil
}

func buildLines(orderID uuid.UUID, startPos int, inputs []LineInput, now time.Time) []models.PurchaseOrderLine {
	out := make([]models.PurchaseOrderLine, 0, len(inputs))
	for i, in := range inputs {
		out = append(out, models.PurchaseOrderLine{
			ID:              uuid.New(),
			OrderID:         orderID,
			Position:        startPos + i + 1,
			CatalogItemID:   strings.TrimSpace(in.CatalogItemID),
			Description:     strings.TrimSpace(in.Description),
			OrderedQuantity: in.OrderedQuantity,
			UnitCost:        in.UnitCost,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	}
	return out
}

func linesTotal(lines []models.PurchaseOrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.LineTotal())
	}
	return total.Round(2)
}

func generateOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("PO-%s-%s", now.Format("20060102"), suffix)
}

func incompleteReceipt(order *models.PurchaseOrder, lines []quantity.Line) error {
	summary := quantity.Summarize(lines)
	return pkgerrors.NewViolation(pkgerrors.CodeIncompleteReceipt, "goods are not fully received net of returns", pkgerrors.Violation{
		EntityID:   order.ID.String(),
		Field:      "net_received_quantity",
		Current:    summary.NetReceived,
		Attempted:  summary.Ordered,
		Constraint: "every line net received >= ordered",
	})
}

func cancellationNotAllowed(order *models.PurchaseOrder, field string, current any) error {
	return pkgerrors.NewViolation(pkgerrors.CodeCancellationNotAllowed, "order can only be cancelled while draft, or confirmed with nothing received or paid", pkgerrors.Violation{
		EntityID:   order.ID.String(),
		Field:      field,
		Current:    current,
		Attempted:  "cancel",
		Constraint: "status = draft or (status = confirmed, received = 0, completed payments = 0)",
	})
}
