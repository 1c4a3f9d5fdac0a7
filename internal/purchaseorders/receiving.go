package purchaseorders

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/internal/payments"
	"github.com/angelmondragon/procurement-backend/internal/quantity"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

type receipt struct {
	index int
	delta int64
	split quantity.Receipt
}

func (s *service) Receive(ctx context.Context, actor string, orderID uuid.UUID, input ReceiveInput) (*OrderSummary, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	if len(input.Lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one line delta is required")
	}
	seen := make(map[uuid.UUID]struct{}, len(input.Lines))
	for _, d := range input.Lines {
		if _, dup := seen[d.LineID]; dup {
			return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "line appears more than once in the receipt", pkgerrors.Violation{
				EntityID:   d.LineID.String(),
				Field:      "line_id",
				Constraint: "unique line ids per receipt",
			})
		}
		seen[d.LineID] = struct{}{}
		if d.Quantity <= 0 {
			_, err := quantity.CheckReceipt(quantity.Line{ID: d.LineID}, d.Quantity, false)
			return nil, err
		}
	}

	order, err := s.mutate(ctx, orderID, "receive goods", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		if !order.Status.AcceptsReceipts() {
			return invalidTransition(order, "receive", enums.PurchaseOrderStatusConfirmed, enums.PurchaseOrderStatusPartialReceived)
		}
		allowOver := input.OverrideOverReceipt || order.AllowOverReceipt

		// validate every delta before the first write
		receipts := make([]receipt, 0, len(input.Lines))
		for _, d := range input.Lines {
			idx, err := findLine(order, d.LineID)
			if err != nil {
				return err
			}
			split, err := quantity.CheckReceipt(quantity.FromModel(order.Lines[idx]), d.Quantity, allowOver)
			if err != nil {
				return err
			}
			receipts = append(receipts, receipt{index: idx, delta: d.Quantity, split: split})
		}

		for _, r := range receipts {
			line := &order.Lines[r.index]
			before := line.ReceivedQuantity
			line.ReceivedQuantity += r.delta
			if err := repo.UpdateLineQuantities(ctx, line.ID, line.ReceivedQuantity, line.ReturnedQuantity); err != nil {
				return err
			}
			meta := map[string]any{"delta": r.delta}
			if r.split.Replacement > 0 {
				meta["replacement_quantity"] = r.split.Replacement
			}
			if r.split.Over > 0 {
				meta["over_receipt"] = true
				meta["over_received_by"] = r.split.Over
			}
			if r.split.Excess() > 0 {
				meta["override_source"] = overrideSource(input.OverrideOverReceipt, order.AllowOverReceipt)
			}
			if note := strings.TrimSpace(input.Notes); note != "" {
				meta["notes"] = note
			}
			if err := s.record(ctx, tx, order, audit.RecordInput{
				EntityType: enums.AuditEntityOrderLine,
				EntityID:   line.ID,
				Operation:  enums.AuditOpLineReceived,
				Actor:      actor,
				Before:     map[string]any{"received_quantity": before},
				After:      map[string]any{"received_quantity": line.ReceivedQuantity},
				Metadata:   meta,
			}); err != nil {
				return err
			}
		}

		from := order.Status
		to := quantity.DerivedStatus(from, quantity.FromModels(order.Lines))
		if err := saveOrder(ctx, repo, order, map[string]any{"status": to}); err != nil {
			return err
		}
		if to != from {
			order.Status = to
			return s.recordStatusChange(ctx, tx, order, from, to, actor, "receive")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "receive", actor)
	return summaryFromModel(order), nil
}

func (s *service) ReturnItems(ctx context.Context, actor string, orderID uuid.UUID, input ReturnInput) (*ReturnResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "unknown return reason", pkgerrors.Violation{
			Field:     "reason",
			Attempted: input.Reason,
		})
	}
	if input.Quantity <= 0 {
		return nil, quantity.CheckReturn(quantity.Line{ID: input.LineID}, input.Quantity)
	}
	if input.RefundPaymentID != nil && !input.Reason.ImpliesRefund() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "return reason does not carry a refund", pkgerrors.Violation{
			Field:      "refund_payment_id",
			Current:    input.Reason,
			Constraint: "reason in (damage, wrong_item, quality_fail, defect)",
		})
	}

	var (
		ret      *models.PurchaseOrderReturn
		reversal *models.PaymentReversal
	)
	order, err := s.mutate(ctx, orderID, "return items", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		ret, reversal = nil, nil
		switch order.Status {
		case enums.PurchaseOrderStatusPartialReceived, enums.PurchaseOrderStatusReceived:
		default:
			return invalidTransition(order, "return", enums.PurchaseOrderStatusPartialReceived, enums.PurchaseOrderStatusReceived)
		}
		idx, err := findLine(order, input.LineID)
		if err != nil {
			return err
		}
		line := &order.Lines[idx]
		if err := quantity.CheckReturn(quantity.FromModel(*line), input.Quantity); err != nil {
			return err
		}

		now := s.nowUTC()
		ret = &models.PurchaseOrderReturn{
			ID:         uuid.New(),
			OrderID:    order.ID,
			LineID:     line.ID,
			Quantity:   input.Quantity,
			Reason:     input.Reason,
			Notes:      optionalText(input.Notes),
			ReturnedBy: actor,
			CreatedAt:  now,
		}

		updates := map[string]any{}
		var refund *decimal.Decimal
		if input.RefundPaymentID != nil {
			orderAmount := line.UnitCost.Mul(decimal.NewFromInt(input.Quantity)).Round(2)
			amount, err := s.payments.RefundAmount(ctx, tx, order.ID, *input.RefundPaymentID, orderAmount)
			if err != nil {
				return err
			}
			returnID := ret.ID
			res, err := s.payments.ReversePayment(ctx, tx, order, payments.ReverseInput{
				PaymentID: *input.RefundPaymentID,
				Amount:    amount,
				Reason:    "return: " + string(input.Reason),
				ReturnID:  &returnID,
				Actor:     actor,
			})
			if err != nil {
				return err
			}
			reversal = res.Reversal
			ret.ReversalID = &reversal.ID
			refund = &reversal.Amount
			if err := s.recordReversal(ctx, tx, order, res, actor); err != nil {
				return err
			}
			totalPaid, paymentStatus, err := s.payments.Totals(ctx, tx, order)
			if err != nil {
				return err
			}
			updates["total_paid"] = totalPaid
			updates["payment_status"] = paymentStatus
		}

		beforeReturned := line.ReturnedQuantity
		line.ReturnedQuantity += input.Quantity
		if err := repo.UpdateLineQuantities(ctx, line.ID, line.ReceivedQuantity, line.ReturnedQuantity); err != nil {
			return err
		}
		if err := repo.CreateReturn(ctx, ret); err != nil {
			return err
		}

		from := order.Status
		to := quantity.DerivedStatus(from, quantity.FromModels(order.Lines))
		updates["status"] = to
		if err := saveOrder(ctx, repo, order, updates); err != nil {
			return err
		}

		meta := map[string]any{
			"line_id":  line.ID.String(),
			"quantity": input.Quantity,
			"reason":   input.Reason,
		}
		if refund != nil {
			meta["refund_payment_id"] = input.RefundPaymentID.String()
			meta["refund_amount"] = refund.StringFixed(2)
		}
		if err := s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityReturn,
			EntityID:   ret.ID,
			Operation:  enums.AuditOpItemsReturned,
			Actor:      actor,
			Before:     map[string]any{"returned_quantity": beforeReturned},
			After:      map[string]any{"returned_quantity": line.ReturnedQuantity},
			Metadata:   meta,
		}); err != nil {
			return err
		}
		if to != from {
			order.Status = to
			if err := s.recordStatusChange(ctx, tx, order, from, to, actor, "return"); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReturned,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         eventActor(actor),
			OccurredAt:    now,
			Data: payloads.OrderReturnedEvent{
				OrderID:      order.ID,
				ReturnID:     ret.ID,
				LineID:       line.ID,
				Quantity:     input.Quantity,
				Reason:       input.Reason,
				RefundAmount: refund,
				ReturnedAt:   now,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "return", actor)
	return &ReturnResult{Return: ret, Reversal: reversal, Order: summaryFromModel(order)}, nil
}

func (s *service) RecordQualityCheck(ctx context.Context, actor string, orderID uuid.UUID, input QualityCheckInput) (*models.QualityCheck, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}
	if input.InspectedCount <= 0 {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "inspected count must be positive", pkgerrors.Violation{
			Field:      "inspected_count",
			Attempted:  input.InspectedCount,
			Constraint: "inspected_count > 0",
		})
	}
	if input.FailedCount < 0 || input.FailedCount > input.InspectedCount {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "failed count must be between zero and the inspected count", pkgerrors.Violation{
			Field:      "failed_count",
			Current:    input.InspectedCount,
			Attempted:  input.FailedCount,
			Constraint: "0 <= failed_count <= inspected_count",
		})
	}

	var check *models.QualityCheck
	_, err = s.mutate(ctx, orderID, "record quality check", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		switch order.Status {
		case enums.PurchaseOrderStatusDraft, enums.PurchaseOrderStatusCancelled:
			return invalidTransition(order, "quality_check",
				enums.PurchaseOrderStatusConfirmed,
				enums.PurchaseOrderStatusPartialReceived,
				enums.PurchaseOrderStatusReceived,
				enums.PurchaseOrderStatusCompleted,
				enums.PurchaseOrderStatusShortClosed)
		}
		idx, err := findLine(order, input.LineID)
		if err != nil {
			return err
		}
		line := order.Lines[idx]
		if input.InspectedCount > line.ReceivedQuantity {
			return pkgerrors.NewViolation(pkgerrors.CodeQuantityInvariant, "cannot inspect more units than were received", pkgerrors.Violation{
				EntityID:   line.ID.String(),
				Field:      "inspected_count",
				Current:    line.ReceivedQuantity,
				Attempted:  input.InspectedCount,
				Constraint: "inspected_count <= received_quantity",
			})
		}
		check = &models.QualityCheck{
			ID:             uuid.New(),
			OrderID:        order.ID,
			LineID:         line.ID,
			Passed:         input.Passed,
			InspectedCount: input.InspectedCount,
			FailedCount:    input.FailedCount,
			Notes:          optionalText(input.Notes),
			CheckedBy:      actor,
			CreatedAt:      s.nowUTC(),
		}
		if err := repo.CreateQualityCheck(ctx, check); err != nil {
			return err
		}
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityQualityCheck,
			EntityID:   check.ID,
			Operation:  enums.AuditOpQualityChecked,
			Actor:      actor,
			After:      check,
			Metadata:   map[string]any{"line_id": line.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return check, nil
}

func overrideSource(perCall, perOrder bool) string {
	if perCall {
		return "receipt"
	}
	if perOrder {
		return "order"
	}
	return ""
}
