package purchaseorders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/internal/payments"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/payloads"
)

func (s *service) RecordPayment(ctx context.Context, actor string, orderID uuid.UUID, input PaymentInput) (*PaymentResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}

	var result *payments.RecordResult
	order, err := s.mutate(ctx, orderID, "record payment", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		currency := input.Currency
		if currency == "" {
			currency = order.Currency
		}
		paidAt := s.nowUTC()
		if input.PaidAt != nil {
			paidAt = input.PaidAt.UTC()
		}
		var err error
		result, err = s.payments.RecordPayment(ctx, tx, order, payments.RecordInput{
			FundingAccountID: input.FundingAccountID,
			Amount:           input.Amount,
			Currency:         currency,
			ExchangeRate:     input.ExchangeRate,
			Method:           input.Method,
			Reference:        input.Reference,
			Notes:            input.Notes,
			IdempotencyKey:   input.IdempotencyKey,
			PaidAt:           paidAt,
			Actor:            actor,
		})
		if err != nil {
			return err
		}
		if result.Replayed {
			return nil
		}

		before := map[string]any{"total_paid": order.TotalPaid.StringFixed(2), "payment_status": order.PaymentStatus}
		totalPaid, paymentStatus, err := s.payments.Totals(ctx, tx, order)
		if err != nil {
			return err
		}
		if err := saveOrder(ctx, repo, order, map[string]any{
			"total_paid":     totalPaid,
			"payment_status": paymentStatus,
		}); err != nil {
			return err
		}

		payment := result.Payment
		if err := s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityPayment,
			EntityID:   payment.ID,
			Operation:  enums.AuditOpPaymentRecorded,
			Actor:      actor,
			Before:     before,
			After:      map[string]any{"total_paid": totalPaid.StringFixed(2), "payment_status": paymentStatus},
			Metadata: map[string]any{
				"amount":                payment.Amount.StringFixed(2),
				"currency":              payment.Currency,
				"order_currency_amount": payment.OrderCurrencyAmount.StringFixed(2),
				"exchange_rate":         rateString(payment),
				"method":                payment.Method,
				"idempotency_key":       payment.IdempotencyKey,
			},
		}); err != nil {
			return err
		}
		if m := result.Movement; m != nil {
			if err := s.record(ctx, tx, order, audit.RecordInput{
				EntityType: enums.AuditEntityFundingAccount,
				EntityID:   m.AccountID,
				Operation:  enums.AuditOpAccountDebited,
				Actor:      actor,
				Before:     map[string]any{"balance": m.BalanceBefore.StringFixed(2)},
				After:      map[string]any{"balance": m.BalanceAfter.StringFixed(2)},
				Metadata:   map[string]any{"payment_id": payment.ID.String()},
			}); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentRecorded,
			AggregateType: enums.AggregatePurchaseOrder,
			AggregateID:   order.ID,
			Actor:         eventActor(actor),
			Data: payloads.PaymentRecordedEvent{
				OrderID:             order.ID,
				PaymentID:           payment.ID,
				FundingAccountID:    payment.FundingAccountID,
				Amount:              payment.Amount,
				Currency:            payment.Currency,
				OrderCurrencyAmount: payment.OrderCurrencyAmount,
				Method:              payment.Method,
				TotalPaid:           totalPaid,
				PaymentStatus:       paymentStatus,
				PaidAt:              payment.PaidAt,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	if !result.Replayed {
		s.logTransition(ctx, order, "record_payment", actor)
	}
	return &PaymentResult{Payment: result.Payment, Replayed: result.Replayed, Order: summaryFromModel(order)}, nil
}

func (s *service) ReversePayment(ctx context.Context, actor string, orderID uuid.UUID, input ReverseInput) (*ReversalResult, error) {
	actor, err := requireActor(actor)
	if err != nil {
		return nil, err
	}

	var result *payments.ReverseResult
	order, err := s.mutate(ctx, orderID, "reverse payment", func(ctx context.Context, tx *gorm.DB, repo Repository, order *models.PurchaseOrder) error {
		var err error
		result, err = s.payments.ReversePayment(ctx, tx, order, payments.ReverseInput{
			PaymentID: input.PaymentID,
			Amount:    input.Amount,
			Reason:    input.Reason,
			Actor:     actor,
		})
		if err != nil {
			return err
		}
		totalPaid, paymentStatus, err := s.payments.Totals(ctx, tx, order)
		if err != nil {
			return err
		}
		if err := saveOrder(ctx, repo, order, map[string]any{
			"total_paid":     totalPaid,
			"payment_status": paymentStatus,
		}); err != nil {
			return err
		}
		return s.recordReversal(ctx, tx, order, result, actor)
	})
	if err != nil {
		return nil, err
	}
	s.logTransition(ctx, order, "reverse_payment", actor)
	return &ReversalResult{Reversal: result.Reversal, Payment: result.Payment, Order: summaryFromModel(order)}, nil
}

func (s *service) recordReversal(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, res *payments.ReverseResult, actor string) error {
	meta := map[string]any{
		"reversal_id":           res.Reversal.ID.String(),
		"amount":                res.Reversal.Amount.StringFixed(2),
		"order_currency_amount": res.Reversal.OrderCurrencyAmount.StringFixed(2),
		"reason":                res.Reversal.Reason,
		"fully_reversed":        res.FullyReversed,
	}
	if res.Reversal.ReturnID != nil {
		meta["return_id"] = res.Reversal.ReturnID.String()
	}
	if err := s.record(ctx, tx, order, audit.RecordInput{
		EntityType: enums.AuditEntityPayment,
		EntityID:   res.Payment.ID,
		Operation:  enums.AuditOpPaymentReversed,
		Actor:      actor,
		After:      map[string]any{"status": res.Payment.Status},
		Metadata:   meta,
	}); err != nil {
		return err
	}
	if m := res.Movement; m != nil {
		return s.record(ctx, tx, order, audit.RecordInput{
			EntityType: enums.AuditEntityFundingAccount,
			EntityID:   m.AccountID,
			Operation:  enums.AuditOpAccountRefunded,
			Actor:      actor,
			Before:     map[string]any{"balance": m.BalanceBefore.StringFixed(2)},
			After:      map[string]any{"balance": m.BalanceAfter.StringFixed(2)},
			Metadata:   map[string]any{"payment_id": res.Payment.ID.String(), "reversal_id": res.Reversal.ID.String()},
		})
	}
	return nil
}

func rateString(p *models.Payment) string {
	if p.ExchangeRate == nil {
		return ""
	}
	return p.ExchangeRate.String()
}
