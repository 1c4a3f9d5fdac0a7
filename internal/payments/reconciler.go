package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/fundingaccounts"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// FundingLedger moves money on funding accounts inside a transaction.
type FundingLedger interface {
	Debit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, currency enums.Currency) (*fundingaccounts.Movement, error)
	Credit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, currency enums.Currency) (*fundingaccounts.Movement, error)
}

// RecordInput describes a supplier payment against an order.
type RecordInput struct {
	FundingAccountID uuid.UUID
	Amount           decimal.Decimal
	Currency         enums.Currency
	ExchangeRate     *decimal.Decimal
	Method           enums.PaymentMethod
	Reference        string
	Notes            string
	IdempotencyKey   string
	PaidAt           time.Time
	Actor            string
}

// RecordResult is the outcome of RecordPayment. Movement is nil on replay.
type RecordResult struct {
	Payment  *models.Payment
	Movement *fundingaccounts.Movement
	Replayed bool
}

// ReverseInput describes money returned to a funding account. Amount is in
// payment currency.
type ReverseInput struct {
	PaymentID uuid.UUID
	Amount    decimal.Decimal
	Reason    string
	ReturnID  *uuid.UUID
	Actor     string
}

// ReverseResult is the outcome of ReversePayment.
type ReverseResult struct {
	Payment       *models.Payment
	Reversal      *models.PaymentReversal
	Movement      *fundingaccounts.Movement
	FullyReversed bool
}

// Reconciler applies payment movements inside the caller's transaction. It
// never opens or commits a transaction of its own.
type Reconciler struct {
	repo    Repository
	funding FundingLedger
	now     func() time.Time
}

// NewReconciler wires a reconciler.
func NewReconciler(repo Repository, funding FundingLedger) (*Reconciler, error) {
	if repo == nil {
		return nil, fmt.Errorf("payment repository required")
	}
	if funding == nil {
		return nil, fmt.Errorf("funding ledger required")
	}
	return &Reconciler{repo: repo, funding: funding, now: time.Now}, nil
}

// RecordPayment debits the funding account and stores a completed payment.
// A repeated idempotency key with identical parameters returns the stored
// payment untouched.
func (r *Reconciler) RecordPayment(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, input RecordInput) (*RecordResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if order == nil {
		return nil, errors.New("order required")
	}
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "idempotency key is required")
	}
	if err := validateAmount(input.Amount, "amount"); err != nil {
		return nil, err
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	if !input.Method.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported payment method %q", input.Method)
	}
	if input.FundingAccountID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "funding account is required")
	}

	repo := r.repo.WithTx(tx)
	existing, err := repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if !sameParameters(existing, order.ID, input) {
			return nil, idempotencyConflict(key, existing.OrderID)
		}
		return &RecordResult{Payment: existing, Replayed: true}, nil
	}

	if !order.Status.AcceptsPayments() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeInvalidTransition, "payments are not accepted in the current order status", pkgerrors.Violation{
			EntityID:   order.ID.String(),
			Field:      "status",
			Current:    order.Status,
			Attempted:  "record_payment",
			Constraint: "status in (confirmed, partial_received, received, completed, short_closed)",
		})
	}
	rate, err := effectiveRate(order, input)
	if err != nil {
		return nil, err
	}

	movement, err := r.funding.Debit(ctx, tx, input.FundingAccountID, input.Amount, input.Currency)
	if err != nil {
		return nil, err
	}

	paidAt := input.PaidAt
	if paidAt.IsZero() {
		paidAt = r.now()
	}
	payment := &models.Payment{
		ID:                  uuid.New(),
		OrderID:             order.ID,
		FundingAccountID:    input.FundingAccountID,
		Amount:              input.Amount,
		Currency:            input.Currency,
		ExchangeRate:        rate,
		OrderCurrencyAmount: ToOrderCurrency(input.Amount, rate),
		Method:              input.Method,
		Reference:           optionalString(input.Reference),
		Notes:               optionalString(input.Notes),
		Status:              enums.PaymentStatusCompleted,
		IdempotencyKey:      key,
		RecordedBy:          input.Actor,
		PaidAt:              paidAt.UTC(),
	}
	if err := repo.Create(ctx, payment); err != nil {
		if isIdempotencyKeyViolation(err) {
			return nil, idempotencyConflict(key, order.ID)
		}
		return nil, err
	}
	return &RecordResult{Payment: payment, Movement: movement}, nil
}

// ReversePayment credits part or all of a payment back to its funding account.
func (r *Reconciler) ReversePayment(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder, input ReverseInput) (*ReverseResult, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if order == nil {
		return nil, errors.New("order required")
	}
	if err := validateAmount(input.Amount, "amount"); err != nil {
		return nil, err
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal reason is required")
	}

	repo := r.repo.WithTx(tx)
	payment, err := r.lockOrderPayment(ctx, repo, order.ID, input.PaymentID)
	if err != nil {
		return nil, err
	}
	reversals, err := repo.ListReversalsByPaymentID(ctx, payment.ID)
	if err != nil {
		return nil, err
	}
	remaining, remainingOrder := Remaining(*payment, reversals)
	if input.Amount.GreaterThan(remaining) {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "reversal exceeds the unreversed payment amount", pkgerrors.Violation{
			EntityID:   payment.ID.String(),
			Field:      "amount",
			Current:    remaining.StringFixed(2),
			Attempted:  input.Amount.StringFixed(2),
			Constraint: "0 < amount <= payment amount - reversed",
		})
	}

	movement, err := r.funding.Credit(ctx, tx, payment.FundingAccountID, input.Amount, payment.Currency)
	if err != nil {
		return nil, err
	}

	full := input.Amount.Equal(remaining)
	orderAmount := ToOrderCurrency(input.Amount, payment.ExchangeRate)
	if full || orderAmount.GreaterThan(remainingOrder) {
		// the last reversal absorbs conversion rounding so totals net to zero
		orderAmount = remainingOrder
	}
	reversal := &models.PaymentReversal{
		ID:                  uuid.New(),
		PaymentID:           payment.ID,
		OrderID:             order.ID,
		ReturnID:            input.ReturnID,
		Amount:              input.Amount,
		OrderCurrencyAmount: orderAmount,
		Reason:              reason,
		RecordedBy:          input.Actor,
		CreatedAt:           r.now().UTC(),
	}
	if err := repo.CreateReversal(ctx, reversal); err != nil {
		return nil, err
	}
	if full {
		if err := repo.UpdateStatus(ctx, payment.ID, enums.PaymentStatusReversed); err != nil {
			return nil, err
		}
		payment.Status = enums.PaymentStatusReversed
	}
	payment.Reversals = append(reversals, *reversal)
	return &ReverseResult{Payment: payment, Reversal: reversal, Movement: movement, FullyReversed: full}, nil
}

// RefundAmount converts an order-currency refund into payment currency and
// caps it at what is left of the payment. It fails when nothing is left.
func (r *Reconciler) RefundAmount(ctx context.Context, tx *gorm.DB, orderID, paymentID uuid.UUID, orderAmount decimal.Decimal) (decimal.Decimal, error) {
	repo := r.repo.WithTx(tx)
	payment, err := r.lockOrderPayment(ctx, repo, orderID, paymentID)
	if err != nil {
		return decimal.Zero, err
	}
	reversals, err := repo.ListReversalsByPaymentID(ctx, payment.ID)
	if err != nil {
		return decimal.Zero, err
	}
	remaining, _ := Remaining(*payment, reversals)
	if !remaining.IsPositive() {
		return decimal.Zero, pkgerrors.NewViolation(pkgerrors.CodeValidation, "payment has already been fully reversed", pkgerrors.Violation{
			EntityID:   payment.ID.String(),
			Field:      "amount",
			Current:    remaining.StringFixed(2),
			Constraint: "unreversed amount > 0",
		})
	}
	amount := ToPaymentCurrency(orderAmount, payment.ExchangeRate)
	if amount.GreaterThan(remaining) {
		amount = remaining
	}
	return amount, nil
}

// Totals recomputes total paid and payment status for order from storage.
func (r *Reconciler) Totals(ctx context.Context, tx *gorm.DB, order *models.PurchaseOrder) (decimal.Decimal, enums.OrderPaymentStatus, error) {
	repo := r.repo.WithTx(tx)
	payments, err := repo.ListByOrderID(ctx, order.ID)
	if err != nil {
		return decimal.Zero, "", err
	}
	reversals, err := repo.ListReversalsByOrderID(ctx, order.ID)
	if err != nil {
		return decimal.Zero, "", err
	}
	total := TotalPaid(payments, reversals)
	return total, Status(total, order.TotalAmount), nil
}

// CompletedCount reports how many payments still count as money sent.
func (r *Reconciler) CompletedCount(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error) {
	payments, err := r.repo.WithTx(tx).ListByOrderID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, p := range payments {
		if p.Status == enums.PaymentStatusCompleted {
			count++
		}
	}
	return count, nil
}

func (r *Reconciler) lockOrderPayment(ctx context.Context, repo Repository, orderID, paymentID uuid.UUID) (*models.Payment, error) {
	payment, err := repo.FindByIDForUpdate(ctx, paymentID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && payment.OrderID != orderID) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for order").
			WithDetails(pkgerrors.Violation{EntityID: paymentID.String()})
	}
	if err != nil {
		return nil, err
	}
	if !payment.Status.CountsTowardTotals() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "payment cannot be reversed in its current status", pkgerrors.Violation{
			EntityID:   payment.ID.String(),
			Field:      "status",
			Current:    payment.Status,
			Constraint: "status in (completed, reversed)",
		})
	}
	return payment, nil
}

// effectiveRate returns nil when payment and order share a currency.
func effectiveRate(order *models.PurchaseOrder, input RecordInput) (*decimal.Decimal, error) {
	if input.Currency == order.Currency {
		if input.ExchangeRate != nil && !input.ExchangeRate.Equal(decimal.NewFromInt(1)) {
			return nil, pkgerrors.NewViolation(pkgerrors.CodeValidation, "exchange rate must be omitted or 1 for same-currency payments", pkgerrors.Violation{
				EntityID:  order.ID.String(),
				Field:     "exchange_rate",
				Attempted: input.ExchangeRate.String(),
			})
		}
		return nil, nil
	}
	if input.ExchangeRate == nil || !input.ExchangeRate.IsPositive() {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeCurrencyMismatch, "payment currency differs from order currency and no positive exchange rate was given", pkgerrors.Violation{
			EntityID:   order.ID.String(),
			Field:      "currency",
			Current:    order.Currency,
			Attempted:  input.Currency,
			Constraint: "currency = order currency or exchange_rate > 0",
		})
	}
	rate := *input.ExchangeRate
	return &rate, nil
}

func validateAmount(amount decimal.Decimal, field string) error {
	if !amount.IsPositive() {
		return pkgerrors.NewViolation(pkgerrors.CodeValidation, field+" must be positive", pkgerrors.Violation{
			Field:      field,
			Attempted:  amount.String(),
			Constraint: field + " > 0",
		})
	}
	if !amount.Equal(amount.Round(2)) {
		return pkgerrors.NewViolation(pkgerrors.CodeValidation, field+" has more than two decimal places", pkgerrors.Violation{
			Field:     field,
			Attempted: amount.String(),
		})
	}
	return nil
}

func sameParameters(p *models.Payment, orderID uuid.UUID, input RecordInput) bool {
	if p.OrderID != orderID || p.FundingAccountID != input.FundingAccountID {
		return false
	}
	if !p.Amount.Equal(input.Amount) || p.Currency != input.Currency || p.Method != input.Method {
		return false
	}
	if deref(p.Reference) != strings.TrimSpace(input.Reference) {
		return false
	}
	switch {
	case p.ExchangeRate == nil && input.ExchangeRate == nil:
		return true
	case p.ExchangeRate == nil:
		return input.ExchangeRate.Equal(decimal.NewFromInt(1))
	case input.ExchangeRate == nil:
		return false
	default:
		return p.ExchangeRate.Equal(*input.ExchangeRate)
	}
}

func idempotencyConflict(key string, orderID uuid.UUID) error {
	return pkgerrors.NewViolation(pkgerrors.CodeIdempotencyConflict, "idempotency key already used with different parameters", pkgerrors.Violation{
		EntityID:   orderID.String(),
		Field:      "idempotency_key",
		Attempted:  key,
		Constraint: "one payment per idempotency key",
	})
}

func isIdempotencyKeyViolation(err error) bool {
	return db.IsUniqueViolation(err, IdempotencyKeyConstraint) || db.IsUniqueViolation(err, "idempotency_key")
}

func optionalString(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
