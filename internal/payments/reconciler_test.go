package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/fundingaccounts"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/dbtest"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

type reconcilerFixture struct {
	client     *db.Client
	reconciler *Reconciler
	ledger     *fundingaccounts.Ledger
	order      *models.PurchaseOrder
}

func newReconcilerFixture(t *testing.T) reconcilerFixture {
	t.Helper()
	client := dbtest.OpenClient(t)
	ledger := fundingaccounts.NewLedger(fundingaccounts.NewRepository(client.DB()))
	reconciler, err := NewReconciler(NewRepository(client.DB()), ledger)
	require.NoError(t, err)
	return reconcilerFixture{
		client:     client,
		reconciler: reconciler,
		ledger:     ledger,
		order: &models.PurchaseOrder{
			ID:          uuid.New(),
			Currency:    enums.CurrencyTZS,
			TotalAmount: dec("1000000.00"),
			Status:      enums.PurchaseOrderStatusConfirmed,
		},
	}
}

func (f reconcilerFixture) account(t *testing.T, currency enums.Currency, balance string) uuid.UUID {
	t.Helper()
	account := &models.FundingAccount{ID: uuid.New(), Name: "ops", Currency: currency, Balance: dec(balance)}
	require.NoError(t, fundingaccounts.NewRepository(f.client.DB()).Create(context.Background(), account))
	return account.ID
}

func (f reconcilerFixture) record(t *testing.T, input RecordInput) (*RecordResult, error) {
	t.Helper()
	var res *RecordResult
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = f.reconciler.RecordPayment(context.Background(), tx, f.order, input)
		return err
	})
	return res, err
}

func (f reconcilerFixture) reverse(t *testing.T, input ReverseInput) (*ReverseResult, error) {
	t.Helper()
	var res *ReverseResult
	err := f.client.WithTx(context.Background(), func(tx *gorm.DB) error {
		var err error
		res, err = f.reconciler.ReversePayment(context.Background(), tx, f.order, input)
		return err
	})
	return res, err
}

func (f reconcilerFixture) totals(t *testing.T) (decimal.Decimal, enums.OrderPaymentStatus) {
	t.Helper()
	total, status, err := f.reconciler.Totals(context.Background(), f.client.DB(), f.order)
	require.NoError(t, err)
	return total, status
}

func (f reconcilerFixture) balance(t *testing.T, id uuid.UUID) string {
	t.Helper()
	balance, _, err := f.ledger.GetBalance(context.Background(), id)
	require.NoError(t, err)
	return balance.StringFixed(2)
}

func basicInput(accountID uuid.UUID, amount, key string) RecordInput {
	return RecordInput{
		FundingAccountID: accountID,
		Amount:           dec(amount),
		Currency:         enums.CurrencyTZS,
		Method:           enums.PaymentMethodBankTransfer,
		Reference:        "TRX-1",
		IdempotencyKey:   key,
		Actor:            "accountant",
		PaidAt:           time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestRecordPaymentDebitsAccount(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1500000")

	res, err := f.record(t, basicInput(accountID, "400000", "k-1"))
	require.NoError(t, err)
	assert.False(t, res.Replayed)
	assert.Equal(t, enums.PaymentStatusCompleted, res.Payment.Status)
	assert.Equal(t, "400000.00", res.Payment.OrderCurrencyAmount.StringFixed(2))
	require.NotNil(t, res.Movement)
	assert.Equal(t, "1100000.00", res.Movement.BalanceAfter.StringFixed(2))
	assert.Equal(t, "1100000.00", f.balance(t, accountID))

	total, status := f.totals(t)
	assert.Equal(t, "400000.00", total.StringFixed(2))
	assert.Equal(t, enums.OrderPaymentStatusPartial, status)
}

func TestRecordPaymentReplayIsIdempotent(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000000")

	first, err := f.record(t, basicInput(accountID, "250000", "k-replay"))
	require.NoError(t, err)
	second, err := f.record(t, basicInput(accountID, "250000", "k-replay"))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Nil(t, second.Movement)
	assert.Equal(t, first.Payment.ID, second.Payment.ID)
	assert.Equal(t, "750000.00", f.balance(t, accountID))

	total, _ := f.totals(t)
	assert.Equal(t, "250000.00", total.StringFixed(2))
}

func TestRecordPaymentKeyReuseWithDifferentParams(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000000")

	_, err := f.record(t, basicInput(accountID, "250000", "k-dup"))
	require.NoError(t, err)
	_, err = f.record(t, basicInput(accountID, "300000", "k-dup"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeIdempotencyConflict))
	assert.Equal(t, "750000.00", f.balance(t, accountID))
}

func TestRecordPaymentInsufficientFunds(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "100")

	_, err := f.record(t, basicInput(accountID, "100.01", "k-short"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientFunds))
	assert.Equal(t, "100.00", f.balance(t, accountID))

	total, status := f.totals(t)
	assert.True(t, total.IsZero())
	assert.Equal(t, enums.OrderPaymentStatusUnpaid, status)
}

func TestRecordPaymentForeignCurrency(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyUSD, "1000")

	input := basicInput(accountID, "100", "k-usd")
	input.Currency = enums.CurrencyUSD
	_, err := f.record(t, input)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCurrencyMismatch))

	rate := dec("2600")
	input.ExchangeRate = &rate
	res, err := f.record(t, input)
	require.NoError(t, err)
	assert.Equal(t, "260000.00", res.Payment.OrderCurrencyAmount.StringFixed(2))
	assert.Equal(t, "900.00", f.balance(t, accountID))
}

func TestRecordPaymentAccountCurrencyMustMatchPayment(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyKES, "1000000")

	_, err := f.record(t, basicInput(accountID, "100", "k-kes"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeCurrencyMismatch))
}

func TestRecordPaymentRejectsInvalidInput(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000")

	cases := map[string]func(in *RecordInput){
		"zero amount":    func(in *RecordInput) { in.Amount = decimal.Zero },
		"negative":       func(in *RecordInput) { in.Amount = dec("-1") },
		"sub-cent":       func(in *RecordInput) { in.Amount = dec("1.005") },
		"missing key":    func(in *RecordInput) { in.IdempotencyKey = " " },
		"bad method":     func(in *RecordInput) { in.Method = "barter" },
		"missing source": func(in *RecordInput) { in.FundingAccountID = uuid.Nil },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			input := basicInput(accountID, "10", "k-"+name)
			mutate(&input)
			_, err := f.record(t, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestRecordPaymentRejectedInDraftAndCancelled(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000")

	for _, status := range []enums.PurchaseOrderStatus{enums.PurchaseOrderStatusDraft, enums.PurchaseOrderStatusCancelled} {
		f.order.Status = status
		_, err := f.record(t, basicInput(accountID, "10", "k-"+string(status)))
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition))
	}
	assert.Equal(t, "1000.00", f.balance(t, accountID))
}

func TestReversePaymentPartialThenFull(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000000")
	res, err := f.record(t, basicInput(accountID, "1000000", "k-rev"))
	require.NoError(t, err)

	_, status := f.totals(t)
	assert.Equal(t, enums.OrderPaymentStatusPaid, status)

	partial, err := f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("300000"), Reason: "damaged crate", Actor: "accountant"})
	require.NoError(t, err)
	assert.False(t, partial.FullyReversed)
	assert.Equal(t, enums.PaymentStatusCompleted, partial.Payment.Status)
	assert.Equal(t, "300000.00", f.balance(t, accountID))

	total, status := f.totals(t)
	assert.Equal(t, "700000.00", total.StringFixed(2))
	assert.Equal(t, enums.OrderPaymentStatusPartial, status)

	_, err = f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("700000.01"), Reason: "too much", Actor: "accountant"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	full, err := f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("700000"), Reason: "supplier refund", Actor: "accountant"})
	require.NoError(t, err)
	assert.True(t, full.FullyReversed)
	assert.Equal(t, enums.PaymentStatusReversed, full.Payment.Status)
	assert.Equal(t, "1000000.00", full.Payment.Amount.StringFixed(2))
	assert.Equal(t, "1000000.00", f.balance(t, accountID))

	total, status = f.totals(t)
	assert.True(t, total.IsZero())
	assert.Equal(t, enums.OrderPaymentStatusUnpaid, status)
}

func TestReversePaymentFullReversalAbsorbsRounding(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyUSD, "100")
	input := basicInput(accountID, "10", "k-round")
	input.Currency = enums.CurrencyUSD
	rate := dec("2599.999")
	input.ExchangeRate = &rate
	res, err := f.record(t, input)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("3.33"), Reason: "split", Actor: "accountant"})
		require.NoError(t, err)
	}
	last, err := f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("0.01"), Reason: "split", Actor: "accountant"})
	require.NoError(t, err)
	assert.True(t, last.FullyReversed)

	total, _ := f.totals(t)
	assert.True(t, total.IsZero(), "total paid %s", total)
}

func TestReversePaymentUnknownOrForeignPayment(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000")
	res, err := f.record(t, basicInput(accountID, "10", "k-foreign"))
	require.NoError(t, err)

	_, err = f.reverse(t, ReverseInput{PaymentID: uuid.New(), Amount: dec("1"), Reason: "x", Actor: "a"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	f.order = &models.PurchaseOrder{ID: uuid.New(), Currency: enums.CurrencyTZS, Status: enums.PurchaseOrderStatusConfirmed}
	_, err = f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("1"), Reason: "x", Actor: "a"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRefundAmountCapsAtRemaining(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyUSD, "1000")
	input := basicInput(accountID, "100", "k-refund")
	input.Currency = enums.CurrencyUSD
	rate := dec("2500")
	input.ExchangeRate = &rate
	res, err := f.record(t, input)
	require.NoError(t, err)

	ctx := context.Background()
	amount, err := f.reconciler.RefundAmount(ctx, f.client.DB(), f.order.ID, res.Payment.ID, dec("50000"))
	require.NoError(t, err)
	assert.Equal(t, "20.00", amount.StringFixed(2))

	amount, err = f.reconciler.RefundAmount(ctx, f.client.DB(), f.order.ID, res.Payment.ID, dec("500000"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", amount.StringFixed(2))

	_, err = f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("100"), Reason: "all", Actor: "a"})
	require.NoError(t, err)
	_, err = f.reconciler.RefundAmount(ctx, f.client.DB(), f.order.ID, res.Payment.ID, dec("1"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCompletedCount(t *testing.T) {
	f := newReconcilerFixture(t)
	accountID := f.account(t, enums.CurrencyTZS, "1000")
	res, err := f.record(t, basicInput(accountID, "10", "k-c1"))
	require.NoError(t, err)
	_, err = f.record(t, basicInput(accountID, "20", "k-c2"))
	require.NoError(t, err)
	_, err = f.reverse(t, ReverseInput{PaymentID: res.Payment.ID, Amount: dec("10"), Reason: "undo", Actor: "a"})
	require.NoError(t, err)

	count, err := f.reconciler.CompletedCount(context.Background(), f.client.DB(), f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
