package fundingaccounts

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
)

// Movement describes one balance change applied inside a transaction.
type Movement struct {
	AccountID     uuid.UUID       `json:"account_id"`
	Currency      enums.Currency  `json:"currency"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balance_before"`
	BalanceAfter  decimal.Decimal `json:"balance_after"`
}

// Ledger moves money in and out of accounts within a caller-owned transaction.
type Ledger struct {
	repo Repository
}

// NewLedger builds a Ledger over repo.
func NewLedger(repo Repository) *Ledger {
	return &Ledger{repo: repo}
}

// GetBalance reads the current balance without locking.
func (l *Ledger) GetBalance(ctx context.Context, accountID uuid.UUID) (decimal.Decimal, enums.Currency, error) {
	account, err := l.repo.FindByID(ctx, accountID)
	if err != nil {
		return decimal.Zero, "", notFound(err, accountID)
	}
	return account.Balance, account.Currency, nil
}

// Debit locks the account and withdraws amount. Nothing is written when the
// balance is short or the currency differs.
func (l *Ledger) Debit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, currency enums.Currency) (*Movement, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "debit amount must be positive")
	}
	repo := l.repo.WithTx(tx)
	account, err := repo.FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, notFound(err, accountID)
	}
	if account.Currency != currency {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeCurrencyMismatch, "funding account currency differs from payment currency", pkgerrors.Violation{
			EntityID:   accountID.String(),
			Field:      "currency",
			Current:    account.Currency,
			Attempted:  currency,
			Constraint: "account currency = payment currency",
		})
	}
	if account.Balance.LessThan(amount) {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeInsufficientFunds, "funding account balance is lower than the payment amount", pkgerrors.Violation{
			EntityID:   accountID.String(),
			Field:      "balance",
			Current:    account.Balance.StringFixed(2),
			Attempted:  amount.StringFixed(2),
			Constraint: "balance >= amount",
		})
	}
	next := account.Balance.Sub(amount)
	if err := repo.UpdateBalance(ctx, accountID, next); err != nil {
		return nil, err
	}
	return &Movement{
		AccountID:     accountID,
		Currency:      account.Currency,
		Amount:        amount.Neg(),
		BalanceBefore: account.Balance,
		BalanceAfter:  next,
	}, nil
}

// Credit locks the account and deposits amount.
func (l *Ledger) Credit(ctx context.Context, tx *gorm.DB, accountID uuid.UUID, amount decimal.Decimal, currency enums.Currency) (*Movement, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit amount must be positive")
	}
	repo := l.repo.WithTx(tx)
	account, err := repo.FindByIDForUpdate(ctx, accountID)
	if err != nil {
		return nil, notFound(err, accountID)
	}
	if account.Currency != currency {
		return nil, pkgerrors.NewViolation(pkgerrors.CodeCurrencyMismatch, "funding account currency differs from credit currency", pkgerrors.Violation{
			EntityID:   accountID.String(),
			Field:      "currency",
			Current:    account.Currency,
			Attempted:  currency,
			Constraint: "account currency = credit currency",
		})
	}
	next := account.Balance.Add(amount)
	if err := repo.UpdateBalance(ctx, accountID, next); err != nil {
		return nil, err
	}
	return &Movement{
		AccountID:     accountID,
		Currency:      account.Currency,
		Amount:        amount,
		BalanceBefore: account.Balance,
		BalanceAfter:  next,
	}, nil
}

func notFound(err error, accountID uuid.UUID) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "funding account not found").
			WithDetails(pkgerrors.Violation{EntityID: accountID.String()})
	}
	return err
}
