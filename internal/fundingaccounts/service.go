package fundingaccounts

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/internal/audit"
	"github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/procurement-backend/pkg/errors"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes funding account management.
type Service interface {
	Open(ctx context.Context, actor string, input OpenInput) (*models.FundingAccount, error)
	Get(ctx context.Context, id uuid.UUID) (*models.FundingAccount, error)
	TopUp(ctx context.Context, actor string, id uuid.UUID, input TopUpInput) (*models.FundingAccount, error)
}

// OpenInput describes a new account.
type OpenInput struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Currency       enums.Currency  `json:"currency" validate:"required,enum"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

// TopUpInput adds money to an existing account.
type TopUpInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency enums.Currency  `json:"currency"`
	Note     string          `json:"note,omitempty"`
}

// ServiceParams bundles the collaborators of the account service.
type ServiceParams struct {
	Repo   Repository
	Ledger *Ledger
	Audit  audit.Service
	Tx     txRunner
	Logger *logger.Logger
}

type service struct {
	repo   Repository
	ledger *Ledger
	audit  audit.Service
	tx     txRunner
	logg   *logger.Logger
}

// NewService validates params and returns a funding account service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("funding account repository required")
	}
	if params.Audit == nil {
		return nil, fmt.Errorf("audit service required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	ledger := params.Ledger
	if ledger == nil {
		ledger = NewLedger(params.Repo)
	}
	return &service{
		repo:   params.Repo,
		ledger: ledger,
		audit:  params.Audit,
		tx:     params.Tx,
		logg:   params.Logger,
	}, nil
}

func (s *service) Open(ctx context.Context, actor string, input OpenInput) (*models.FundingAccount, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "account name is required")
	}
	if !input.Currency.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unsupported currency %q", input.Currency)
	}
	if input.OpeningBalance.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "opening balance cannot be negative")
	}
	if strings.TrimSpace(actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}

	account := &models.FundingAccount{
		ID:       uuid.New(),
		Name:     name,
		Currency: input.Currency,
		Balance:  input.OpeningBalance.Round(2),
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, account); err != nil {
			return err
		}
		_, err := s.audit.Record(ctx, tx, audit.RecordInput{
			EntityType: enums.AuditEntityFundingAccount,
			EntityID:   account.ID,
			Operation:  enums.AuditOpAccountOpened,
			Actor:      actor,
			After:      account,
		})
		return err
	})
	if err != nil {
		return nil, db.Classify(ctx, err, "open funding account")
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "funding_account_id", account.ID.String()), "funding account opened")
	}
	return account, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.FundingAccount, error) {
	account, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, db.Classify(ctx, notFound(err, id), "get funding account")
	}
	return account, nil
}

func (s *service) TopUp(ctx context.Context, actor string, id uuid.UUID, input TopUpInput) (*models.FundingAccount, error) {
	if strings.TrimSpace(actor) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "actor is required")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "top-up amount must be positive")
	}

	var account *models.FundingAccount
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		movement, err := s.ledger.Credit(ctx, tx, id, amount, input.Currency)
		if err != nil {
			return err
		}
		meta := map[string]any{"amount": amount.StringFixed(2)}
		if note := strings.TrimSpace(input.Note); note != "" {
			meta["note"] = note
		}
		if _, err := s.audit.Record(ctx, tx, audit.RecordInput{
			EntityType: enums.AuditEntityFundingAccount,
			EntityID:   id,
			Operation:  enums.AuditOpAccountCredited,
			Actor:      actor,
			Before:     map[string]any{"balance": movement.BalanceBefore.StringFixed(2)},
			After:      map[string]any{"balance": movement.BalanceAfter.StringFixed(2)},
			Metadata:   meta,
		}); err != nil {
			return err
		}
		account, err = s.repo.WithTx(tx).FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, db.Classify(ctx, err, "top up funding account")
	}
	return account, nil
}
