package audit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/types"
)

// ErrTxRequired is returned when an entry is recorded outside a transaction.
var ErrTxRequired = errors.New("audit entries must be written inside the mutating transaction")

// Service appends and reads the audit trail.
type Service interface {
	Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditEntry, error)
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error)
	ListForEntity(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID) ([]models.AuditEntry, error)
}

// RecordInput is the data one audit entry captures.
type RecordInput struct {
	OrderID    *uuid.UUID
	EntityType enums.AuditEntityType
	EntityID   uuid.UUID
	Operation  enums.AuditOperation
	Actor      string
	Before     any
	After      any
	Metadata   map[string]any
}

type service struct {
	repo Repository
	now  func() time.Time
}

// NewService wires an audit service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("audit repository required")
	}
	return &service{repo: repo, now: time.Now}, nil
}

func (s *service) Record(ctx context.Context, tx *gorm.DB, input RecordInput) (*models.AuditEntry, error) {
	if tx == nil {
		return nil, ErrTxRequired
	}
	if !input.EntityType.IsValid() {
		return nil, fmt.Errorf("invalid audit entity type %q", input.EntityType)
	}
	if !input.Operation.IsValid() {
		return nil, fmt.Errorf("invalid audit operation %q", input.Operation)
	}
	if input.EntityID == uuid.Nil {
		return nil, fmt.Errorf("audit entity id is required")
	}
	actor := strings.TrimSpace(input.Actor)
	if actor == "" {
		return nil, fmt.Errorf("audit actor is required")
	}

	before, err := types.ToJSONMap(input.Before)
	if err != nil {
		return nil, fmt.Errorf("snapshot before state: %w", err)
	}
	after, err := types.ToJSONMap(input.After)
	if err != nil {
		return nil, fmt.Errorf("snapshot after state: %w", err)
	}

	entry := &models.AuditEntry{
		ID:         uuid.New(),
		OrderID:    input.OrderID,
		EntityType: input.EntityType,
		EntityID:   input.EntityID,
		Operation:  input.Operation,
		Actor:      actor,
		Before:     before,
		After:      after,
		Metadata:   types.JSONMap(input.Metadata),
		OccurredAt: s.now().UTC(),
	}
	if err := s.repo.WithTx(tx).Create(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (s *service) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.AuditEntry, error) {
	if orderID == uuid.Nil {
		return nil, fmt.Errorf("order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

func (s *service) ListForEntity(ctx context.Context, entityType enums.AuditEntityType, entityID uuid.UUID) ([]models.AuditEntry, error) {
	if !entityType.IsValid() {
		return nil, fmt.Errorf("invalid audit entity type %q", entityType)
	}
	return s.repo.ListByEntity(ctx, entityType, entityID)
}
