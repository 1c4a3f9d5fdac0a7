package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/procurement-backend/pkg/db"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
)

const onceIndex = "ux_outbox_events_once_per_aggregate"

// DomainEvent is what services hand to Emit. Data is marshalled into the
// envelope as-is.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	Actor         *ActorRef
	Data          any
	OccurredAt    time.Time
}

func (e DomainEvent) validate() error {
	var err error
	if !e.EventType.IsValid() {
		err = multierr.Append(err, fmt.Errorf("unknown event type %q", e.EventType))
	}
	if !e.AggregateType.IsValid() {
		err = multierr.Append(err, fmt.Errorf("unknown aggregate type %q", e.AggregateType))
	}
	if e.AggregateID == uuid.Nil {
		err = multierr.Append(err, errors.New("aggregate id is required"))
	}
	if e.Data == nil {
		err = multierr.Append(err, errors.New("event data is required"))
	}
	return err
}

// Service queues domain events in the caller's transaction so they exist
// only if the business change commits.
type Service struct {
	repo *Repository
	logg *logger.Logger
	now  func() time.Time
}

func NewService(repo *Repository, logg *logger.Logger) *Service {
	return &Service{repo: repo, logg: logg, now: time.Now}
}

// Emit queues event inside tx.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	row, envelope, err := encodeEvent(event, s.now().UTC())
	if err != nil {
		return err
	}
	if err := s.repo.Insert(tx, row); err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"event_id":       envelope.EventID,
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
		}), "outbox event queued")
	}
	return nil
}

// EmitOnce queues event unless the aggregate already has one of the same
// type. Postgres backs this with a partial unique index, so a concurrent
// duplicate that slips past the check is dropped as well.
func (s *Service) EmitOnce(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	exists, err := s.repo.ExistsTx(tx, event.EventType, event.AggregateType, event.AggregateID)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}
	return s.emitDeduplicated(ctx, tx, event)
}

// emitDeduplicated inserts under a savepoint. A failed statement aborts a
// Postgres transaction, so the duplicate is rolled back to the savepoint
// before the caller's transaction carries on.
func (s *Service) emitDeduplicated(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	err := tx.Transaction(func(sp *gorm.DB) error {
		return s.Emit(ctx, sp, event)
	})
	if err == nil || !isOnceViolation(err) {
		return err
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"event_type":   event.EventType,
			"aggregate_id": event.AggregateID.String(),
		}), "duplicate once-per-aggregate event dropped")
	}
	return nil
}

// isOnceViolation matches the once index by name on Postgres. SQLite reports
// only the columns; the random primary key is the table's only other unique key.
func isOnceViolation(err error) bool {
	if dbpkg.IsUniqueViolation(err, onceIndex) {
		return true
	}
	return dbpkg.IsUniqueViolation(err, "") && strings.Contains(err.Error(), "outbox_events.aggregate_id")
}

func encodeEvent(event DomainEvent, now time.Time) (models.OutboxEvent, PayloadEnvelope, error) {
	if err := event.validate(); err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, err
	}
	data, err := json.Marshal(event.Data)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal %s data: %w", event.EventType, err)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = now
	}
	envelope := PayloadEnvelope{
		Version:    EnvelopeVersion,
		EventID:    uuid.NewString(),
		OccurredAt: occurredAt.UTC(),
		Actor:      event.Actor,
		Data:       data,
	}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return models.OutboxEvent{}, PayloadEnvelope{}, fmt.Errorf("marshal envelope: %w", err)
	}

	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       payload,
	}, envelope, nil
}
