package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize    = 50
	defaultPollInterval = 500 * time.Millisecond
	defaultMaxAttempts  = 10
	publishTimeout      = 15 * time.Second
	maxRetryDelay       = 10 * time.Second
	jitterWindow        = 250 * time.Millisecond
)

type txRunner interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubsubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type eventStore interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type deadLetterStore interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type eventResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

// topicPublisher sends one message and waits for the server ack.
type topicPublisher interface {
	Publish(ctx context.Context, msg *gcppubsub.Message) (string, error)
}

type topicResolver func(topic string) topicPublisher

type RelayParams struct {
	Outbox      config.OutboxConfig
	Logger      *logger.Logger
	DB          txRunner
	PubSub      pubsubClient
	Events      eventStore
	Registry    eventResolver
	DeadLetters deadLetterStore
	Topics      topicResolver
}

// Relay moves committed outbox rows to Pub/Sub. Events that share an order id
// are published with that id as ordering key and leave in commit order.
type Relay struct {
	logg        *logger.Logger
	db          txRunner
	pubsub      pubsubClient
	events      eventStore
	registry    eventResolver
	deadLetters deadLetterStore
	topics      topicResolver
	batchSize   int
	maxAttempts int
	poll        time.Duration
	rng         *rand.Rand
}

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

type batchStats struct {
	claimed      int
	published    int
	retried      int
	deferred     int
	deadLettered int
}

func (s batchStats) progressed() bool {
	return s.published+s.deadLettered > 0
}

func NewRelay(params RelayParams) (*Relay, error) {
	var err error
	if params.Logger == nil {
		err = multierr.Append(err, errors.New("logger is required"))
	}
	if params.DB == nil {
		err = multierr.Append(err, errors.New("database client is required"))
	}
	if params.PubSub == nil {
		err = multierr.Append(err, errors.New("pubsub client is required"))
	}
	if params.Events == nil {
		err = multierr.Append(err, errors.New("outbox repository is required"))
	}
	if params.Registry == nil {
		err = multierr.Append(err, errors.New("event registry is required"))
	}
	if params.DeadLetters == nil {
		err = multierr.Append(err, errors.New("dlq repository is required"))
	}
	if err != nil {
		return nil, err
	}

	topics := params.Topics
	if topics == nil {
		topics = pubsubTopics(params.PubSub)
	}

	r := &Relay{
		logg:        params.Logger,
		db:          params.DB,
		pubsub:      params.PubSub,
		events:      params.Events,
		registry:    params.Registry,
		deadLetters: params.DeadLetters,
		topics:      topics,
		batchSize:   params.Outbox.BatchSize,
		maxAttempts: params.Outbox.MaxAttempts,
		poll:        time.Duration(params.Outbox.PollIntervalMS) * time.Millisecond,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.maxAttempts <= 0 {
		r.maxAttempts = defaultMaxAttempts
	}
	if r.poll <= 0 {
		r.poll = defaultPollInterval
	}
	return r, nil
}

// Run relays batches until ctx is cancelled. A full batch is followed
// immediately by the next one; failures back off exponentially.
func (r *Relay) Run(ctx context.Context) error {
	if err := r.checkDependencies(ctx); err != nil {
		return err
	}

	delay := retryDelay{base: r.poll, max: maxRetryDelay}
	for {
		if err := ctx.Err(); err != nil {
			r.logg.Info(ctx, "outbox relay stopping")
			return err
		}

		var wait time.Duration
		stats, err := r.relayBatch(ctx)
		switch {
		case err != nil:
			r.logg.Error(ctx, "outbox relay batch failed", err)
			wait = delay.next()
		case stats.progressed():
			delay.reset()
			continue
		case stats.retried > 0:
			wait = delay.next()
		default:
			delay.reset()
			wait = r.poll
		}

		if err := sleepCtx(ctx, r.jitter(wait)); err != nil {
			return err
		}
	}
}

func (r *Relay) checkDependencies(ctx context.Context) error {
	deps := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", r.db.Ping},
		{"pubsub", r.pubsub.Ping},
	}
	for _, dep := range deps {
		if err := dep.ping(ctx); err != nil {
			r.logg.Error(ctx, fmt.Sprintf("%s ping failed", dep.name), err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}
	return nil
}

// relayBatch claims one batch and settles every row in it inside a single
// transaction. Once an order has a row waiting for retry, its later rows in
// the batch are deferred so consumers never see them out of order.
func (r *Relay) relayBatch(ctx context.Context) (batchStats, error) {
	var stats batchStats
	err := r.db.WithTx(ctx, func(tx *gorm.DB) error {
		stats = batchStats{}
		events, err := r.events.FetchUnpublishedForPublish(tx, r.batchSize, r.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim outbox batch: %w", err)
		}
		stats.claimed = len(events)

		held := make(map[uuid.UUID]struct{})
		for _, event := range events {
			if _, ok := held[event.AggregateID]; ok {
				stats.deferred++
				continue
			}
			result, err := r.relayEvent(ctx, tx, event)
			if err != nil {
				return err
			}
			switch result {
			case outcomePublished:
				stats.published++
			case outcomeRetry:
				stats.retried++
				held[event.AggregateID] = struct{}{}
			case outcomeDeadLettered:
				stats.deadLettered++
			}
		}
		return nil
	})
	if err == nil && stats.claimed > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"claimed":       stats.claimed,
			"published":     stats.published,
			"retried":       stats.retried,
			"deferred":      stats.deferred,
			"dead_lettered": stats.deadLettered,
		}), "outbox batch settled")
	}
	return stats, err
}

func (r *Relay) relayEvent(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := r.registry.Resolve(event)
	if err != nil {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.DeadLetterNonRetryable, err, "")
	}

	topic := resolved.Descriptor.Topic
	pubErr := r.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := r.events.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark %s published: %w", event.ID, err)
		}
		return outcomePublished, nil
	}

	var nonRetryable registry.NonRetryableError
	if errors.As(pubErr, &nonRetryable) {
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.DeadLetterNonRetryable, pubErr, topic)
	}

	attempt := event.NextAttempt()
	if attempt >= r.maxAttempts {
		cause := fmt.Errorf("gave up after %d attempts: %w", attempt, pubErr)
		return outcomeDeadLettered, r.deadLetter(ctx, tx, event, enums.DeadLetterMaxAttempts, cause, topic)
	}

	fields := eventFields(event, resolved.Envelope, topic)
	fields["attempt_count"] = attempt
	fields["error"] = pubErr.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox publish failed, will retry")
	if err := r.events.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark %s failed: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

func (r *Relay) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.DeadLetterReason, cause error, topic string) error {
	fields := eventFields(event, outbox.PayloadEnvelope{}, topic)
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	r.logg.Warn(r.logg.WithFields(ctx, fields), "outbox event dead-lettered")

	entry := models.DeadLetterFor(event, reason, cause, time.Now())
	if err := r.deadLetters.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("dead-letter %s: %w", event.ID, err)
	}
	if err := r.events.MarkTerminalTx(tx, event.ID, cause, r.maxAttempts); err != nil {
		return fmt.Errorf("park %s: %w", event.ID, err)
	}
	return nil
}

func (r *Relay) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := r.topics(topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("no publisher for topic %s", topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := pub.Publish(publishCtx, newMessage(event, resolved.Envelope))
	return err
}

func (r *Relay) jitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(r.rng.Int63n(int64(jitterWindow)))
}

func newMessage(event models.OutboxEvent, envelope outbox.PayloadEnvelope) *gcppubsub.Message {
	return &gcppubsub.Message{
		Data:        event.Payload,
		OrderingKey: event.AggregateID.String(),
		Attributes: map[string]string{
			"event_id":       envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"schema_version": strconv.Itoa(envelope.Version),
			"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
		},
	}
}

func eventFields(event models.OutboxEvent, envelope outbox.PayloadEnvelope, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if envelope.EventID != "" {
		fields["event_id"] = envelope.EventID
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

type retryDelay struct {
	base    time.Duration
	max     time.Duration
	current time.Duration
}

func (d *retryDelay) next() time.Duration {
	if d.current < d.base {
		d.current = d.base
	}
	d.current *= 2
	if d.current > d.max {
		d.current = d.max
	}
	return d.current
}

func (d *retryDelay) reset() {
	d.current = 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func pubsubTopics(client pubsubClient) topicResolver {
	return func(topic string) topicPublisher {
		pub := client.Publisher(topic)
		if pub == nil {
			return nil
		}
		return gcpTopic{pub: pub}
	}
}

type gcpTopic struct {
	pub *gcppubsub.Publisher
}

// Publish blocks on the ack. An ordered publisher pauses its key after a
// failure, so the key is resumed before the row is retried.
func (t gcpTopic) Publish(ctx context.Context, msg *gcppubsub.Message) (string, error) {
	id, err := t.pub.Publish(ctx, msg).Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		t.pub.ResumePublish(msg.OrderingKey)
	}
	return id, err
}
