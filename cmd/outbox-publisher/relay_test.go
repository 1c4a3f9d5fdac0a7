package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/procurement-backend/pkg/config"
	"github.com/angelmondragon/procurement-backend/pkg/db/models"
	"github.com/angelmondragon/procurement-backend/pkg/enums"
	"github.com/angelmondragon/procurement-backend/pkg/logger"
	"github.com/angelmondragon/procurement-backend/pkg/outbox"
	"github.com/angelmondragon/procurement-backend/pkg/outbox/registry"
)

func TestNewRelayReportsEveryMissingDependency(t *testing.T) {
	_, err := NewRelay(RelayParams{})
	require.Error(t, err)
	for _, want := range []string{"logger", "database", "pubsub", "outbox repository", "event registry", "dlq repository"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestNewRelayAppliesDefaults(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeTopic{}, &fakeRegistry{}, &fakeDLQ{}, config.OutboxConfig{})
	assert.Equal(t, defaultBatchSize, relay.batchSize)
	assert.Equal(t, defaultMaxAttempts, relay.maxAttempts)
	assert.Equal(t, defaultPollInterval, relay.poll)
}

func TestRelayBatchEmpty(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeTopic{}, &fakeRegistry{}, &fakeDLQ{}, testOutboxConfig())

	stats, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.claimed)
	assert.False(t, stats.progressed())
}

func TestRelayBatchContinuesAfterFailure(t *testing.T) {
	first := newEvent(t, uuid.New(), enums.EventOrderCompleted)
	second := newEvent(t, uuid.New(), enums.EventOrderCompleted)
	store := &fakeStore{events: []models.OutboxEvent{first, second}}
	topic := &fakeTopic{errs: []error{errors.New("unavailable"), nil}}
	relay := newTestRelay(t, store, topic, &fakeRegistry{}, &fakeDLQ{}, testOutboxConfig())

	stats, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, batchStats{claimed: 2, published: 1, retried: 1}, stats)
	assert.Equal(t, []uuid.UUID{first.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{second.ID}, store.published)
}

func TestRelayBatchDefersLaterEventsOfAFailedOrder(t *testing.T) {
	orderID := uuid.New()
	payment := newEvent(t, orderID, enums.EventOrderPaymentRecorded)
	completed := newEvent(t, orderID, enums.EventOrderCompleted)
	other := newEvent(t, uuid.New(), enums.EventOrderReturned)
	store := &fakeStore{events: []models.OutboxEvent{payment, completed, other}}
	topic := &fakeTopic{errs: []error{errors.New("deadline exceeded"), nil}}
	relay := newTestRelay(t, store, topic, &fakeRegistry{}, &fakeDLQ{}, testOutboxConfig())

	stats, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.retried)
	assert.Equal(t, 1, stats.deferred)
	assert.Equal(t, 1, stats.published)

	require.Len(t, topic.messages, 2)
	assert.Equal(t, string(enums.EventOrderReturned), topic.messages[1].Attributes["event_type"])
	assert.Equal(t, []uuid.UUID{payment.ID}, store.failed)
	assert.Equal(t, []uuid.UUID{other.ID}, store.published)
}

func TestRelayMessageCarriesOrderingKeyAndAttributes(t *testing.T) {
	event := newEvent(t, uuid.New(), enums.EventOrderPaymentRecorded)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	topic := &fakeTopic{}
	reg := &fakeRegistry{}
	relay := newTestRelay(t, store, topic, reg, &fakeDLQ{}, testOutboxConfig())

	var topics []string
	relay.topics = func(name string) topicPublisher {
		topics = append(topics, name)
		return topic
	}

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"payments-topic"}, topics)

	require.Len(t, topic.messages, 1)
	msg := topic.messages[0]
	assert.Equal(t, event.AggregateID.String(), msg.OrderingKey)
	assert.Equal(t, event.ID.String(), msg.Attributes["event_id"])
	assert.Equal(t, event.AggregateID.String(), msg.Attributes["aggregate_id"])
	assert.Equal(t, "1", msg.Attributes["schema_version"])
	assert.JSONEq(t, string(event.Payload), string(msg.Data))
}

func TestRelayDeadLettersUnresolvableEvent(t *testing.T) {
	event := newEvent(t, uuid.New(), enums.EventOrderCompleted)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	reg := &fakeRegistry{err: registry.NewNonRetryableError(errors.New("payload missing"))}
	relay := newTestRelay(t, store, &fakeTopic{}, reg, dlq, testOutboxConfig())

	stats, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	assert.True(t, stats.progressed())

	require.Len(t, dlq.entries, 1)
	entry := dlq.entries[0]
	assert.Equal(t, event.ID, entry.EventID)
	assert.Equal(t, enums.DeadLetterNonRetryable, entry.ErrorReason)
	assert.JSONEq(t, string(event.Payload), string(entry.Payload))
	assert.Equal(t, []uuid.UUID{event.ID}, store.terminal)
}

func TestRelayDeadLettersWhenTopicHasNoPublisher(t *testing.T) {
	event := newEvent(t, uuid.New(), enums.EventOrderCompleted)
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	relay := newTestRelay(t, store, &fakeTopic{}, &fakeRegistry{}, dlq, testOutboxConfig())
	relay.topics = func(string) topicPublisher { return nil }

	_, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterNonRetryable, dlq.entries[0].ErrorReason)
}

func TestRelayDeadLettersAfterMaxAttempts(t *testing.T) {
	event := newEvent(t, uuid.New(), enums.EventOrderCompleted)
	event.AttemptCount = 1
	store := &fakeStore{events: []models.OutboxEvent{event}}
	dlq := &fakeDLQ{}
	topic := &fakeTopic{errs: []error{errors.New("unavailable")}}
	cfg := testOutboxConfig()
	cfg.MaxAttempts = 2
	relay := newTestRelay(t, store, topic, &fakeRegistry{}, dlq, cfg)

	stats, err := relay.relayBatch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.deadLettered)
	assert.Empty(t, store.failed)

	require.Len(t, dlq.entries, 1)
	assert.Equal(t, enums.DeadLetterMaxAttempts, dlq.entries[0].ErrorReason)
	require.NotNil(t, dlq.entries[0].ErrorMessage)
	assert.Contains(t, *dlq.entries[0].ErrorMessage, "gave up after 2 attempts")
}

func TestRelayBatchSurfacesClaimFailure(t *testing.T) {
	store := &fakeStore{fetchErr: errors.New("connection reset")}
	relay := newTestRelay(t, store, &fakeTopic{}, &fakeRegistry{}, &fakeDLQ{}, testOutboxConfig())

	_, err := relay.relayBatch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "claim outbox batch")
}

func TestRetryDelayDoublesUpToMax(t *testing.T) {
	d := retryDelay{base: 100 * time.Millisecond, max: time.Second}
	assert.Equal(t, 200*time.Millisecond, d.next())
	assert.Equal(t, 400*time.Millisecond, d.next())
	assert.Equal(t, 800*time.Millisecond, d.next())
	assert.Equal(t, time.Second, d.next())
	assert.Equal(t, time.Second, d.next())

	d.reset()
	assert.Equal(t, 200*time.Millisecond, d.next())
}

func TestRunStopsWhenContextCancelled(t *testing.T) {
	relay := newTestRelay(t, &fakeStore{}, &fakeTopic{}, &fakeRegistry{}, &fakeDLQ{}, testOutboxConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := relay.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func testOutboxConfig() config.OutboxConfig {
	return config.OutboxConfig{BatchSize: 10, PollIntervalMS: 100, MaxAttempts: 5}
}

func newTestRelay(t *testing.T, store eventStore, topic topicPublisher, reg eventResolver, dlq deadLetterStore, cfg config.OutboxConfig) *Relay {
	t.Helper()
	relay, err := NewRelay(RelayParams{
		Outbox:      cfg,
		Logger:      logger.New(logger.Options{ServiceName: "outbox-publisher-test", Output: io.Discard}),
		DB:          fakeDB{},
		PubSub:      fakePubSub{},
		Events:      store,
		Registry:    reg,
		DeadLetters: dlq,
		Topics:      func(string) topicPublisher { return topic },
	})
	require.NoError(t, err)
	return relay
}

func newEvent(t *testing.T, orderID uuid.UUID, eventType enums.OutboxEventType) models.OutboxEvent {
	t.Helper()
	id := uuid.New()
	payload, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    id.String(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage(`{"order_id":"` + orderID.String() + `"}`),
	})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            id,
		EventType:     eventType,
		AggregateType: enums.AggregatePurchaseOrder,
		AggregateID:   orderID,
		Payload:       payload,
		CreatedAt:     time.Now().UTC(),
	}
}

type fakeStore struct {
	events    []models.OutboxEvent
	fetchErr  error
	published []uuid.UUID
	failed    []uuid.UUID
	terminal  []uuid.UUID
}

func (f *fakeStore) FetchUnpublishedForPublish(*gorm.DB, int, int) ([]models.OutboxEvent, error) {
	return f.events, f.fetchErr
}

func (f *fakeStore) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeStore) MarkFailedTx(_ *gorm.DB, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

func (f *fakeStore) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, _ error, _ int) error {
	f.terminal = append(f.terminal, id)
	return nil
}

type fakeDB struct{}

func (fakeDB) Ping(context.Context) error { return nil }

func (fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error { return fn(nil) }

type fakePubSub struct{}

func (fakePubSub) Ping(context.Context) error { return nil }

func (fakePubSub) Publisher(string) *gcppubsub.Publisher { return nil }

// fakeTopic fails publishes in the order errs lists them; nil entries and an
// exhausted list succeed.
type fakeTopic struct {
	errs     []error
	messages []*gcppubsub.Message
}

func (f *fakeTopic) Publish(_ context.Context, msg *gcppubsub.Message) (string, error) {
	f.messages = append(f.messages, msg)
	if len(f.errs) == 0 {
		return "server-id", nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return "server-id", err
}

// fakeRegistry routes payment events to the payments topic and everything
// else to the purchase order topic.
type fakeRegistry struct {
	err error
}

func (f *fakeRegistry) Resolve(event models.OutboxEvent) (*registry.ResolvedEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(event.Payload, &envelope); err != nil {
		return nil, registry.NewNonRetryableError(err)
	}
	topic := "po-topic"
	if event.EventType == enums.EventOrderPaymentRecorded {
		topic = "payments-topic"
	}
	return &registry.ResolvedEvent{
		Descriptor: registry.EventDescriptor{
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			Topic:         topic,
		},
		Envelope: envelope,
	}, nil
}

type fakeDLQ struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQ) InsertTx(_ *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}
