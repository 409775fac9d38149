package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/guildmarket/pkg/config"
	"github.com/angelmondragon/guildmarket/pkg/db/models"
	"github.com/angelmondragon/guildmarket/pkg/enums"
	"github.com/angelmondragon/guildmarket/pkg/logger"
	"github.com/angelmondragon/guildmarket/pkg/metrics"
	"github.com/angelmondragon/guildmarket/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	maxRetryDelay         = 5 * time.Minute
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// broker is satisfied by both the kafka producer and the pubsub client.
type broker interface {
	Ping(context.Context) error
	Publish(ctx context.Context, topic, key string, data []byte, attributes map[string]string) error
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Broker        broker
	BrokerName    string
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
	Now           func() time.Time
}

// Service drains the outbox table into the configured broker. Each row ends
// a batch published, rescheduled with backoff, or dead-lettered.
type Service struct {
	logg         *logger.Logger
	db           dbClient
	repo         outboxRepository
	broker       broker
	brokerName   string
	registry     registryResolver
	dlq          dlqRepository
	metrics      *metrics.OutboxMetrics
	now          func() time.Time
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	required := []struct {
		name    string
		present bool
	}{
		{"config", params.Config != nil},
		{"logger", params.Logger != nil},
		{"database client", params.DB != nil},
		{"broker", params.Broker != nil},
		{"outbox repository", params.Repository != nil},
		{"event registry", params.Registry != nil},
		{"dlq repository", params.DLQRepository != nil},
	}
	for _, dep := range required {
		if !dep.present {
			return nil, fmt.Errorf("%s is required", dep.name)
		}
	}

	cfg := params.Config.Outbox
	svc := &Service{
		logg:         params.Logger,
		db:           params.DB,
		repo:         params.Repository,
		broker:       params.Broker,
		brokerName:   params.BrokerName,
		registry:     params.Registry,
		dlq:          params.DLQRepository,
		metrics:      params.Metrics,
		now:          params.Now,
		batchSize:    positiveOr(cfg.BatchSize, defaultBatchSize),
		maxAttempts:  positiveOr(cfg.MaxAttempts, defaultMaxAttempts),
		pollInterval: time.Duration(positiveOr(cfg.PollIntervalMS, defaultPollMs)) * time.Millisecond,
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	if svc.brokerName == "" {
		svc.brokerName = "broker"
	}
	return svc, nil
}

func positiveOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

// Run pings the database and broker once, then polls until ctx ends. Batch
// errors back off exponentially; a full batch is followed immediately by
// the next one.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := s.broker.Ping(ctx); err != nil {
		s.logg.Error(ctx, s.brokerName+" ping failed", err)
		return fmt.Errorf("%s ping failed: %w", s.brokerName, err)
	}

	backoff := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, s.pollInterval, maxBackoff)
			wait = backoff
		case processed:
			backoff = s.pollInterval
			continue
		default:
			backoff = s.pollInterval
			wait = s.pollInterval
		}
		if err := sleepCtx(ctx, wait+rand.N(jitterWindow)); err != nil {
			return err
		}
	}
}

type verdict int

const (
	verdictPublished verdict = iota
	verdictRetry
	verdictDeadLetter
)

// delivery is the result of trying one outbox row.
type delivery struct {
	event    models.OutboxEvent
	resolved *registry.ResolvedEvent
	verdict  verdict
	err      error
	reason   enums.OutboxDLQErrorReason
	retryAt  time.Time
}

func (d delivery) topic() string {
	if d.resolved == nil {
		return ""
	}
	return d.resolved.Descriptor.Topic
}

// processBatch locks up to batchSize due rows, publishes them and records
// every outcome in the same transaction. It reports whether any row was due.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var processed bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.record(ctx, tx, s.deliver(ctx, event)); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) deliver(ctx context.Context, event models.OutboxEvent) delivery {
	d := delivery{event: event}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		d.verdict, d.err, d.reason = verdictDeadLetter, err, enums.OutboxDLQReasonNonRetryable
		if errors.Is(err, registry.ErrUnroutable) {
			d.reason = enums.OutboxDLQReasonUnroutable
		}
		return d
	}
	d.resolved = resolved

	started := time.Now()
	err = s.publish(ctx, event, resolved)
	s.metrics.ObservePublish(d.topic(), time.Since(started), err)

	var nonRetry registry.NonRetryableError
	attempt := event.AttemptCount + 1
	switch {
	case err == nil:
		d.verdict = verdictPublished
	case errors.As(err, &nonRetry):
		d.verdict, d.err, d.reason = verdictDeadLetter, err, enums.OutboxDLQReasonNonRetryable
	case attempt >= s.maxAttempts:
		d.verdict, d.reason = verdictDeadLetter, enums.OutboxDLQReasonMaxAttempts
		d.err = fmt.Errorf("max publish attempts reached: %w", err)
	default:
		d.verdict, d.err = verdictRetry, err
		d.retryAt = s.now().Add(retryDelay(attempt, s.pollInterval))
	}
	return d
}

func (s *Service) record(ctx context.Context, tx *gorm.DB, d delivery) error {
	logCtx := s.logg.WithFields(ctx, s.fields(d))
	id := d.event.ID

	switch d.verdict {
	case verdictPublished:
		if err := s.repo.MarkPublishedTx(tx, id); err != nil {
			return fmt.Errorf("mark published %s: %w", id, err)
		}
		s.logg.Info(logCtx, "outbox event published")

	case verdictRetry:
		s.logg.Warn(logCtx, "outbox publish failed")
		if err := s.repo.MarkFailedTx(tx, id, d.err, d.retryAt); err != nil {
			return fmt.Errorf("mark failure %s: %w", id, err)
		}

	case verdictDeadLetter:
		s.logg.Warn(logCtx, "outbox event will not be retried")
		msg := d.err.Error()
		entry := models.OutboxDLQ{
			EventID:       id,
			EventType:     d.event.EventType,
			AggregateType: d.event.AggregateType,
			AggregateID:   d.event.AggregateID,
			Payload:       d.event.Payload,
			ErrorReason:   d.reason,
			ErrorMessage:  &msg,
			AttemptCount:  d.event.AttemptCount,
			FailedAt:      s.now(),
		}
		if err := s.dlq.InsertTx(tx, entry); err != nil {
			return fmt.Errorf("insert dlq %s: %w", id, err)
		}
		if err := s.repo.MarkTerminalTx(tx, id, d.err, s.maxAttempts); err != nil {
			return fmt.Errorf("mark terminal %s: %w", id, err)
		}
		s.metrics.IncDeadLettered(string(d.reason))
	}
	return nil
}

// publish keys every message by aggregate id so a partitioned broker keeps
// one order's events in sequence.
func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return registry.NewNonRetryableError(fmt.Errorf("no topic configured for %s", event.EventType))
	}
	attributes := map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID,
		"created_at":     event.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	return s.broker.Publish(publishCtx, topic, event.AggregateID, event.Payload, attributes)
}

func (s *Service) fields(d delivery) map[string]any {
	fields := map[string]any{
		"outbox_id":      d.event.ID.String(),
		"event_type":     d.event.EventType,
		"aggregate_type": d.event.AggregateType,
		"aggregate_id":   d.event.AggregateID,
		"attempt_count":  d.event.AttemptCount,
		"broker":         s.brokerName,
	}
	if topic := d.topic(); topic != "" {
		fields["topic"] = topic
	}
	if d.resolved != nil && d.resolved.Envelope.EventID != "" {
		fields["event_id"] = d.resolved.Envelope.EventID
		fields["occurred_at"] = d.resolved.Envelope.OccurredAt.Format(time.RFC3339Nano)
	}
	if d.err != nil {
		fields["error"] = d.err.Error()
	}
	switch d.verdict {
	case verdictRetry:
		fields["attempt_count"] = d.event.AttemptCount + 1
		fields["retry_at"] = d.retryAt.Format(time.RFC3339Nano)
	case verdictDeadLetter:
		fields["error_reason"] = d.reason
	}
	return fields
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

// retryDelay doubles the poll interval per failed attempt, capped at maxRetryDelay.
func retryDelay(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = time.Duration(defaultPollMs) * time.Millisecond
	}
	delay := base
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return min(delay, maxRetryDelay)
}
