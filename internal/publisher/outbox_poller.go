// Package publisher relays outbox events to Kafka and recovers checkout
// attempts that stopped in an in-flight status.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	Topic = "checkout-outbox"

	stuckReason = "session creation outcome unknown"
)

type Repository interface {
	GetUnprocessedEvents(ctx context.Context, limit int) ([]domain.OutboxEvent, error)
	MarkEventAsProcessed(ctx context.Context, id int) error
	RecoverStuckAttempts(ctx context.Context, cutoff time.Time, reason string) ([]checkout.RecoveredAttempt, error)
}

type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	stuckAfter   time.Duration
	repo         Repository
	writer       MessageWriter
	log          *zap.Logger
	now          func() time.Time
}

func NewOutboxPoller(repo Repository, log *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  Topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:    time.Second,
		recoveryTick: time.Minute,
		stuckAfter:   15 * time.Minute,
		repo:         repo,
		writer:       w,
		log:          log,
		now:          time.Now,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) Close() {
	if err := p.writer.Close(); err != nil {
		p.log.Warn("error closing kafka writer", zap.Error(err))
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, 100)
	if err != nil {
		p.log.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.log.Error("failed to publish event", zap.Int("event_id", event.ID), zap.Error(err))
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.log.Error("failed to mark event as processed", zap.Int("event_id", event.ID), zap.Error(err))
		}
	}
}

// recoverStuckAttempts never re-requests a session: an attempt that may
// already have one is failed instead.
func (p *OutboxPoller) recoverStuckAttempts(ctx context.Context) {
	recovered, err := p.repo.RecoverStuckAttempts(ctx, p.now().Add(-p.stuckAfter), stuckReason)
	if err != nil {
		p.log.Error("failed to recover stuck attempts", zap.Error(err))
		return
	}
	for _, a := range recovered {
		p.log.Warn("recovered stuck checkout attempt",
			zap.String("attempt_id", a.ID),
			zap.String("user_id", a.UserID),
			zap.String("status", a.Status.String()))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event domain.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateId), // attempt id for ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
