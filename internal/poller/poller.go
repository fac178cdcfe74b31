// Package poller consumes checkout_paid events and clears the paid cart.
package poller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/publisher"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

var errMissingUserID = errors.New("missing or invalid user_id")

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

type Poller struct {
	carts  CartClearer
	reader messageReader
	log    *zap.Logger
	retry  *backoff.ExponentialBackOff
}

// readBackoff spaces out reads after a failed one; it resets on the first
// successful read.
func readBackoff(initial time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initial
	b.MaxInterval = 30 * initial
	b.Multiplier = 2
	b.Reset()
	return b
}

func NewPoller(carts CartClearer, log *zap.Logger, brokers ...string) *Poller {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    publisher.Topic,
		GroupID:  "storefront-cart-consumer",
		MaxBytes: 10e6, // 10MB
	})
	return &Poller{carts: carts, reader: reader, log: log, retry: readBackoff(200 * time.Millisecond)}
}

func (p *Poller) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		m, err := p.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			wait := p.retry.NextBackOff()
			p.log.Error("error reading message", zap.Duration("retry_in", wait), zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		p.retry.Reset()
		if err := p.handle(ctx, m); err != nil {
			p.log.Error("failed to handle checkout event",
				zap.Int64("offset", m.Offset),
				zap.String("key", string(m.Key)),
				zap.Error(err))
		}
	}
}

func (p *Poller) Close() {
	if err := p.reader.Close(); err != nil {
		p.log.Warn("error closing reader", zap.Error(err))
	}
}

func (p *Poller) handle(ctx context.Context, m kafka.Message) error {
	if eventType(m) != domain.EventCheckoutPaid {
		return nil
	}

	var paid domain.CheckoutPaid
	if err := json.Unmarshal(m.Value, &paid); err != nil {
		return fmt.Errorf("error parsing message: %w", err)
	}
	if paid.UserID == "" {
		return errMissingUserID
	}

	if err := p.carts.Clear(ctx, paid.UserID); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}
	p.log.Info("cart cleared after payment",
		zap.String("user_id", paid.UserID),
		zap.String("attempt_id", paid.AttemptID))
	return nil
}

func eventType(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == "event_type" {
			return string(h.Value)
		}
	}
	return ""
}
