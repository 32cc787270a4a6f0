// Package notification reacts to saga domain events. Its only consumer today
// is the view-cache invalidator: finished runs (successful or failed) make the
// dashboard's cached contact, deal and quote views stale.
package notification

import (
	"context"
	"crypto/tls"
	"fmt"

	"salesops_backend/internal/events"
	"salesops_backend/platform/config"
	"salesops_backend/platform/logger"

	"github.com/redis/go-redis/v9"
)

// Invalidator drops cached dashboard views from Redis when a saga run
// finishes. Invalidation is best effort: a miss only means one stale read
// until the cache TTL expires.
type Invalidator struct {
	client *redis.Client
	log    *logger.Logger
}

// NewInvalidator creates an Invalidator from the Redis configuration.
func NewInvalidator(cfg config.RedisConfig, log *logger.Logger) (*Invalidator, error) {
	opt, err := redis.ParseURL(cfg.GetRedisURL())
	if err != nil {
		return nil, err
	}
	if opt.TLSConfig != nil && cfg.GetRedisTLSInsecure() {
		opt.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return &Invalidator{client: redis.NewClient(opt), log: log}, nil
}

// NewInvalidatorWithClient wraps an existing Redis client. Used by tests.
func NewInvalidatorWithClient(client *redis.Client, log *logger.Logger) *Invalidator {
	return &Invalidator{client: client, log: log}
}

// Register subscribes the invalidator to both saga outcome events.
func (i *Invalidator) Register(bus events.Bus) {
	bus.Subscribe(events.QuoteFinalized{}.EventName(), events.HandlerFunc(i.handleFinalized))
	bus.Subscribe(events.QuoteSagaFailed{}.EventName(), events.HandlerFunc(i.handleFailed))
}

func (i *Invalidator) handleFinalized(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteFinalized)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	return i.invalidate(ctx, e.ContactID, e.DealID, e.QuoteID)
}

func (i *Invalidator) handleFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.QuoteSagaFailed)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}
	// A failed run may still have mutated the quote (status, line items)
	// before the failing step, so the views are stale either way.
	return i.invalidate(ctx, e.ContactID, e.DealID, e.QuoteID)
}

func (i *Invalidator) invalidate(ctx context.Context, contactID, dealID, quoteID string) error {
	keys := []string{
		"views:contact:" + contactID,
		"views:deal:" + dealID,
		"views:quote:" + quoteID,
	}
	if err := i.client.Del(ctx, keys...).Err(); err != nil {
		i.log.Warn("view cache invalidation failed", "keys", keys, "error", err.Error())
		return err
	}
	i.log.Debug("view cache invalidated", "deal_id", dealID, "quote_id", quoteID)
	return nil
}

// Close releases the underlying Redis connection.
func (i *Invalidator) Close() error {
	return i.client.Close()
}
