package scheduler

import (
	"context"
	"time"

	"salesops_backend/platform/logger"
)

const (
	defaultRunCleanupInterval = time.Hour
	defaultRunRetention       = 30 * 24 * time.Hour
)

// RunCleanup periodically enqueues retention sweeps for finished saga runs.
// The enqueue side is split from the worker so the API process can schedule
// sweeps without also draining the queue.
type RunCleanup struct {
	client    *Client
	log       *logger.Logger
	interval  time.Duration
	retention time.Duration
}

func NewRunCleanup(client *Client, log *logger.Logger, interval, retention time.Duration) *RunCleanup {
	if interval <= 0 {
		interval = defaultRunCleanupInterval
	}
	if retention <= 0 {
		retention = defaultRunRetention
	}

	return &RunCleanup{
		client:    client,
		log:       log,
		interval:  interval,
		retention: retention,
	}
}

func (c *RunCleanup) Run(ctx context.Context) {
	if c == nil || c.client == nil {
		return
	}

	c.enqueue(ctx)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.enqueue(ctx)
		}
	}
}

func (c *RunCleanup) enqueue(ctx context.Context) {
	cutoff := time.Now().Add(-c.retention)
	if err := c.client.EnqueueRunCleanup(ctx, cutoff); err != nil {
		c.log.Warn("failed to enqueue saga run cleanup", "error", err)
	}
}
