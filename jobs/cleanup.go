package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

// Cleaner removes idempotency keys that lost their TTL, which only happens
// when a write was interrupted between SET and EXPIRE semantics changing.
// Keys with a TTL expire on their own.
type Cleaner struct {
	client *redis.Client
	logger *slog.Logger
}

// NewCleaner constructs Cleaner.
func NewCleaner(client *redis.Client, logger *slog.Logger) *Cleaner {
	return &Cleaner{client: client, logger: logger}
}

// Run deletes idempotency keys without an expiry and returns how many.
func (c *Cleaner) Run(ctx context.Context) (int, error) {
	var removed int
	iter := c.client.Scan(ctx, 0, "idempotency:*", 200).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		ttl, err := c.client.TTL(ctx, key).Result()
		if err != nil {
			return removed, err
		}
		if ttl >= 0 {
			continue
		}
		if err := c.client.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

// Handle runs the cleanup as an asynq task.
func (c *Cleaner) Handle(ctx context.Context, _ *asynq.Task) error {
	removed, err := c.Run(ctx)
	if err != nil {
		return err
	}
	c.logger.Info("idempotency cleanup complete", slog.Int("removed", removed))
	return nil
}
