package jobs

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestCleanerRemovesKeysWithoutTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	ctx := context.Background()

	require.NoError(t, client.Set(ctx, "idempotency:stray", "processing", 0).Err())
	require.NoError(t, client.Set(ctx, "idempotency:healthy", "{}", time.Hour).Err())
	require.NoError(t, client.Set(ctx, "other:key", "x", 0).Err())

	cleaner := NewCleaner(client, slog.Default())
	removed, err := cleaner.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	require.Equal(t, int64(0), client.Exists(ctx, "idempotency:stray").Val())
	require.Equal(t, int64(1), client.Exists(ctx, "idempotency:healthy").Val())
	require.Equal(t, int64(1), client.Exists(ctx, "other:key").Val(), "only idempotency keys are touched")
}
