package startup

import (
	"context"
	"time"

	redisstorage "github.com/schoolmsg/internal/storage/redis"
)

// ConnectRedisPresence подключает хранилище присутствия в Redis с повторами.
func ConnectRedisPresence(ctx context.Context, redisURL string, maxWait time.Duration) (*redisstorage.Presence, error) {
	return withRetry(ctx, "redis connect", maxWait, initialBackoff, func(ctx context.Context) (*redisstorage.Presence, error) {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return redisstorage.New(cctx, redisURL)
	})
}
