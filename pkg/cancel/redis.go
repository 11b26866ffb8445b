package cancel

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// redisChannelPrefix namespaces cancel pub/sub traffic from any other use
// of the same Redis instance.
const redisChannelPrefix = "handshake:cancel:"

// RedisRelay fans a Registry's RequestCancel calls out across processes:
// RequestCancel publishes to Redis in addition to signalling local
// subscribers, and a background listener applies remote cancellations
// (published by other processes sharing the same Redis instance) to this
// process's local Registry. A single Go process's channel-based broadcast
// cannot reach another process, which is why this is optional and
// layered on top of Registry rather than replacing it — most deployments
// run a single execution-core process and never need it.
type RedisRelay struct {
	local  *Registry
	client *redis.Client
	logger *slog.Logger
}

// NewRedisRelay wraps local with Redis-backed cross-process propagation.
func NewRedisRelay(local *Registry, client *redis.Client, logger *slog.Logger) *RedisRelay {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisRelay{local: local, client: client, logger: logger}
}

// RequestCancel signals local subscribers immediately, then publishes to
// Redis so sibling processes' listeners apply the same cancellation.
func (r *RedisRelay) RequestCancel(ctx context.Context, key string) error {
	r.local.RequestCancel(key)
	if err := r.client.Publish(ctx, redisChannelPrefix+key, "1").Err(); err != nil {
		return fmt.Errorf("cancel: publish cancellation for %s: %w", key, err)
	}
	return nil
}

// Listen subscribes to the cancel channel pattern and applies every
// received cancellation to the local registry until ctx is cancelled. Runs
// in the calling goroutine; callers typically invoke it via `go`.
func (r *RedisRelay) Listen(ctx context.Context) error {
	pubsub := r.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			key := msg.Channel[len(redisChannelPrefix):]
			r.local.RequestCancel(key)
			r.logger.Debug("cancel: applied remote cancellation", "key", key)
		}
	}
}
