package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const publishTimeout = 2 * time.Second

// RedisNotifier publishes notifications as JSON on a pub/sub channel so that
// connected front-ends can show them.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

func NewRedisNotifier(client *redis.Client, channel string, logger *zap.Logger) *RedisNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if channel == "" {
		channel = "kulakan:notifications"
	}
	return &RedisNotifier{client: client, channel: channel, logger: logger.Named("notify.redis")}
}

func (r *RedisNotifier) Notify(ctx context.Context, n Notification) {
	if n.SentAt.IsZero() {
		n.SentAt = time.Now().UTC()
	}

	data, err := json.Marshal(n)
	if err != nil {
		r.logger.Error("failed to marshal notification", zap.String("title", n.Title), zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.Warn("failed to publish notification",
			zap.String("channel", r.channel),
			zap.String("title", n.Title),
			zap.Error(err))
		return
	}

	r.logger.Debug("published notification", zap.String("channel", r.channel), zap.String("title", n.Title))
}
