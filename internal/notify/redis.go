package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/MarkoPoloResearchLab/parkwash/pkg/notice"
	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the pub/sub channel notices are published on.
const DefaultChannel = "parkwash:notices"

// Publisher is the part of *redis.Client used by RedisNotifier.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// NewRedisClient parses a redis:// URL into a client.
func NewRedisClient(rawURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("notify.redis.url: %w", err)
	}
	return redis.NewClient(options), nil
}

// RedisNotifier publishes notices as JSON so staff dashboards and SMS bridges
// can subscribe.
type RedisNotifier struct {
	publisher Publisher
	channel   string
}

// NewRedisNotifier constructs a RedisNotifier. An empty channel uses DefaultChannel.
func NewRedisNotifier(publisher Publisher, channel string) (*RedisNotifier, error) {
	if publisher == nil {
		return nil, fmt.Errorf("notify.redis.config: nil publisher")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisNotifier{publisher: publisher, channel: channel}, nil
}

// Notify implements notice.Notifier.
func (notifier *RedisNotifier) Notify(ctx context.Context, message notice.Notice) error {
	payload, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("notify.redis.encode: %w", err)
	}
	if err := notifier.publisher.Publish(ctx, notifier.channel, payload).Err(); err != nil {
		return fmt.Errorf("notify.redis.publish: %w", err)
	}
	return nil
}
