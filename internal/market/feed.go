package market

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const priceChannelPrefix = "artislife.prices."

// RedisPublisher fans price samples out over Redis pub/sub, one channel per
// item, for display consumers that animate the gallery ticker. Delivery is
// best effort: a subscriber that missed a sample just waits for the next one.
type RedisPublisher struct {
	client *redis.Client
}

func NewRedisPublisher(ctx context.Context, redisURL string) (*RedisPublisher, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return &RedisPublisher{client: client}, nil
}

func (p *RedisPublisher) Publish(ctx context.Context, s Sample) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, priceChannelPrefix+s.ItemID, raw).Err()
}

func (p *RedisPublisher) Close() error {
	return p.client.Close()
}
