package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/pkg/redis"
)

// RedisSink Redis 出口：报警缓存（带 TTL）+ Pub/Sub 推送
// 缓存键供前端卡片拉取当前报警状态，频道供订阅方实时接收
type RedisSink struct {
	client  *redis.Client
	channel string
	key     string
	ttl     time.Duration
}

// NewRedisSink 创建 Redis sink
func NewRedisSink(client *redis.Client, cfg *config.Config) *RedisSink {
	return &RedisSink{
		client:  client,
		channel: cfg.Alert.Sinks.RedisChannel,
		key:     cfg.Alert.Sinks.RedisKeyPrefix + cfg.Vision.DeviceID + ":alarm",
		ttl:     time.Duration(cfg.Alert.Sinks.RedisTTLSec) * time.Second,
	}
}

func (s *RedisSink) Name() string {
	return "redis"
}

func (s *RedisSink) Notify(ctx context.Context, n Notification) error {
	data, err := json.Marshal(n.Payload())
	if err != nil {
		return fmt.Errorf("failed to marshal alert payload: %w", err)
	}

	pipe := s.client.Pipeline()
	if n.Kind == KindResolution {
		pipe.Del(ctx, s.key)
	} else {
		pipe.Set(ctx, s.key, data, s.ttl)
	}
	pipe.Publish(ctx, s.channel, data)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write alert to redis: %w", err)
	}
	return nil
}
