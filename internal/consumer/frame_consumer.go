package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/engine"
	"wisefido-vision/internal/metrics"
	"wisefido-vision/internal/models"
	"wisefido-vision/pkg/redis"
)

// FrameConsumer 从 Redis Streams 消费感知帧并送入事件引擎
// 消息无论成败都 ACK：畸形帧重新投递也不会变好，丢弃并计数
type FrameConsumer struct {
	client *redis.Client
	stream string
	group  string
	name   string
	count  int64
	block  time.Duration
	engine *engine.Engine
	logger *zap.Logger
}

// NewFrameConsumer 创建帧消费者
func NewFrameConsumer(cfg *config.Config, client *redis.Client, eng *engine.Engine, logger *zap.Logger) *FrameConsumer {
	return &FrameConsumer{
		client: client,
		stream: cfg.Vision.FrameStream,
		group:  cfg.Vision.ConsumerGroup,
		name:   cfg.Vision.ConsumerName,
		count:  64,
		block:  2 * time.Second,
		engine: eng,
		logger: logger,
	}
}

// Start 创建消费者组并启动消费协程
func (c *FrameConsumer) Start(ctx context.Context) error {
	if err := redis.CreateConsumerGroup(ctx, c.client, c.stream, c.group); err != nil {
		return fmt.Errorf("failed to create consumer group %s: %w", c.group, err)
	}

	go c.consumeLoop(ctx)

	c.logger.Info("Frame consumer started",
		zap.String("stream", c.stream),
		zap.String("group", c.group),
		zap.String("consumer", c.name))
	return nil
}

func (c *FrameConsumer) consumeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Frame consumer stopped")
			return
		default:
		}

		if err := c.poll(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("Failed to read from frame stream", zap.Error(err))
			time.Sleep(time.Second)
		}
	}
}

// poll 读取一批消息并逐条处理
func (c *FrameConsumer) poll(ctx context.Context) error {
	messages, err := redis.ReadFromStream(ctx, c.client, c.stream, c.group, c.name, c.count, c.block)
	if err != nil {
		return err
	}

	for _, msg := range messages {
		c.handleMessage(ctx, msg)
	}
	return nil
}

func (c *FrameConsumer) handleMessage(ctx context.Context, msg redis.StreamMessage) {
	defer c.ack(ctx, msg.ID)

	data, ok := msg.Values["data"].(string)
	if !ok {
		metrics.FramesDropped.WithLabelValues("missing_data").Inc()
		c.logger.Warn("Stream message missing data field", zap.String("id", msg.ID))
		return
	}

	var frame models.Frame
	if err := json.Unmarshal([]byte(data), &frame); err != nil {
		metrics.FramesDropped.WithLabelValues("decode").Inc()
		c.logger.Warn("Dropping undecodable frame",
			zap.String("id", msg.ID),
			zap.Error(err))
		return
	}

	// 校验失败由引擎内部计数，这里不再重复记录
	_ = c.engine.PushFrame(frame)
}

func (c *FrameConsumer) ack(ctx context.Context, id string) {
	if err := redis.AckMessage(ctx, c.client, c.stream, c.group, id); err != nil {
		c.logger.Warn("Failed to ack stream message",
			zap.String("id", id),
			zap.Error(err))
	}
}
