package consumer

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/pkg/mqtt"
	"wisefido-vision/pkg/redis"
)

// FrameBridge MQTT→Streams 桥接
// 边缘侧 worker 走 MQTT 上报帧时启用，统一汇入帧流后由 FrameConsumer 消费
type FrameBridge struct {
	mqttClient  *mqtt.Client
	redisClient *redis.Client
	topic       string
	stream      string
	qos         byte
	logger      *zap.Logger
}

// NewFrameBridge 创建帧桥接
func NewFrameBridge(cfg *config.Config, mqttClient *mqtt.Client, redisClient *redis.Client, logger *zap.Logger) *FrameBridge {
	return &FrameBridge{
		mqttClient:  mqttClient,
		redisClient: redisClient,
		topic:       cfg.Vision.FrameTopic,
		stream:      cfg.Vision.FrameStream,
		qos:         cfg.MQTT.QoS,
		logger:      logger,
	}
}

// Start 订阅帧主题并转发到 Redis Streams
func (b *FrameBridge) Start(ctx context.Context) error {
	err := b.mqttClient.Subscribe(b.topic, b.qos, func(topic string, payload []byte) error {
		// 帧体不在桥接层解析，解码和校验统一由消费端处理
		if _, err := redis.PublishToStream(ctx, b.redisClient, b.stream, map[string]interface{}{
			"data":      string(payload),
			"timestamp": time.Now().Unix(),
		}); err != nil {
			b.logger.Error("Failed to forward frame to stream",
				zap.String("topic", topic),
				zap.Error(err))
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe frame topic %s: %w", b.topic, err)
	}

	b.logger.Info("Frame bridge started",
		zap.String("topic", b.topic),
		zap.String("stream", b.stream))
	return nil
}

// Stop 取消订阅
func (b *FrameBridge) Stop() {
	if err := b.mqttClient.Unsubscribe(b.topic); err != nil {
		b.logger.Warn("Failed to unsubscribe frame topic", zap.Error(err))
	}
}
