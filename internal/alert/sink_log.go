package alert

import (
	"context"

	"go.uber.org/zap"
	"wisefido-vision/internal/models"
)

// LogSink 结构化日志出口
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink 创建日志 sink
func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Name() string {
	return "log"
}

// Notify 按级别写结构化日志：Critical 走 Error，其余走 Warn
func (s *LogSink) Notify(_ context.Context, n Notification) error {
	if n.Kind == KindResolution {
		s.logger.Info("Alarm resolved",
			zap.String("event_type", string(n.Resolution.Type)),
			zap.String("occurrence_id", n.Resolution.OccurrenceID),
			zap.Time("resolved_at", n.Resolution.ResolvedAt))
		return nil
	}

	fields := []zap.Field{
		zap.String("event_type", string(n.Alert.Type)),
		zap.String("level", string(n.Alert.Level)),
		zap.Float64("score", n.Alert.Score),
		zap.String("occurrence_id", n.Alert.OccurrenceID),
		zap.Bool("escalated", n.Escalated),
	}
	if n.Alert.Level == models.LevelCritical {
		s.logger.Error("Alarm triggered", fields...)
	} else {
		s.logger.Warn("Alarm triggered", fields...)
	}
	return nil
}
