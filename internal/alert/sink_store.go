package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wisefido-vision/internal/models"
)

// AlarmStore 报警持久化接口（由 repository 实现）
type AlarmStore interface {
	CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error
	UpdateAlarmLevel(ctx context.Context, eventID, level string, score float64) error
	ResolveAlarmEvent(ctx context.Context, eventID string, resolvedAt time.Time) error
}

// StoreSink 数据库持久化出口
// 首次分发落库，升级更新级别，解除时标记 resolved；限流后的重复提醒不落库
type StoreSink struct {
	store    AlarmStore
	tenantID string
	deviceID string
}

// NewStoreSink 创建持久化 sink
func NewStoreSink(store AlarmStore, tenantID, deviceID string) *StoreSink {
	return &StoreSink{store: store, tenantID: tenantID, deviceID: deviceID}
}

func (s *StoreSink) Name() string {
	return "store"
}

func (s *StoreSink) Notify(ctx context.Context, n Notification) error {
	if n.Kind == KindResolution {
		return s.store.ResolveAlarmEvent(ctx, n.Resolution.OccurrenceID, n.Resolution.ResolvedAt)
	}

	switch {
	case n.Initial:
		triggerData, err := json.Marshal(models.TriggerData{
			EventType:       string(n.Alert.Type),
			Confidence:      n.Alert.Confidence,
			MotionIntensity: n.Alert.MotionIntensity,
			DurationSec:     n.Alert.DurationSec,
			Source:          "Vision",
		})
		if err != nil {
			return fmt.Errorf("failed to marshal trigger data: %w", err)
		}
		return s.store.CreateAlarmEvent(ctx, &models.AlarmEvent{
			EventID:       n.Alert.OccurrenceID,
			TenantID:      s.tenantID,
			DeviceID:      s.deviceID,
			EventType:     string(n.Alert.Type),
			AlarmLevel:    string(n.Alert.Level),
			AlarmStatus:   models.AlarmStatusActive,
			SeverityScore: n.Alert.Score,
			TriggeredAt:   n.Alert.TriggeredAt,
			TriggerData:   string(triggerData),
			Metadata:      "{}",
		})

	case n.Escalated:
		return s.store.UpdateAlarmLevel(ctx, n.Alert.OccurrenceID, string(n.Alert.Level), n.Alert.Score)

	default:
		return nil
	}
}
