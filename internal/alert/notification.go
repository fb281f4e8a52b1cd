package alert

import (
	"time"

	"wisefido-vision/internal/models"
)

// Kind 通知类型
type Kind string

const (
	KindAlert      Kind = "alert"
	KindResolution Kind = "resolution"
)

// Notification 分发给 sink 的通知
// Kind 为 alert 时 Alert 非空，为 resolution 时 Resolution 非空
type Notification struct {
	Kind       Kind                     `json:"kind"`
	Alert      *models.ScoredAlert      `json:"alert,omitempty"`
	Resolution *models.ResolutionNotice `json:"resolution,omitempty"`
	Initial    bool                     `json:"initial"`   // 本事件实例的首次分发
	Escalated  bool                     `json:"escalated"` // 级别升级触发的分发
	EmittedAt  time.Time                `json:"emitted_at"`
}

// Payload 构造对外推送的统一载荷（Redis/MQTT/WebSocket/Webhook 共用）
func (n *Notification) Payload() map[string]interface{} {
	if n.Kind == KindResolution {
		return map[string]interface{}{
			"event":    string(n.Resolution.Type),
			"severity": string(models.LevelNormal),
			"time":     n.Resolution.ResolvedAt.Format(time.RFC3339),
			"details": map[string]interface{}{
				"occurrence_id": n.Resolution.OccurrenceID,
				"resolved":      true,
			},
		}
	}
	return map[string]interface{}{
		"event":    string(n.Alert.Type),
		"severity": string(n.Alert.Level),
		"score":    n.Alert.Score,
		"time":     n.Alert.TriggeredAt.Format(time.RFC3339),
		"details": map[string]interface{}{
			"occurrence_id":    n.Alert.OccurrenceID,
			"confidence":       n.Alert.Confidence,
			"motion_intensity": n.Alert.MotionIntensity,
			"duration_sec":     n.Alert.DurationSec,
			"escalated":        n.Escalated,
		},
	}
}
