package models

import (
	"time"
)

// 报警事件状态（alarm_status 列取值）
const (
	AlarmStatusActive   = "active"
	AlarmStatusResolved = "resolved"
)

// AlarmEvent 报警事件（对应 alarm_events 表）
type AlarmEvent struct {
	EventID       string     `json:"event_id" db:"event_id"`
	TenantID      string     `json:"tenant_id" db:"tenant_id"`
	DeviceID      string     `json:"device_id" db:"device_id"`
	EventType     string     `json:"event_type" db:"event_type"`
	AlarmLevel    string     `json:"alarm_level" db:"alarm_level"` // Normal, Warning, Critical
	AlarmStatus   string     `json:"alarm_status" db:"alarm_status"`
	SeverityScore float64    `json:"severity_score" db:"severity_score"`
	TriggeredAt   time.Time  `json:"triggered_at" db:"triggered_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty" db:"resolved_at"`
	TriggerData   string     `json:"trigger_data" db:"trigger_data"` // JSONB
	Metadata      string     `json:"metadata" db:"metadata"`         // JSONB
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at" db:"updated_at"`
}

// TriggerData 触发数据快照（JSONB 结构）
type TriggerData struct {
	EventType       string             `json:"event_type"`
	Confidence      float64            `json:"confidence"`
	MotionIntensity float64            `json:"motion_intensity"`
	DurationSec     float64            `json:"duration_sec"`
	Metrics         map[string]float64 `json:"metrics,omitempty"`
	Source          string             `json:"source"` // "Vision"
}
