package models

import (
	"time"
)

// EventType 事件类型（闭集，编译期已知）
type EventType string

const (
	EventFall             EventType = "fall"
	EventBedExit          EventType = "bed_exit"
	EventImmobility       EventType = "immobility"
	EventAbnormalMovement EventType = "abnormal_movement"
)

// AllEventTypes 全部事件类型（固定顺序，用于遍历）
func AllEventTypes() []EventType {
	return []EventType{EventFall, EventBedExit, EventImmobility, EventAbnormalMovement}
}

// Level 报警级别（有序：Normal < Warning < Critical）
type Level string

const (
	LevelNormal   Level = "Normal"
	LevelWarning  Level = "Warning"
	LevelCritical Level = "Critical"
)

// Rank 级别序号，用于升级比较
func (l Level) Rank() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelCritical:
		return 2
	default:
		return 0
	}
}

// RawTrigger 规则评估的原始触发结果
// 由 EventRule 产生，仅在当次 tick 内有效
type RawTrigger struct {
	Type       EventType          `json:"type"`
	Confidence float64            `json:"confidence"` // [0,1]
	Metrics    map[string]float64 `json:"metrics,omitempty"`
}

// EventOccurrence 已确认的事件实例（由引擎在 Confirmed 状态创建）
// StartAt 固定不变；触发持续期间引擎延长 LastSeenAt，关闭时固定 EndAt
type EventOccurrence struct {
	OccurrenceID    string             `json:"occurrence_id"`
	Type            EventType          `json:"type"`
	StartAt         time.Time          `json:"start_at"`
	LastSeenAt      time.Time          `json:"last_seen_at"`
	EndAt           time.Time          `json:"end_at,omitempty"` // 零值表示仍处于开启状态
	PeakConfidence  float64            `json:"peak_confidence"`
	MotionIntensity float64            `json:"motion_intensity"` // 触发期间观测到的峰值运动强度
	Metrics         map[string]float64 `json:"metrics,omitempty"`
}

// Closed 事件是否已关闭
func (o *EventOccurrence) Closed() bool {
	return !o.EndAt.IsZero()
}

// Duration 事件持续时长（基于最后一次触发时间，保证可确定性）
func (o *EventOccurrence) Duration() time.Duration {
	if o.Closed() {
		return o.EndAt.Sub(o.StartAt)
	}
	return o.LastSeenAt.Sub(o.StartAt)
}

// ScoredAlert 带严重度评分的报警（不可变，一次评分一条）
type ScoredAlert struct {
	OccurrenceID    string    `json:"occurrence_id"`
	Type            EventType `json:"type"`
	Score           float64   `json:"score"` // [0,1]
	Level           Level     `json:"level"`
	Confidence      float64   `json:"confidence"`
	MotionIntensity float64   `json:"motion_intensity"`
	DurationSec     float64   `json:"duration_sec"`
	TriggeredAt     time.Time `json:"triggered_at"`
}

// ResolutionNotice 事件解除通知（级别回落到 Normal）
type ResolutionNotice struct {
	OccurrenceID string    `json:"occurrence_id"`
	Type         EventType `json:"type"`
	ResolvedAt   time.Time `json:"resolved_at"`
}
