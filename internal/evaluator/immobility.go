package evaluator

import (
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/window"
)

// ImmobilityRule 静止检测
// 触发条件：配置时长内运动强度持续低于低运动阈值
// 窗口内任何一帧超过阈值都不触发（短暂低运动不算静止）
type ImmobilityRule struct {
	motionThreshold float64
	duration        time.Duration
	margin          float64
}

// NewImmobilityRule 创建静止规则
func NewImmobilityRule(cfg *config.Config) *ImmobilityRule {
	r := &cfg.Vision.Rules
	return &ImmobilityRule{
		motionThreshold: r.ImmobilityMotionThreshold,
		duration:        time.Duration(r.ImmobilitySec * float64(time.Second)),
		margin:          cfg.Vision.Engine.HysteresisMargin,
	}
}

// EventType 事件类型
func (r *ImmobilityRule) EventType() models.EventType {
	return models.EventImmobility
}

// Evaluate 评估静止
func (r *ImmobilityRule) Evaluate(win *window.Window, armed bool) (*models.RawTrigger, error) {
	stats, err := win.MotionSince(r.duration)
	if err != nil {
		return nil, err
	}

	threshold := r.motionThreshold
	if armed {
		// 释放需要运动明显超过阈值（迟滞）
		threshold *= 1 + r.margin
	}

	if stats.Max >= threshold {
		return nil, nil
	}

	return &models.RawTrigger{
		Type:       models.EventImmobility,
		Confidence: 0.8,
		Metrics: map[string]float64{
			"max_motion":  stats.Max,
			"mean_motion": stats.Mean,
			"window_sec":  r.duration.Seconds(),
		},
	}, nil
}
