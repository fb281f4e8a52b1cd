package evaluator

import (
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/window"
)

// AbnormalMovementRule 异常运动检测
// 触发条件：中等窗口内运动强度持续高于高运动阈值
// 用窗口最小值判定"持续"，区分持续躁动和单帧噪声
type AbnormalMovementRule struct {
	motionThreshold float64
	sustain         time.Duration
	margin          float64
}

// NewAbnormalMovementRule 创建异常运动规则
func NewAbnormalMovementRule(cfg *config.Config) *AbnormalMovementRule {
	r := &cfg.Vision.Rules
	return &AbnormalMovementRule{
		motionThreshold: r.AbnormalMotionThreshold,
		sustain:         time.Duration(r.AbnormalSustainSec * float64(time.Second)),
		margin:          cfg.Vision.Engine.HysteresisMargin,
	}
}

// EventType 事件类型
func (r *AbnormalMovementRule) EventType() models.EventType {
	return models.EventAbnormalMovement
}

// Evaluate 评估异常运动
func (r *AbnormalMovementRule) Evaluate(win *window.Window, armed bool) (*models.RawTrigger, error) {
	stats, err := win.MotionSince(r.sustain)
	if err != nil {
		return nil, err
	}

	threshold := r.motionThreshold
	if armed {
		threshold *= 1 - r.margin
	}

	if stats.Min < threshold {
		return nil, nil
	}

	return &models.RawTrigger{
		Type:       models.EventAbnormalMovement,
		Confidence: clamp01(stats.Mean),
		Metrics: map[string]float64{
			"mean_motion": stats.Mean,
			"min_motion":  stats.Min,
			"window_sec":  r.sustain.Seconds(),
		},
	}, nil
}
