package evaluator

import (
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/window"
)

// BedExitRule 离床检测
// 触发条件（确认窗口内持续满足任一项）：
//  1. 髋部中点持续处于画面上部区域（床在画面下部的布局假设）
//  2. 髋部向上运动速度超过阈值（起身动作）
type BedExitRule struct {
	upperFraction  float64
	upwardVelocity float64
	confirmWindow  time.Duration
	margin         float64
}

// NewBedExitRule 创建离床规则
func NewBedExitRule(cfg *config.Config) *BedExitRule {
	r := &cfg.Vision.Rules
	return &BedExitRule{
		upperFraction:  r.BedExitUpperFraction,
		upwardVelocity: r.BedExitUpwardVelocity,
		confirmWindow:  time.Duration(r.BedExitConfirmSec * float64(time.Second)),
		margin:         cfg.Vision.Engine.HysteresisMargin,
	}
}

// EventType 事件类型
func (r *BedExitRule) EventType() models.EventType {
	return models.EventBedExit
}

// Evaluate 评估离床
func (r *BedExitRule) Evaluate(win *window.Window, armed bool) (*models.RawTrigger, error) {
	snap, err := win.Snapshot(r.confirmWindow)
	if err != nil {
		return nil, err
	}

	upperThreshold := r.upperFraction
	velocityThreshold := r.upwardVelocity
	if armed {
		// y 越小越靠上：释放需要髋部明显回落
		upperThreshold *= 1 + r.margin
		velocityThreshold *= 1 - r.margin
	}

	// 位置条件：窗口内所有有髋部数据的帧都在上部区域
	var (
		firstY, lastY   float64
		firstMS, lastMS int64
		hipFrames       int
		sustained       = true
	)
	for _, f := range snap.Frames() {
		y, ok := f.HipCenterY()
		if !ok {
			continue
		}
		if hipFrames == 0 {
			firstY, firstMS = y, f.TimestampMS
		}
		lastY, lastMS = y, f.TimestampMS
		hipFrames++
		if y > upperThreshold {
			sustained = false
		}
	}
	if hipFrames < 2 {
		// 髋部数据不足
		return nil, nil
	}

	// 速度条件：窗口首尾髋部位移（y 减小为向上）
	var velocity float64
	if dt := float64(lastMS-firstMS) / 1000; dt > 0 {
		velocity = (firstY - lastY) / dt
	}

	if !sustained && velocity < velocityThreshold {
		return nil, nil
	}

	confidence := clamp01(0.6 + 0.2*(1-lastY))

	return &models.RawTrigger{
		Type:       models.EventBedExit,
		Confidence: confidence,
		Metrics: map[string]float64{
			"hip_y":           lastY,
			"upward_velocity": velocity,
		},
	}, nil
}
