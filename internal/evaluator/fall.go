package evaluator

import (
	"time"

	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/window"
)

// FallRule 跌倒检测
// 触发条件：躯干水平角超过阈值，且满足以下任一项：
//  1. 关键点在短窗口内快速下坠超过画面比例阈值（快速下坠启发式）
//  2. 鼻部处于画面低位（人已在地面）
type FallRule struct {
	torsoAngleDeg   float64
	descentFraction float64
	descentWindow   time.Duration
	noseLowFraction float64
	margin          float64
}

// NewFallRule 创建跌倒规则
func NewFallRule(cfg *config.Config) *FallRule {
	r := &cfg.Vision.Rules
	return &FallRule{
		torsoAngleDeg:   r.FallTorsoAngleDeg,
		descentFraction: r.FallDescentFraction,
		descentWindow:   time.Duration(r.FallDescentWindowSec * float64(time.Second)),
		noseLowFraction: r.FallNoseLowFraction,
		margin:          cfg.Vision.Engine.HysteresisMargin,
	}
}

// EventType 事件类型
func (r *FallRule) EventType() models.EventType {
	return models.EventFall
}

// Evaluate 评估跌倒
func (r *FallRule) Evaluate(win *window.Window, armed bool) (*models.RawTrigger, error) {
	snap, err := win.Snapshot(r.descentWindow)
	if err != nil {
		return nil, err
	}

	last := snap.Last()
	angle, ok := last.TorsoAngle()
	if !ok {
		// 关键点不足，无法判定姿态
		return nil, nil
	}

	angleThreshold := r.torsoAngleDeg
	descentThreshold := r.descentFraction
	noseThreshold := r.noseLowFraction
	if armed {
		// Confirmed 期间放宽阈值（迟滞）
		angleThreshold *= 1 - r.margin
		descentThreshold *= 1 - r.margin
		noseThreshold *= 1 - r.margin
	}

	if angle < angleThreshold {
		return nil, nil
	}

	// 快速下坠：髋部中点在窗口内的纵向位移
	var descent float64
	first := snap.First()
	if firstY, ok1 := first.HipCenterY(); ok1 {
		if lastY, ok2 := last.HipCenterY(); ok2 {
			descent = lastY - firstY
		}
	}

	noseY, hasNose := last.NoseY()
	lowNose := hasNose && noseY >= noseThreshold

	if descent < descentThreshold && !lowNose {
		return nil, nil
	}

	poseConf := last.PoseConfidence(
		models.KeypointLeftShoulder, models.KeypointRightShoulder,
		models.KeypointLeftHip, models.KeypointRightHip,
	)
	confidence := clamp01(0.5*(angle/90) + 0.3*noseY + 0.2*poseConf)

	return &models.RawTrigger{
		Type:       models.EventFall,
		Confidence: confidence,
		Metrics: map[string]float64{
			"torso_angle":     angle,
			"descent":         descent,
			"nose_y":          noseY,
			"pose_confidence": poseConf,
		},
	}, nil
}
