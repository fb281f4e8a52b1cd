package severity

import (
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
)

// Scorer 严重度评分器
// 纯函数式：相同的事件输入总是产生相同的分数和级别（无隐藏状态）
// score = clamp(0,1, w1*confidence + w2*intensity + w3*duration/norm)
// 权重按事件类型配置：跌倒偏重置信度，静止偏重持续时长
type Scorer struct {
	weights           map[models.EventType]config.Weights
	warningThreshold  float64
	criticalThreshold float64
	durationNormSec   float64
}

// NewScorer 创建评分器
func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{
		weights: map[models.EventType]config.Weights{
			models.EventFall:             cfg.Severity.FallWeights,
			models.EventBedExit:          cfg.Severity.BedExitWeights,
			models.EventImmobility:       cfg.Severity.ImmobilityWeights,
			models.EventAbnormalMovement: cfg.Severity.AbnormalWeights,
		},
		warningThreshold:  cfg.Severity.WarningThreshold,
		criticalThreshold: cfg.Severity.CriticalThreshold,
		durationNormSec:   cfg.Severity.DurationNormSec,
	}
}

// Score 对事件实例评分，返回不可变的 ScoredAlert
func (s *Scorer) Score(occ *models.EventOccurrence) models.ScoredAlert {
	w := s.weights[occ.Type]

	durationSec := occ.Duration().Seconds()
	durationFactor := durationSec / s.durationNormSec
	if durationFactor > 1 {
		durationFactor = 1
	}

	score := w.Confidence*occ.PeakConfidence + w.Intensity*occ.MotionIntensity + w.Duration*durationFactor
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	return models.ScoredAlert{
		OccurrenceID:    occ.OccurrenceID,
		Type:            occ.Type,
		Score:           score,
		Level:           s.level(score),
		Confidence:      occ.PeakConfidence,
		MotionIntensity: occ.MotionIntensity,
		DurationSec:     durationSec,
		TriggeredAt:     occ.StartAt,
	}
}

// level 分数到级别的映射（分界点来自配置）
func (s *Scorer) level(score float64) models.Level {
	switch {
	case score >= s.criticalThreshold:
		return models.LevelCritical
	case score >= s.warningThreshold:
		return models.LevelWarning
	default:
		return models.LevelNormal
	}
}
