package evaluator

import (
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/window"
)

// Rule 事件规则：对信号窗口做只读评估，产生原始触发或 nil
// armed 表示该事件当前处于 Confirmed 状态，规则应用迟滞余量放宽阈值，
// 避免信号在阈值附近抖动导致的状态震荡
type Rule interface {
	EventType() models.EventType
	Evaluate(win *window.Window, armed bool) (*models.RawTrigger, error)
}

// NewRules 创建全部事件规则（固定集合：跌倒/离床/静止/异动）
func NewRules(cfg *config.Config) []Rule {
	return []Rule{
		NewFallRule(cfg),
		NewBedExitRule(cfg),
		NewImmobilityRule(cfg),
		NewAbnormalMovementRule(cfg),
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
