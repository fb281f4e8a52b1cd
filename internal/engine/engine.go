package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/evaluator"
	"wisefido-vision/internal/metrics"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/severity"
	"wisefido-vision/internal/window"
)

// Phase 事件状态机阶段
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePending   Phase = "pending"
	PhaseConfirmed Phase = "confirmed"
	PhaseCooldown  Phase = "cooldown"
)

// Notifier 报警出口（由 alert.Manager 实现）
type Notifier interface {
	Submit(a models.ScoredAlert)
	Resolve(notice models.ResolutionNotice)
}

// eventState 单事件类型的状态机
// Idle → Pending（首次触发）→ Confirmed（连续触发满去抖数）→ Cooldown（关闭后冷却）→ Idle
type eventState struct {
	phase          Phase
	consecutive    int       // Pending 内连续触发的 tick 数
	pendingSince   time.Time // Pending 首次触发时间，确认后作为事件起点
	peakConfidence float64   // Pending 期间的置信度峰值
	occ            *models.EventOccurrence
	lastTriggerAt  time.Time // 最近一次触发 tick（宽限期基准）
	cooldownUntil  time.Time

	// 最近一次提交报警的评分结果（事件关闭后仍保留，供状态查询）
	lastScore float64
	lastLevel models.Level
}

// Engine 事件引擎：按固定节拍评估全部规则并驱动状态机
// 每个 Confirmed tick 都向 Notifier 重复提交评分报警，去重由分发层负责
type Engine struct {
	win    *window.Window
	rules  []evaluator.Rule
	scorer *severity.Scorer
	alerts Notifier

	tickInterval time.Duration
	debounce     int
	grace        time.Duration
	cooldown     time.Duration

	mu         sync.Mutex
	states     map[models.EventType]*eventState
	lastTickAt time.Time

	framesIngested   atomic.Uint64
	framesMalformed  atomic.Uint64
	framesOutOfOrder atomic.Uint64

	logger *zap.Logger
}

// NewEngine 创建事件引擎
func NewEngine(cfg *config.Config, win *window.Window, rules []evaluator.Rule, scorer *severity.Scorer, alerts Notifier, logger *zap.Logger) *Engine {
	e := &Engine{
		win:          win,
		rules:        rules,
		scorer:       scorer,
		alerts:       alerts,
		tickInterval: time.Duration(cfg.Vision.Engine.TickIntervalMS) * time.Millisecond,
		debounce:     cfg.Vision.Engine.DebounceTicks,
		grace:        time.Duration(cfg.Vision.Engine.GraceSec) * time.Second,
		cooldown:     time.Duration(cfg.Vision.Engine.CooldownSec) * time.Second,
		states:       make(map[models.EventType]*eventState),
		logger:       logger,
	}
	for _, r := range rules {
		e.states[r.EventType()] = &eventState{phase: PhaseIdle, lastLevel: models.LevelNormal}
	}
	return e
}

// PushFrame 接入一帧感知数据
// 畸形帧和乱序帧丢弃并计数，不进入窗口也不影响评估
func (e *Engine) PushFrame(f models.Frame) error {
	if err := f.Validate(); err != nil {
		e.framesMalformed.Add(1)
		metrics.FramesDropped.WithLabelValues("malformed").Inc()
		e.logger.Debug("Dropping malformed frame", zap.Error(err))
		return err
	}

	if err := e.win.Push(f); err != nil {
		if errors.Is(err, window.ErrNonMonotonicFrame) {
			e.framesOutOfOrder.Add(1)
			metrics.FramesDropped.WithLabelValues("out_of_order").Inc()
			e.logger.Debug("Dropping out-of-order frame", zap.Int64("timestamp_ms", f.TimestampMS))
		}
		return err
	}

	e.framesIngested.Add(1)
	metrics.FramesIngested.Inc()
	metrics.WindowFrames.Set(float64(e.win.Len()))
	return nil
}

// Run 按配置节拍驱动评估，ctx 取消后关闭全部开启中的事件再退出
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(e.tickInterval)
	defer ticker.Stop()

	e.logger.Info("Event engine started",
		zap.Duration("tick_interval", e.tickInterval),
		zap.Int("debounce_ticks", e.debounce))

	for {
		select {
		case <-ctx.Done():
			e.Shutdown(time.Now())
			return
		case now := <-ticker.C:
			e.Tick(now)
		}
	}
}

// Tick 执行一次评估：规则并行求值，状态机串行推进
func (e *Engine) Tick(now time.Time) {
	metrics.EngineTicks.Inc()

	// 规则求值前固定各类型的 armed 标志
	e.mu.Lock()
	armed := make(map[models.EventType]bool, len(e.states))
	for eventType, st := range e.states {
		armed[eventType] = st.phase == PhaseConfirmed
	}
	e.mu.Unlock()

	type evalResult struct {
		trigger *models.RawTrigger
		err     error
	}
	results := make([]evalResult, len(e.rules))

	var wg sync.WaitGroup
	for i, r := range e.rules {
		wg.Add(1)
		go func(i int, r evaluator.Rule) {
			defer wg.Done()
			trigger, err := r.Evaluate(e.win, armed[r.EventType()])
			results[i] = evalResult{trigger: trigger, err: err}
		}(i, r)
	}
	wg.Wait()

	// 当前运动强度（事件实例的运动峰值跟踪用）
	var motionNow float64
	if snap, err := e.win.Snapshot(0); err == nil {
		motionNow = snap.Last().MotionIntensity
	}

	e.mu.Lock()
	e.lastTickAt = now
	for i, r := range e.rules {
		res := results[i]
		if res.err != nil && !errors.Is(res.err, window.ErrInsufficientHistory) {
			e.logger.Warn("Rule evaluation failed",
				zap.String("event_type", string(r.EventType())),
				zap.Error(res.err))
		}
		e.advance(r.EventType(), res.trigger, motionNow, now)
	}
	e.mu.Unlock()
}

// advance 推进单个事件类型的状态机（持有 e.mu 调用）
func (e *Engine) advance(eventType models.EventType, trigger *models.RawTrigger, motionNow float64, now time.Time) {
	st := e.states[eventType]
	triggered := trigger != nil

	switch st.phase {
	case PhaseIdle:
		if triggered {
			st.phase = PhasePending
			st.consecutive = 1
			st.pendingSince = now
			st.peakConfidence = trigger.Confidence
			if st.consecutive >= e.debounce {
				e.confirm(st, eventType, trigger, motionNow, now)
			}
		}

	case PhasePending:
		if !triggered {
			// 去抖失败，回到 Idle
			st.phase = PhaseIdle
			st.consecutive = 0
			return
		}
		st.consecutive++
		if trigger.Confidence > st.peakConfidence {
			st.peakConfidence = trigger.Confidence
		}
		if st.consecutive >= e.debounce {
			e.confirm(st, eventType, trigger, motionNow, now)
		}

	case PhaseConfirmed:
		if triggered {
			st.lastTriggerAt = now
			st.occ.LastSeenAt = now
			st.occ.Metrics = trigger.Metrics
			if trigger.Confidence > st.occ.PeakConfidence {
				st.occ.PeakConfidence = trigger.Confidence
			}
			if motionNow > st.occ.MotionIntensity {
				st.occ.MotionIntensity = motionNow
			}
			// 持续触发期间重复提交，升级/提醒由分发层决定
			scored := e.scorer.Score(st.occ)
			st.lastScore = scored.Score
			st.lastLevel = scored.Level
			e.alerts.Submit(scored)
			return
		}
		if now.Sub(st.lastTriggerAt) > e.grace {
			e.close(st, eventType, now)
		}

	case PhaseCooldown:
		if now.Before(st.cooldownUntil) {
			return
		}
		st.phase = PhaseIdle
		st.consecutive = 0
		// 冷却结束的同一 tick 允许重新进入 Pending
		if triggered {
			e.advance(eventType, trigger, motionNow, now)
		}
	}
}

// confirm Pending→Confirmed：创建事件实例并提交首条报警
func (e *Engine) confirm(st *eventState, eventType models.EventType, trigger *models.RawTrigger, motionNow float64, now time.Time) {
	st.phase = PhaseConfirmed
	st.lastTriggerAt = now
	st.occ = &models.EventOccurrence{
		OccurrenceID:    uuid.New().String(),
		Type:            eventType,
		StartAt:         st.pendingSince,
		LastSeenAt:      now,
		PeakConfidence:  st.peakConfidence,
		MotionIntensity: motionNow,
		Metrics:         trigger.Metrics,
	}
	metrics.ActiveEvents.WithLabelValues(string(eventType)).Set(1)

	e.logger.Info("Event confirmed",
		zap.String("event_type", string(eventType)),
		zap.String("occurrence_id", st.occ.OccurrenceID),
		zap.Float64("confidence", st.occ.PeakConfidence))

	scored := e.scorer.Score(st.occ)
	st.lastScore = scored.Score
	st.lastLevel = scored.Level
	e.alerts.Submit(scored)
}

// close Confirmed→Cooldown：固定事件终点并发送解除通知
func (e *Engine) close(st *eventState, eventType models.EventType, now time.Time) {
	st.occ.EndAt = now
	metrics.ActiveEvents.WithLabelValues(string(eventType)).Set(0)

	e.logger.Info("Event closed",
		zap.String("event_type", string(eventType)),
		zap.String("occurrence_id", st.occ.OccurrenceID),
		zap.Duration("duration", st.occ.Duration()))

	e.alerts.Resolve(models.ResolutionNotice{
		OccurrenceID: st.occ.OccurrenceID,
		Type:         eventType,
		ResolvedAt:   now,
	})

	st.phase = PhaseCooldown
	st.cooldownUntil = now.Add(e.cooldown)
	st.consecutive = 0
	st.occ = nil
}

// Shutdown 关闭全部开启中的事件实例（优雅停机路径）
func (e *Engine) Shutdown(now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for eventType, st := range e.states {
		if st.phase == PhaseConfirmed {
			e.close(st, eventType, now)
		}
		st.phase = PhaseIdle
		st.consecutive = 0
	}
	e.logger.Info("Event engine stopped")
}

// EventStatus 单事件类型的对外状态
// LastScore/LastLevel 是最近一次提交报警的评分结果，事件解除后不清零
type EventStatus struct {
	Phase        Phase        `json:"phase"`
	OccurrenceID string       `json:"occurrence_id,omitempty"`
	StartAt      *time.Time   `json:"start_at,omitempty"`
	Consecutive  int          `json:"consecutive_ticks,omitempty"`
	LastScore    float64      `json:"last_score"`
	LastLevel    models.Level `json:"last_level"`
}

// Status 引擎整体状态快照（状态查询接口用）
type Status struct {
	WindowFrames     int                              `json:"window_frames"`
	FramesIngested   uint64                           `json:"frames_ingested"`
	FramesMalformed  uint64                           `json:"frames_malformed"`
	FramesOutOfOrder uint64                           `json:"frames_out_of_order"`
	LastTickAt       time.Time                        `json:"last_tick_at"`
	Events           map[models.EventType]EventStatus `json:"events"`
}

// Status 返回当前状态快照
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	events := make(map[models.EventType]EventStatus, len(e.states))
	for eventType, st := range e.states {
		es := EventStatus{
			Phase:       st.phase,
			Consecutive: st.consecutive,
			LastScore:   st.lastScore,
			LastLevel:   st.lastLevel,
		}
		if st.occ != nil {
			es.OccurrenceID = st.occ.OccurrenceID
			startAt := st.occ.StartAt
			es.StartAt = &startAt
		}
		events[eventType] = es
	}

	return Status{
		WindowFrames:     e.win.Len(),
		FramesIngested:   e.framesIngested.Load(),
		FramesMalformed:  e.framesMalformed.Load(),
		FramesOutOfOrder: e.framesOutOfOrder.Load(),
		LastTickAt:       e.lastTickAt,
		Events:           events,
	}
}
