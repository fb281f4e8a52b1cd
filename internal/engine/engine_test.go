package engine

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/evaluator"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/severity"
	"wisefido-vision/internal/window"
)

// stubRule 按脚本函数返回触发结果
type stubRule struct {
	typ models.EventType
	fn  func(armed bool) (*models.RawTrigger, error)
}

func (r *stubRule) EventType() models.EventType {
	return r.typ
}

func (r *stubRule) Evaluate(_ *window.Window, armed bool) (*models.RawTrigger, error) {
	return r.fn(armed)
}

// fakeNotifier 记录引擎提交的报警和解除通知
type fakeNotifier struct {
	mu          sync.Mutex
	alerts      []models.ScoredAlert
	resolutions []models.ResolutionNotice
}

func (f *fakeNotifier) Submit(a models.ScoredAlert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, a)
}

func (f *fakeNotifier) Resolve(notice models.ResolutionNotice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolutions = append(f.resolutions, notice)
}

func (f *fakeNotifier) submitted() []models.ScoredAlert {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ScoredAlert, len(f.alerts))
	copy(out, f.alerts)
	return out
}

func (f *fakeNotifier) resolved() []models.ResolutionNotice {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.ResolutionNotice, len(f.resolutions))
	copy(out, f.resolutions)
	return out
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Vision.Window.RetentionSec = 60
	cfg.Vision.Window.Capacity = 128
	cfg.Vision.Engine.TickIntervalMS = 1000
	cfg.Vision.Engine.DebounceTicks = 2
	cfg.Vision.Engine.GraceSec = 5
	cfg.Vision.Engine.CooldownSec = 30
	cfg.Vision.Engine.HysteresisMargin = 0.1
	cfg.Vision.Rules.FallTorsoAngleDeg = 55
	cfg.Vision.Rules.FallDescentFraction = 0.25
	cfg.Vision.Rules.FallDescentWindowSec = 1
	cfg.Vision.Rules.FallNoseLowFraction = 0.8
	cfg.Vision.Rules.BedExitUpperFraction = 0.4
	cfg.Vision.Rules.BedExitUpwardVelocity = 0.15
	cfg.Vision.Rules.BedExitConfirmSec = 2
	cfg.Vision.Rules.ImmobilityMotionThreshold = 0.1
	cfg.Vision.Rules.ImmobilitySec = 30
	cfg.Vision.Rules.AbnormalMotionThreshold = 0.7
	cfg.Vision.Rules.AbnormalSustainSec = 5
	cfg.Severity.WarningThreshold = 0.4
	cfg.Severity.CriticalThreshold = 0.7
	cfg.Severity.DurationNormSec = 60
	weights := config.Weights{Confidence: 0.6, Intensity: 0.2, Duration: 0.2}
	cfg.Severity.FallWeights = weights
	cfg.Severity.BedExitWeights = weights
	cfg.Severity.ImmobilityWeights = config.Weights{Confidence: 0.3, Intensity: 0.1, Duration: 0.6}
	cfg.Severity.AbnormalWeights = config.Weights{Confidence: 0.4, Intensity: 0.4, Duration: 0.2}
	return cfg
}

// newStubEngine 用脚本规则构造引擎（窗口留空）
func newStubEngine(cfg *config.Config, rule evaluator.Rule) (*Engine, *fakeNotifier) {
	win := window.New(time.Duration(cfg.Vision.Window.RetentionSec)*time.Second, cfg.Vision.Window.Capacity)
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, win, []evaluator.Rule{rule}, severity.NewScorer(cfg), notifier, zap.NewNop())
	return e, notifier
}

func trigger(confidence float64) *models.RawTrigger {
	return &models.RawTrigger{Type: models.EventFall, Confidence: confidence}
}

func TestEngine_DebounceRejectsInterruptedTriggers(t *testing.T) {
	// 脚本：触发/不触发交替，永远凑不齐连续 2 个触发 tick
	script := []bool{true, false, true, false, true, false}
	i := 0
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		fire := script[i]
		i++
		if fire {
			return trigger(0.9), nil
		}
		return nil, nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	for n := 0; n < len(script); n++ {
		e.Tick(t0.Add(time.Duration(n) * time.Second))
	}

	assert.Empty(t, notifier.submitted())
	assert.Equal(t, PhaseIdle, e.Status().Events[models.EventFall].Phase)
}

func TestEngine_ConfirmsAfterConsecutiveTriggers(t *testing.T) {
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		return trigger(0.9), nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	e.Tick(t0)
	assert.Empty(t, notifier.submitted(), "still pending after first trigger")

	e.Tick(t0.Add(time.Second))
	got := notifier.submitted()
	require.Len(t, got, 1)
	assert.Equal(t, models.EventFall, got[0].Type)
	assert.NotEmpty(t, got[0].OccurrenceID)
	// 事件起点是 Pending 首次触发的时间
	assert.Equal(t, t0, got[0].TriggeredAt)
	assert.Equal(t, PhaseConfirmed, e.Status().Events[models.EventFall].Phase)
}

func TestEngine_GraceHoldsThenCloses(t *testing.T) {
	fire := true
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		if fire {
			return trigger(0.9), nil
		}
		return nil, nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	e.Tick(t0)
	e.Tick(t0.Add(time.Second)) // Confirmed

	// 触发消失，宽限期（5 秒）内保持 Confirmed 且不发解除
	fire = false
	for n := 2; n <= 6; n++ {
		e.Tick(t0.Add(time.Duration(n) * time.Second))
	}
	assert.Empty(t, notifier.resolved())
	assert.Equal(t, PhaseConfirmed, e.Status().Events[models.EventFall].Phase)

	// 超过宽限期后关闭并进入冷却
	e.Tick(t0.Add(7 * time.Second))
	require.Len(t, notifier.resolved(), 1)
	assert.Equal(t, PhaseCooldown, e.Status().Events[models.EventFall].Phase)
}

func TestEngine_CooldownBlocksRetrigger(t *testing.T) {
	fire := true
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		if fire {
			return trigger(0.9), nil
		}
		return nil, nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	e.Tick(t0)
	e.Tick(t0.Add(time.Second)) // Confirmed
	firstID := notifier.submitted()[0].OccurrenceID

	fire = false
	e.Tick(t0.Add(7 * time.Second)) // 超过宽限期，关闭

	// 冷却期（30 秒）内重新触发不产生新事件
	fire = true
	e.Tick(t0.Add(10 * time.Second))
	e.Tick(t0.Add(11 * time.Second))
	assert.Len(t, notifier.submitted(), 1)
	assert.Equal(t, PhaseCooldown, e.Status().Events[models.EventFall].Phase)

	// 冷却结束后允许新事件实例
	e.Tick(t0.Add(38 * time.Second)) // cooldownUntil = t0+37s，已过 → Pending
	e.Tick(t0.Add(39 * time.Second)) // Confirmed
	got := notifier.submitted()
	require.Len(t, got, 2)
	assert.NotEqual(t, firstID, got[1].OccurrenceID)
}

func TestEngine_ArmedFlagFollowsConfirmedPhase(t *testing.T) {
	var armedSeen []bool
	rule := &stubRule{typ: models.EventFall, fn: func(armed bool) (*models.RawTrigger, error) {
		armedSeen = append(armedSeen, armed)
		return trigger(0.9), nil
	}}
	e, _ := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	for n := 0; n < 4; n++ {
		e.Tick(t0.Add(time.Duration(n) * time.Second))
	}

	// tick 0/1：未确认，armed=false；tick 2/3：已确认，armed=true
	require.Len(t, armedSeen, 4)
	assert.Equal(t, []bool{false, false, true, true}, armedSeen)
}

func TestEngine_ConfirmedTicksResubmitSameOccurrence(t *testing.T) {
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		return trigger(0.9), nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	for n := 0; n < 5; n++ {
		e.Tick(t0.Add(time.Duration(n) * time.Second))
	}

	// 确认于 tick 1，tick 1..4 各提交一次，且都是同一事件实例
	got := notifier.submitted()
	require.Len(t, got, 4)
	for _, a := range got {
		assert.Equal(t, got[0].OccurrenceID, a.OccurrenceID)
	}
	// 持续时长随 LastSeenAt 增长
	assert.Greater(t, got[3].DurationSec, got[0].DurationSec)
}

func TestEngine_StatusTracksLastScoreAndLevel(t *testing.T) {
	fire := true
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		if fire {
			return trigger(0.9), nil
		}
		return nil, nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	// 从未触发过的事件类型返回默认值
	initial := e.Status().Events[models.EventFall]
	assert.Zero(t, initial.LastScore)
	assert.Equal(t, models.LevelNormal, initial.LastLevel)

	t0 := time.Unix(1700000000, 0)
	e.Tick(t0)
	e.Tick(t0.Add(time.Second)) // Confirmed

	got := notifier.submitted()
	require.Len(t, got, 1)
	confirmed := e.Status().Events[models.EventFall]
	assert.Equal(t, got[0].Score, confirmed.LastScore)
	assert.Equal(t, got[0].Level, confirmed.LastLevel)
	assert.Greater(t, confirmed.LastScore, 0.0)

	// 事件关闭后最近一次评分结果仍可查询
	fire = false
	e.Tick(t0.Add(7 * time.Second))
	require.Len(t, notifier.resolved(), 1)
	closed := e.Status().Events[models.EventFall]
	assert.Equal(t, PhaseCooldown, closed.Phase)
	assert.Equal(t, got[0].Score, closed.LastScore)
	assert.Equal(t, got[0].Level, closed.LastLevel)
}

func TestEngine_PushFrameDropsMalformed(t *testing.T) {
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		return nil, nil
	}}
	e, _ := newStubEngine(testConfig(), rule)

	err := e.PushFrame(models.Frame{TimestampMS: 1000, MotionIntensity: math.NaN()})
	assert.Error(t, err)

	require.NoError(t, e.PushFrame(models.Frame{TimestampMS: 2000, MotionIntensity: 0.1}))
	err = e.PushFrame(models.Frame{TimestampMS: 1500, MotionIntensity: 0.1})
	assert.ErrorIs(t, err, window.ErrNonMonotonicFrame)

	status := e.Status()
	assert.Equal(t, uint64(1), status.FramesIngested)
	assert.Equal(t, uint64(1), status.FramesMalformed)
	assert.Equal(t, uint64(1), status.FramesOutOfOrder)
	assert.Equal(t, 1, status.WindowFrames)
}

func TestEngine_ShutdownClosesOpenOccurrences(t *testing.T) {
	rule := &stubRule{typ: models.EventFall, fn: func(bool) (*models.RawTrigger, error) {
		return trigger(0.9), nil
	}}
	e, notifier := newStubEngine(testConfig(), rule)

	t0 := time.Unix(1700000000, 0)
	e.Tick(t0)
	e.Tick(t0.Add(time.Second)) // Confirmed

	e.Shutdown(t0.Add(2 * time.Second))

	require.Len(t, notifier.resolved(), 1)
	assert.Equal(t, PhaseIdle, e.Status().Events[models.EventFall].Phase)
}

// 端到端场景：低运动帧流经真实规则产生恰好一次静止事件
func TestEngine_ImmobilityScenarioSingleOccurrence(t *testing.T) {
	cfg := testConfig()
	win := window.New(time.Duration(cfg.Vision.Window.RetentionSec)*time.Second, cfg.Vision.Window.Capacity)
	notifier := &fakeNotifier{}
	e := NewEngine(cfg, win, evaluator.NewRules(cfg), severity.NewScorer(cfg), notifier, zap.NewNop())

	t0 := time.Unix(1700000000, 0)
	for n := 1; n <= 40; n++ {
		now := t0.Add(time.Duration(n) * time.Second)
		require.NoError(t, e.PushFrame(models.Frame{
			TimestampMS:     now.UnixMilli(),
			MotionIntensity: 0.02,
		}))
		e.Tick(now)
	}

	got := notifier.submitted()
	require.NotEmpty(t, got)
	// 全部提交属于同一事件实例
	ids := make(map[string]bool)
	for _, a := range got {
		require.Equal(t, models.EventImmobility, a.Type)
		ids[a.OccurrenceID] = true
	}
	assert.Len(t, ids, 1)
	// 30 秒窗口在第 31 帧凑齐，去抖 2 tick 后于第 32 tick 确认
	assert.Len(t, got, 9)
	assert.Empty(t, notifier.resolved())
}
