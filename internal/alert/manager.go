package alert

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/metrics"
	"wisefido-vision/internal/models"
)

// alertState 单个事件类型的分发状态
type alertState struct {
	active         bool
	occurrenceID   string
	lastLevel      models.Level
	lastDispatched time.Time
	lastSeen       time.Time
}

// Stats 分发统计
type Stats struct {
	Dispatched   uint64 `json:"dispatched"`
	Suppressed   uint64 `json:"suppressed"`
	Escalated    uint64 `json:"escalated"`
	Resolved     uint64 `json:"resolved"`
	SinkFailures uint64 `json:"sink_failures"`
	QueueDropped uint64 `json:"queue_dropped"`
}

// Manager 报警分发管理器
// 去重策略：同一事件实例持续触发时，级别升级立即分发（绕过限流），
// 非升级的重复报警在限流间隔内抑制，超过间隔后作为提醒重发
type Manager struct {
	mu     sync.Mutex
	states map[models.EventType]*alertState

	sinks           []Sink
	rateLimit       time.Duration
	dispatchTimeout time.Duration
	queue           chan Notification

	recentMu  sync.Mutex
	recent    []Notification
	recentMax int

	dispatched   atomic.Uint64
	suppressed   atomic.Uint64
	escalated    atomic.Uint64
	resolved     atomic.Uint64
	sinkFailures atomic.Uint64
	queueDropped atomic.Uint64

	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewManager 创建报警管理器（sink 通过 RegisterSink 挂载）
func NewManager(cfg *config.Config, logger *zap.Logger) *Manager {
	return &Manager{
		states:          make(map[models.EventType]*alertState),
		rateLimit:       time.Duration(cfg.Alert.RateLimitSec) * time.Second,
		dispatchTimeout: time.Duration(cfg.Alert.DispatchTimeoutMS) * time.Millisecond,
		queue:           make(chan Notification, cfg.Alert.QueueSize),
		recentMax:       cfg.Alert.RecentBuffer,
		logger:          logger,
	}
}

// RegisterSink 挂载通知出口
func (m *Manager) RegisterSink(s Sink) {
	m.sinks = append(m.sinks, s)
	m.logger.Info("Alert sink registered", zap.String("sink", s.Name()))
}

// Start 启动分发协程，ctx 取消后清空残留队列再退出
func (m *Manager) Start(ctx context.Context) {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		for {
			select {
			case <-ctx.Done():
				for {
					select {
					case n := <-m.queue:
						m.deliver(context.Background(), n)
					default:
						return
					}
				}
			case n := <-m.queue:
				m.deliver(ctx, n)
			}
		}
	}()
}

// Wait 等待分发协程退出（Start 的 ctx 取消后调用）
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Submit 提交已评分的报警，由去重/限流策略决定是否分发
func (m *Manager) Submit(a models.ScoredAlert) {
	m.submit(a, time.Now())
}

func (m *Manager) submit(a models.ScoredAlert, now time.Time) {
	m.mu.Lock()
	st := m.states[a.Type]
	if st == nil {
		st = &alertState{}
		m.states[a.Type] = st
	}
	st.lastSeen = now

	var n Notification
	switch {
	case !st.active || st.occurrenceID != a.OccurrenceID:
		// 新事件实例，立即分发
		st.active = true
		st.occurrenceID = a.OccurrenceID
		st.lastLevel = a.Level
		st.lastDispatched = now
		n = Notification{Kind: KindAlert, Alert: &a, Initial: true, EmittedAt: now}

	case a.Level.Rank() > st.lastLevel.Rank():
		// 级别升级绕过限流
		st.lastLevel = a.Level
		st.lastDispatched = now
		m.escalated.Add(1)
		n = Notification{Kind: KindAlert, Alert: &a, Escalated: true, EmittedAt: now}

	case now.Sub(st.lastDispatched) >= m.rateLimit:
		// 限流间隔已过，重发提醒；级别回落要留痕，便于排查响应策略
		if a.Level.Rank() < st.lastLevel.Rank() {
			m.logger.Info("Alarm level decreased on re-dispatch",
				zap.String("event_type", string(a.Type)),
				zap.String("occurrence_id", a.OccurrenceID),
				zap.String("from", string(st.lastLevel)),
				zap.String("to", string(a.Level)))
		}
		st.lastLevel = a.Level
		st.lastDispatched = now
		n = Notification{Kind: KindAlert, Alert: &a, EmittedAt: now}

	default:
		m.mu.Unlock()
		m.suppressed.Add(1)
		metrics.AlertsSuppressed.WithLabelValues(string(a.Type)).Inc()
		return
	}
	m.mu.Unlock()

	m.dispatched.Add(1)
	metrics.AlertsDispatched.WithLabelValues(string(a.Type), string(a.Level)).Inc()
	m.enqueue(n)
}

// Resolve 提交事件解除通知（不受限流约束）
func (m *Manager) Resolve(notice models.ResolutionNotice) {
	m.resolve(notice, time.Now())
}

func (m *Manager) resolve(notice models.ResolutionNotice, now time.Time) {
	m.mu.Lock()
	st := m.states[notice.Type]
	if st == nil || !st.active || st.occurrenceID != notice.OccurrenceID {
		m.mu.Unlock()
		m.logger.Debug("Ignoring resolution for unknown occurrence",
			zap.String("event_type", string(notice.Type)),
			zap.String("occurrence_id", notice.OccurrenceID))
		return
	}
	st.active = false
	m.mu.Unlock()

	m.resolved.Add(1)
	m.enqueue(Notification{Kind: KindResolution, Resolution: &notice, EmittedAt: now})
}

// ActiveTypes 当前处于活跃报警状态的事件类型及其最近级别
func (m *Manager) ActiveTypes() map[models.EventType]models.Level {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := make(map[models.EventType]models.Level)
	for eventType, st := range m.states {
		if st.active {
			active[eventType] = st.lastLevel
		}
	}
	return active
}

// Recent 最近分发的通知，新的在前
func (m *Manager) Recent(limit int) []Notification {
	m.recentMu.Lock()
	defer m.recentMu.Unlock()

	if limit <= 0 || limit > len(m.recent) {
		limit = len(m.recent)
	}
	out := make([]Notification, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.recent[len(m.recent)-1-i]
	}
	return out
}

// Stats 分发统计快照
func (m *Manager) Stats() Stats {
	return Stats{
		Dispatched:   m.dispatched.Load(),
		Suppressed:   m.suppressed.Load(),
		Escalated:    m.escalated.Load(),
		Resolved:     m.resolved.Load(),
		SinkFailures: m.sinkFailures.Load(),
		QueueDropped: m.queueDropped.Load(),
	}
}

// enqueue 非阻塞入队，队列满则丢弃并告警
func (m *Manager) enqueue(n Notification) {
	select {
	case m.queue <- n:
	default:
		m.queueDropped.Add(1)
		m.logger.Warn("Alert queue full, dropping notification",
			zap.String("kind", string(n.Kind)))
	}
}

// deliver 将通知逐个送达全部 sink，单个失败不影响其余
func (m *Manager) deliver(ctx context.Context, n Notification) {
	for _, s := range m.sinks {
		sctx, cancel := context.WithTimeout(ctx, m.dispatchTimeout)
		err := s.Notify(sctx, n)
		cancel()
		if err != nil {
			m.sinkFailures.Add(1)
			metrics.SinkFailures.WithLabelValues(s.Name()).Inc()
			m.logger.Error("Alert sink delivery failed",
				zap.String("sink", s.Name()),
				zap.String("kind", string(n.Kind)),
				zap.Error(err))
		}
	}

	m.recentMu.Lock()
	m.recent = append(m.recent, n)
	if len(m.recent) > m.recentMax {
		m.recent = m.recent[len(m.recent)-m.recentMax:]
	}
	m.recentMu.Unlock()
}
