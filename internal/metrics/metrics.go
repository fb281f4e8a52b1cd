package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// 视觉报警管线 Prometheus 指标
var (
	FramesIngested = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vision_frames_ingested_total",
		Help: "Total number of perception frames accepted into the signal window",
	})

	FramesDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_frames_dropped_total",
		Help: "Total number of frames dropped before evaluation",
	}, []string{"reason"})

	EngineTicks = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vision_engine_ticks_total",
		Help: "Total number of event engine evaluation ticks",
	})

	ActiveEvents = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vision_active_events",
		Help: "Currently confirmed event occurrences by type (0 or 1)",
	}, []string{"event_type"})

	WindowFrames = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vision_window_frames",
		Help: "Number of frames currently held in the signal window",
	})

	AlertsDispatched = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_alerts_dispatched_total",
		Help: "Total number of alert notifications dispatched to sinks",
	}, []string{"event_type", "level"})

	AlertsSuppressed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_alerts_suppressed_total",
		Help: "Total number of duplicate alerts suppressed by rate limiting",
	}, []string{"event_type"})

	SinkFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "vision_sink_failures_total",
		Help: "Total number of failed sink deliveries",
	}, []string{"sink"})
)

// Register 注册全部指标到默认 registry（进程启动时调用一次）
func Register() {
	prometheus.MustRegister(
		FramesIngested,
		FramesDropped,
		EngineTicks,
		ActiveEvents,
		WindowFrames,
		AlertsDispatched,
		AlertsSuppressed,
		SinkFailures,
	)
}
