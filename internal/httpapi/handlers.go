package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"wisefido-vision/internal/alert"
	"wisefido-vision/internal/engine"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/report"
	"wisefido-vision/internal/repository"
)

// VisionHandler 视觉报警服务的状态与查询接口
type VisionHandler struct {
	engine   *engine.Engine
	alerts   *alert.Manager
	hub      *alert.Hub // 未启用 WebSocket sink 时为 nil
	repo     *repository.AlarmEventsRepository
	tenantID string
	deviceID string
	logger   *zap.Logger
}

// NewVisionHandler 创建接口处理器
func NewVisionHandler(eng *engine.Engine, alerts *alert.Manager, hub *alert.Hub, repo *repository.AlarmEventsRepository, tenantID, deviceID string, logger *zap.Logger) *VisionHandler {
	return &VisionHandler{
		engine:   eng,
		alerts:   alerts,
		hub:      hub,
		repo:     repo,
		tenantID: tenantID,
		deviceID: deviceID,
		logger:   logger,
	}
}

// RegisterVisionRoutes 注册全部路由
func (r *Router) RegisterVisionRoutes(h *VisionHandler) {
	r.Handle("/healthz", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Handle("/api/v1/status", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetStatus(w, req)
	})

	r.Handle("/api/v1/alerts/recent", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetRecentAlerts(w, req)
	})

	r.Handle("/api/v1/alerts/history", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.GetAlertHistory(w, req)
	})

	r.Handle("/api/v1/alerts/export", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h.ExportAlertHistory(w, req)
	})

	if h.hub != nil {
		r.Handle("/ws/alerts", h.hub.HandleWS)
	}

	r.HandleHandler("/metrics", promhttp.Handler())
}

// GetStatus 引擎与分发层的状态快照
func (h *VisionHandler) GetStatus(w http.ResponseWriter, req *http.Request) {
	status := map[string]any{
		"service":   "wisefido-vision",
		"device_id": h.deviceID,
		"engine":    h.engine.Status(),
		"alerts": map[string]any{
			"stats":  h.alerts.Stats(),
			"active": h.alerts.ActiveTypes(),
		},
	}
	if h.hub != nil {
		status["websocket_clients"] = h.hub.ClientCount()
	}
	writeJSON(w, http.StatusOK, Ok(status))
}

// GetRecentAlerts 内存中最近分发的通知
func (h *VisionHandler) GetRecentAlerts(w http.ResponseWriter, req *http.Request) {
	limit := parseInt(req.URL.Query().Get("limit"), 20)
	recent := h.alerts.Recent(limit)
	if recent == nil {
		recent = []alert.Notification{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": recent,
		"total": len(recent),
	}))
}

// GetAlertHistory 数据库中的报警历史
func (h *VisionHandler) GetAlertHistory(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	start := parseTime(q.Get("start"))
	end := parseTime(q.Get("end"))
	limit := parseInt(q.Get("limit"), 100)

	events, err := h.repo.ListAlarmEvents(req.Context(), h.tenantID, h.deviceID, start, end, limit)
	if err != nil {
		h.logger.Error("Failed to list alarm events", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}
	if events == nil {
		events = []*models.AlarmEvent{}
	}
	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"items": events,
		"total": len(events),
	}))
}

// ExportAlertHistory 报警历史导出为 Excel
func (h *VisionHandler) ExportAlertHistory(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	start := parseTime(q.Get("start"))
	end := parseTime(q.Get("end"))
	limit := parseInt(q.Get("limit"), 1000)

	events, err := h.repo.ListAlarmEvents(req.Context(), h.tenantID, h.deviceID, start, end, limit)
	if err != nil {
		h.logger.Error("Failed to list alarm events for export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	data, err := report.GenerateAlarmEventExport(events)
	if err != nil {
		h.logger.Error("Failed to generate alarm export", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail(err.Error()))
		return
	}

	filename := fmt.Sprintf("alarm_events_%s.xlsx", time.Now().Format("20060102"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
