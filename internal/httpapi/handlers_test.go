package httpapi

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-vision/internal/alert"
	"wisefido-vision/internal/config"
	"wisefido-vision/internal/engine"
	"wisefido-vision/internal/evaluator"
	"wisefido-vision/internal/models"
	"wisefido-vision/internal/repository"
	"wisefido-vision/internal/severity"
	"wisefido-vision/internal/window"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Vision.TenantID = "tenant-1"
	cfg.Vision.DeviceID = "cam-1"
	cfg.Vision.Window.RetentionSec = 30
	cfg.Vision.Window.Capacity = 64
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
	cfg.Severity.ImmobilityWeights = weights
	cfg.Severity.AbnormalWeights = weights
	cfg.Alert.RateLimitSec = 10
	cfg.Alert.DispatchTimeoutMS = 100
	cfg.Alert.QueueSize = 16
	cfg.Alert.RecentBuffer = 10
	return cfg
}

func setupHandler(t *testing.T) (*Router, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := testConfig()
	logger := zap.NewNop()

	win := window.New(time.Duration(cfg.Vision.Window.RetentionSec)*time.Second, cfg.Vision.Window.Capacity)
	manager := alert.NewManager(cfg, logger)
	eng := engine.NewEngine(cfg, win, evaluator.NewRules(cfg), severity.NewScorer(cfg), manager, logger)
	repo := repository.NewAlarmEventsRepository(db, logger)

	handler := NewVisionHandler(eng, manager, nil, repo, cfg.Vision.TenantID, cfg.Vision.DeviceID, logger)
	router := NewRouter(logger)
	router.RegisterVisionRoutes(handler)
	return router, mock
}

func TestHealthz(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestGetStatus(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Result[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ResultSuccess, resp.Code)
	assert.Equal(t, "wisefido-vision", resp.Result["service"])
	assert.Equal(t, "cam-1", resp.Result["device_id"])

	engineStatus, ok := resp.Result["engine"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(0), engineStatus["window_frames"])

	// 每个事件类型都带最近一次评分结果
	events, ok := engineStatus["events"].(map[string]any)
	require.True(t, ok)
	fall, ok := events[string(models.EventFall)].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, string(engine.PhaseIdle), fall["phase"])
	assert.Equal(t, float64(0), fall["last_score"])
	assert.Equal(t, string(models.LevelNormal), fall["last_level"])
}

func TestGetStatus_MethodNotAllowed(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestGetRecentAlerts_Empty(t *testing.T) {
	router, _ := setupHandler(t)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/recent", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Result[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(0), resp.Result["total"])
}

func TestGetAlertHistory(t *testing.T) {
	router, mock := setupHandler(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"event_id", "tenant_id", "device_id", "event_type", "alarm_level",
		"alarm_status", "severity_score", "triggered_at", "resolved_at",
		"trigger_data", "metadata", "created_at", "updated_at",
	}).AddRow(
		"evt-1", "tenant-1", "cam-1", "fall", "Critical",
		models.AlarmStatusActive, 0.9, now, nil,
		`{}`, `{}`, now, now,
	)
	mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "cam-1", 100).
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Result[map[string]any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ResultSuccess, resp.Code)
	assert.Equal(t, float64(1), resp.Result["total"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlertHistory_QueryError(t *testing.T) {
	router, mock := setupHandler(t)

	mock.ExpectQuery(`SELECT`).WillReturnError(sql.ErrConnDone)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/history", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var resp Result[any]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, ResultError, resp.Code)
}

func TestExportAlertHistory(t *testing.T) {
	router, mock := setupHandler(t)

	rows := sqlmock.NewRows([]string{
		"event_id", "tenant_id", "device_id", "event_type", "alarm_level",
		"alarm_status", "severity_score", "triggered_at", "resolved_at",
		"trigger_data", "metadata", "created_at", "updated_at",
	})
	mock.ExpectQuery(`SELECT`).
		WithArgs("tenant-1", "cam-1", 1000).
		WillReturnRows(rows)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/alerts/export", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t,
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Body.Bytes())
	require.NoError(t, mock.ExpectationsWereMet())
}
