package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"wisefido-vision/internal/models"
)

func setupMockAlarmEventsDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *AlarmEventsRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewAlarmEventsRepository(db, zap.NewNop())
	return db, mock, repo
}

func TestCreateAlarmEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	event := &models.AlarmEvent{
		EventID:       uuid.New().String(),
		TenantID:      uuid.New().String(),
		DeviceID:      uuid.New().String(),
		EventType:     "fall",
		AlarmLevel:    "Critical",
		AlarmStatus:   models.AlarmStatusActive,
		SeverityScore: 0.82,
		TriggeredAt:   time.Now(),
		TriggerData:   `{"source":"Vision"}`,
		Metadata:      `{}`,
	}

	mock.ExpectExec(`INSERT INTO alarm_events`).
		WithArgs(
			event.EventID, event.TenantID, event.DeviceID, event.EventType,
			event.AlarmLevel, event.AlarmStatus, event.SeverityScore,
			event.TriggeredAt, event.TriggerData, event.Metadata,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateAlarmEvent(context.Background(), event)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateAlarmEvent_MissingEventID(t *testing.T) {
	db, _, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	err := repo.CreateAlarmEvent(context.Background(), &models.AlarmEvent{})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "event_id is required")
}

func TestUpdateAlarmLevel_Success(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	mock.ExpectExec(`UPDATE alarm_events`).
		WithArgs("Critical", 0.91, eventID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateAlarmLevel(context.Background(), eventID, "Critical", 0.91)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateAlarmLevel_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	mock.ExpectExec(`UPDATE alarm_events`).
		WithArgs("Critical", 0.91, eventID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateAlarmLevel(context.Background(), eventID, "Critical", 0.91)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestResolveAlarmEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	resolvedAt := time.Now()

	mock.ExpectExec(`UPDATE alarm_events`).
		WithArgs(models.AlarmStatusResolved, resolvedAt, eventID, models.AlarmStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.ResolveAlarmEvent(context.Background(), eventID, resolvedAt)

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveAlarmEvent_AlreadyResolved(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	resolvedAt := time.Now()

	mock.ExpectExec(`UPDATE alarm_events`).
		WithArgs(models.AlarmStatusResolved, resolvedAt, eventID, models.AlarmStatusActive).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ResolveAlarmEvent(context.Background(), eventID, resolvedAt)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "active alarm event not found")
}

func TestGetAlarmEvent_Success(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	tenantID := uuid.New().String()
	deviceID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"event_id", "tenant_id", "device_id", "event_type", "alarm_level",
		"alarm_status", "severity_score", "triggered_at", "resolved_at",
		"trigger_data", "metadata", "created_at", "updated_at",
	}).AddRow(
		eventID, tenantID, deviceID, "immobility", "Warning",
		models.AlarmStatusActive, 0.55, now, nil,
		`{"source":"Vision"}`, `{}`, now, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnRows(rows)

	event, err := repo.GetAlarmEvent(context.Background(), eventID)

	require.NoError(t, err)
	require.NotNil(t, event)
	assert.Equal(t, eventID, event.EventID)
	assert.Equal(t, "immobility", event.EventType)
	assert.Equal(t, "Warning", event.AlarmLevel)
	assert.Nil(t, event.ResolvedAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetAlarmEvent_NotFound(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	eventID := uuid.New().String()
	mock.ExpectQuery(`SELECT`).
		WithArgs(eventID).
		WillReturnError(sql.ErrNoRows)

	event, err := repo.GetAlarmEvent(context.Background(), eventID)

	require.NoError(t, err)
	assert.Nil(t, event)
}

func TestListAlarmEvents_WithTimeRange(t *testing.T) {
	db, mock, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	tenantID := uuid.New().String()
	deviceID := uuid.New().String()
	start := time.Now().Add(-24 * time.Hour)
	end := time.Now()

	rows := sqlmock.NewRows([]string{
		"event_id", "tenant_id", "device_id", "event_type", "alarm_level",
		"alarm_status", "severity_score", "triggered_at", "resolved_at",
		"trigger_data", "metadata", "created_at", "updated_at",
	}).AddRow(
		uuid.New().String(), tenantID, deviceID, "fall", "Critical",
		models.AlarmStatusResolved, 0.9, end.Add(-time.Hour), end,
		`{}`, `{}`, end, end,
	).AddRow(
		uuid.New().String(), tenantID, deviceID, "bed_exit", "Warning",
		models.AlarmStatusResolved, 0.5, end.Add(-2*time.Hour), end,
		`{}`, `{}`, end, end,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs(tenantID, deviceID, start, end, 50).
		WillReturnRows(rows)

	events, err := repo.ListAlarmEvents(context.Background(), tenantID, deviceID, start, end, 50)

	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "fall", events[0].EventType)
	assert.Equal(t, "bed_exit", events[1].EventType)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListAlarmEvents_MissingTenant(t *testing.T) {
	db, _, repo := setupMockAlarmEventsDB(t)
	defer db.Close()

	_, err := repo.ListAlarmEvents(context.Background(), "", "", time.Time{}, time.Time{}, 10)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "tenant_id is required")
}
