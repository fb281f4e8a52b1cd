package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
	"wisefido-vision/internal/models"
)

// AlarmEventsRepository 报警事件仓库（alarm_events 表）
type AlarmEventsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAlarmEventsRepository 创建报警事件仓库
func NewAlarmEventsRepository(db *sql.DB, logger *zap.Logger) *AlarmEventsRepository {
	return &AlarmEventsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateAlarmEvent 写入新报警事件
func (r *AlarmEventsRepository) CreateAlarmEvent(ctx context.Context, event *models.AlarmEvent) error {
	if event.EventID == "" {
		return fmt.Errorf("event_id is required")
	}

	query := `
		INSERT INTO alarm_events (
			event_id,
			tenant_id,
			device_id,
			event_type,
			alarm_level,
			alarm_status,
			severity_score,
			triggered_at,
			trigger_data,
			metadata,
			created_at,
			updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`

	_, err := r.db.ExecContext(ctx, query,
		event.EventID,
		event.TenantID,
		event.DeviceID,
		event.EventType,
		event.AlarmLevel,
		event.AlarmStatus,
		event.SeverityScore,
		event.TriggeredAt,
		event.TriggerData,
		event.Metadata,
	)
	if err != nil {
		return fmt.Errorf("failed to create alarm event: %w", err)
	}

	r.logger.Debug("Alarm event created",
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType))
	return nil
}

// UpdateAlarmLevel 更新报警级别和严重度分数（级别升级时调用）
func (r *AlarmEventsRepository) UpdateAlarmLevel(ctx context.Context, eventID, level string, score float64) error {
	query := `
		UPDATE alarm_events
		SET alarm_level = $1,
		    severity_score = $2,
		    updated_at = NOW()
		WHERE event_id = $3
	`

	result, err := r.db.ExecContext(ctx, query, level, score, eventID)
	if err != nil {
		return fmt.Errorf("failed to update alarm level: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("alarm event not found: %s", eventID)
	}

	return nil
}

// ResolveAlarmEvent 将报警标记为已解除
func (r *AlarmEventsRepository) ResolveAlarmEvent(ctx context.Context, eventID string, resolvedAt time.Time) error {
	query := `
		UPDATE alarm_events
		SET alarm_status = $1,
		    resolved_at = $2,
		    updated_at = NOW()
		WHERE event_id = $3 AND alarm_status = $4
	`

	result, err := r.db.ExecContext(ctx, query, models.AlarmStatusResolved, resolvedAt, eventID, models.AlarmStatusActive)
	if err != nil {
		return fmt.Errorf("failed to resolve alarm event: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("active alarm event not found: %s", eventID)
	}

	return nil
}

// GetAlarmEvent 根据 event_id 获取单个报警事件
func (r *AlarmEventsRepository) GetAlarmEvent(ctx context.Context, eventID string) (*models.AlarmEvent, error) {
	if eventID == "" {
		return nil, fmt.Errorf("event_id is required")
	}

	query := `
		SELECT
			event_id,
			tenant_id,
			device_id,
			event_type,
			alarm_level,
			alarm_status,
			severity_score,
			triggered_at,
			resolved_at,
			trigger_data,
			metadata,
			created_at,
			updated_at
		FROM alarm_events
		WHERE event_id = $1
	`

	var event models.AlarmEvent
	err := r.db.QueryRowContext(ctx, query, eventID).Scan(
		&event.EventID,
		&event.TenantID,
		&event.DeviceID,
		&event.EventType,
		&event.AlarmLevel,
		&event.AlarmStatus,
		&event.SeverityScore,
		&event.TriggeredAt,
		&event.ResolvedAt,
		&event.TriggerData,
		&event.Metadata,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alarm event: %w", err)
	}

	return &event, nil
}

// ListAlarmEvents 按时间段列出设备的报警事件（新的在前）
// start/end 为零值时不加对应的时间条件
func (r *AlarmEventsRepository) ListAlarmEvents(ctx context.Context, tenantID, deviceID string, start, end time.Time, limit int) ([]*models.AlarmEvent, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenant_id is required")
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT
			event_id,
			tenant_id,
			device_id,
			event_type,
			alarm_level,
			alarm_status,
			severity_score,
			triggered_at,
			resolved_at,
			trigger_data,
			metadata,
			created_at,
			updated_at
		FROM alarm_events
		WHERE tenant_id = $1
	`
	args := []interface{}{tenantID}
	argN := 2

	if deviceID != "" {
		query += fmt.Sprintf(" AND device_id = $%d", argN)
		args = append(args, deviceID)
		argN++
	}
	if !start.IsZero() {
		query += fmt.Sprintf(" AND triggered_at >= $%d", argN)
		args = append(args, start)
		argN++
	}
	if !end.IsZero() {
		query += fmt.Sprintf(" AND triggered_at <= $%d", argN)
		args = append(args, end)
		argN++
	}

	query += fmt.Sprintf(" ORDER BY triggered_at DESC LIMIT $%d", argN)
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alarm events: %w", err)
	}
	defer rows.Close()

	var events []*models.AlarmEvent
	for rows.Next() {
		var event models.AlarmEvent
		if err := rows.Scan(
			&event.EventID,
			&event.TenantID,
			&event.DeviceID,
			&event.EventType,
			&event.AlarmLevel,
			&event.AlarmStatus,
			&event.SeverityScore,
			&event.TriggeredAt,
			&event.ResolvedAt,
			&event.TriggerData,
			&event.Metadata,
			&event.CreatedAt,
			&event.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan alarm event: %w", err)
		}
		events = append(events, &event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alarm events: %w", err)
	}

	return events, nil
}
