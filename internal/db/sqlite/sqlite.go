package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/klu/travelmanagement/internal/db"
	"github.com/klu/travelmanagement/internal/models"
	"github.com/klu/travelmanagement/internal/shared"
)

// Conn is the subset of the datasource the store needs
type Conn interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// SQLite implements the Store interface for SQLite
type SQLite struct {
	conn Conn
}

var _ db.Store = (*SQLite)(nil)

// New creates a new SQLite store on top of an open connection
func New(conn Conn) *SQLite {
	return &SQLite{conn: conn}
}

const instanceColumns = `id, name, profile, hostname, pid, schema_mode, started_at, last_heartbeat, stopped_at`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInstance(row scanner) (*models.Instance, error) {
	var instance models.Instance
	var lastHeartbeat, stoppedAt sql.NullTime

	err := row.Scan(
		&instance.ID,
		&instance.Name,
		&instance.Profile,
		&instance.Hostname,
		&instance.PID,
		&instance.SchemaMode,
		&instance.StartedAt,
		&lastHeartbeat,
		&stoppedAt,
	)
	if err != nil {
		return nil, err
	}

	if lastHeartbeat.Valid {
		t := lastHeartbeat.Time
		instance.LastHeartbeat = &t
	}
	if stoppedAt.Valid {
		t := stoppedAt.Time
		instance.StoppedAt = &t
	}
	return &instance, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

// Instance Operations

// CreateInstance records a new context start
func (s *SQLite) CreateInstance(ctx context.Context, instance *models.Instance) error {
	if instance.ID == "" {
		instance.ID = uuid.New().String()
	}
	if instance.StartedAt.IsZero() {
		instance.StartedAt = time.Now()
	}
	instance.StartedAt = instance.StartedAt.UTC()

	query := `
		INSERT INTO app_instances (` + instanceColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.conn.ExecContext(ctx, query,
		instance.ID,
		instance.Name,
		instance.Profile,
		instance.Hostname,
		instance.PID,
		instance.SchemaMode,
		instance.StartedAt,
		nullTime(instance.LastHeartbeat),
		nullTime(instance.StoppedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

// GetInstance retrieves an instance by ID
func (s *SQLite) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	query := `SELECT ` + instanceColumns + ` FROM app_instances WHERE id = ?`

	instance, err := scanInstance(s.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("instance %s: %w", id, db.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func instanceWhere(filter shared.InstanceFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}

	if filter.Name != "" {
		clauses = append(clauses, "name = ?")
		args = append(args, filter.Name)
	}
	if filter.Active != nil {
		if *filter.Active {
			clauses = append(clauses, "stopped_at IS NULL")
		} else {
			clauses = append(clauses, "stopped_at IS NOT NULL")
		}
	}
	if filter.StartedAfter != nil {
		clauses = append(clauses, "started_at >= ?")
		args = append(args, filter.StartedAfter.UTC())
	}
	if filter.StartedBefore != nil {
		clauses = append(clauses, "started_at < ?")
		args = append(args, filter.StartedBefore.UTC())
	}

	if len(clauses) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// ListInstances lists instances, newest first
func (s *SQLite) ListInstances(ctx context.Context, filter shared.InstanceFilter) ([]*models.Instance, error) {
	where, args := instanceWhere(filter)
	query := `SELECT ` + instanceColumns + ` FROM app_instances` + where + ` ORDER BY started_at DESC, id`

	if filter.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var instances []*models.Instance
	for rows.Next() {
		instance, err := scanInstance(rows)
		if err != nil {
			return nil, err
		}
		instances = append(instances, instance)
	}

	return instances, rows.Err()
}

// CountInstances counts instances, optionally only active or stopped ones
func (s *SQLite) CountInstances(ctx context.Context, active *bool) (int, error) {
	where, args := instanceWhere(shared.InstanceFilter{Active: active})

	var count int
	if err := s.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM app_instances`+where, args...).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// TouchInstance updates the heartbeat of an active instance
func (s *SQLite) TouchInstance(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE app_instances SET last_heartbeat = ? WHERE id = ? AND stopped_at IS NULL`
	return s.updateOne(ctx, id, query, at.UTC(), id)
}

// StopInstance marks an instance as stopped
func (s *SQLite) StopInstance(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE app_instances SET stopped_at = ? WHERE id = ?`
	return s.updateOne(ctx, id, query, at.UTC(), id)
}

func (s *SQLite) updateOne(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return fmt.Errorf("instance %s: %w", id, db.ErrNotFound)
	}

	return nil
}

// PurgeStoppedInstances deletes instances stopped before the given time, with their events
func (s *SQLite) PurgeStoppedInstances(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM app_instances WHERE stopped_at IS NOT NULL AND stopped_at < ?`
	result, err := s.conn.ExecContext(ctx, query, before.UTC())
	if err != nil {
		return 0, err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return int(rowsAffected), nil
}

// Event Operations

// RecordEvent appends an event to an instance's lifecycle log
func (s *SQLite) RecordEvent(ctx context.Context, event *models.LifecycleEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	event.CreatedAt = event.CreatedAt.UTC()

	query := `
		INSERT INTO lifecycle_events (id, instance_id, kind, component, detail, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`

	_, err := s.conn.ExecContext(ctx, query,
		event.ID,
		event.InstanceID,
		event.Kind,
		event.Component,
		event.Detail,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// ListEvents returns the most recent events of an instance, newest first
func (s *SQLite) ListEvents(ctx context.Context, instanceID string, limit int) ([]*models.LifecycleEvent, error) {
	query := `
		SELECT id, instance_id, kind, component, detail, created_at
		FROM lifecycle_events WHERE instance_id = ?
		ORDER BY created_at DESC, rowid DESC`
	args := []interface{}{instanceID}

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.LifecycleEvent
	for rows.Next() {
		var event models.LifecycleEvent
		err := rows.Scan(
			&event.ID,
			&event.InstanceID,
			&event.Kind,
			&event.Component,
			&event.Detail,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		events = append(events, &event)
	}

	return events, rows.Err()
}
