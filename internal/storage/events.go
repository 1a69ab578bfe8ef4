package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/recording"
)

var ErrRecordNotFound = errors.New("record not found")

// DBTX is a common interface for *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// StoredEvent is a persisted detection event row.
type StoredEvent struct {
	ID            int64     `json:"id"`
	CameraID      string    `json:"camera_id"`
	EventType     string    `json:"event_type"`
	Confidence    float64   `json:"confidence"`
	ClipPath      string    `json:"clip_path"`
	ThumbnailPath string    `json:"thumbnail_path"`
	Timestamp     time.Time `json:"timestamp"`
	Duration      float64   `json:"duration_seconds"`
	BBox          []byte    `json:"bbox,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type EventModel struct {
	DB DBTX
}

// PersistEvent implements recording.EventStore.
func (m EventModel) PersistEvent(ctx context.Context, rec recording.EventRecord) (int64, error) {
	var boxJSON []byte
	if rec.Box != nil {
		b, err := json.Marshal(rec.Box)
		if err != nil {
			return 0, err
		}
		boxJSON = b
	}

	query := `
		INSERT INTO events (
			camera_id, event_type, confidence,
			clip_path, thumbnail_path, occurred_at, duration_seconds, bbox
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`

	var id int64
	err := m.DB.QueryRowContext(ctx, query,
		rec.CameraID, rec.EventType, rec.Confidence,
		rec.ClipPath, rec.ThumbnailPath, rec.Timestamp.UTC(), rec.Duration, boxJSON,
	).Scan(&id)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// GetByID retrieves a single event.
func (m EventModel) GetByID(ctx context.Context, id int64) (*StoredEvent, error) {
	query := `
		SELECT id, camera_id, event_type, confidence,
		       clip_path, thumbnail_path, occurred_at, duration_seconds, bbox, created_at
		FROM events
		WHERE id = $1`

	var e StoredEvent
	var bbox sql.NullString
	err := m.DB.QueryRowContext(ctx, query, id).Scan(
		&e.ID, &e.CameraID, &e.EventType, &e.Confidence,
		&e.ClipPath, &e.ThumbnailPath, &e.Timestamp, &e.Duration, &bbox, &e.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}
	if bbox.Valid {
		e.BBox = []byte(bbox.String)
	}
	return &e, nil
}

// EventFilter parameters
type EventFilter struct {
	CameraID  string
	EventType string
	Since     *time.Time
}

// List retrieves events newest-first.
func (m EventModel) List(ctx context.Context, filter EventFilter, limit, offset int) ([]*StoredEvent, error) {
	if limit <= 0 {
		limit = 50
	}

	where := "WHERE 1=1"
	args := []any{}
	nextArg := 1

	if filter.CameraID != "" {
		where += fmt.Sprintf(" AND camera_id = $%d", nextArg)
		args = append(args, filter.CameraID)
		nextArg++
	}
	if filter.EventType != "" {
		where += fmt.Sprintf(" AND event_type = $%d", nextArg)
		args = append(args, filter.EventType)
		nextArg++
	}
	if filter.Since != nil {
		where += fmt.Sprintf(" AND occurred_at >= $%d", nextArg)
		args = append(args, filter.Since.UTC())
		nextArg++
	}

	query := fmt.Sprintf(`
		SELECT id, camera_id, event_type, confidence,
		       clip_path, thumbnail_path, occurred_at, duration_seconds, bbox, created_at
		FROM events
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d`, where, nextArg, nextArg+1)

	args = append(args, limit, offset)

	rows, err := m.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*StoredEvent
	for rows.Next() {
		var e StoredEvent
		var bbox sql.NullString
		if err := rows.Scan(
			&e.ID, &e.CameraID, &e.EventType, &e.Confidence,
			&e.ClipPath, &e.ThumbnailPath, &e.Timestamp, &e.Duration, &bbox, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		if bbox.Valid {
			e.BBox = []byte(bbox.String)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

// Prune deletes events older than the cutoff, returning rows removed.
func (m EventModel) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := m.DB.ExecContext(ctx, `DELETE FROM events WHERE occurred_at < $1`, before.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
