package storage_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/detect"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/recording"
	"github.com/asppereirabynnor/VisionFlowMonitoring/internal/storage"
)

func testRecord() recording.EventRecord {
	return recording.EventRecord{
		CameraID:      "cam1",
		EventType:     "person",
		Confidence:    0.87,
		ClipPath:      "/events/cam1_person_20260314_103000.mp4",
		ThumbnailPath: "/events/cam1_person_20260314_103000_thumb.jpg",
		Timestamp:     time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC),
		Duration:      8,
		Box:           &detect.BBox{CX: 0.5, CY: 0.5, W: 0.2, H: 0.4},
	}
}

func TestPersistEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO events").
		WithArgs("cam1", "person", 0.87,
			"/events/cam1_person_20260314_103000.mp4",
			"/events/cam1_person_20260314_103000_thumb.jpg",
			sqlmock.AnyArg(), float64(8), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

	m := storage.EventModel{DB: db}
	id, err := m.PersistEvent(context.Background(), testRecord())
	require.NoError(t, err)
	assert.Equal(t, int64(42), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersistEventError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("INSERT INTO events").WillReturnError(sql.ErrConnDone)

	m := storage.EventModel{DB: db}
	_, err = m.PersistEvent(context.Background(), testRecord())
	assert.Error(t, err)
}

func TestGetByIDNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("SELECT (.+) FROM events").
		WithArgs(int64(7)).
		WillReturnError(sql.ErrNoRows)

	m := storage.EventModel{DB: db}
	_, err = m.GetByID(context.Background(), 7)
	assert.ErrorIs(t, err, storage.ErrRecordNotFound)
}

func TestListWithFilters(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"id", "camera_id", "event_type", "confidence",
		"clip_path", "thumbnail_path", "occurred_at", "duration_seconds", "bbox", "created_at",
	}).
		AddRow(2, "cam1", "person", 0.9, "/e/a.mp4", "/e/a.jpg", now, 8.0, nil, now).
		AddRow(1, "cam1", "person", 0.8, "/e/b.mp4", "/e/b.jpg", now.Add(-time.Minute), 8.0, nil, now)

	mock.ExpectQuery("SELECT (.+) FROM events").
		WithArgs("cam1", "person", 10, 0).
		WillReturnRows(rows)

	m := storage.EventModel{DB: db}
	out, err := m.List(context.Background(), storage.EventFilter{
		CameraID:  "cam1",
		EventType: "person",
	}, 10, 0)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, int64(2), out[0].ID)
	assert.Equal(t, "cam1", out[0].CameraID)
}

func TestPrune(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM events").
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 12))

	m := storage.EventModel{DB: db}
	n, err := m.Prune(context.Background(), time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(12), n)
}
