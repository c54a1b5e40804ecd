package recordings

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/yeti47/screenrec/ccc/db"
)

// Repository defines the interface for CRUD operations on Recording entities
type Repository interface {
	// GetByID retrieves a Recording by its ID, nil if there is none
	GetByID(ctx context.Context, id string) (*Recording, error)

	// GetByPath retrieves the Recording stored at path, nil if there is none
	GetByPath(ctx context.Context, path string) (*Recording, error)

	// Query retrieves Recordings newest first.
	// Returns recordings and total count of matching records (before pagination)
	Query(ctx context.Context, query RecordingQuery) ([]*Recording, int, error)

	// Add stores a new Recording in the repository
	Add(ctx context.Context, recording *Recording) error

	// Delete removes a Recording by its ID
	Delete(ctx context.Context, id string) error
}

// SQLiteRepository implements Repository using SQLite
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-based Repository
func NewSQLiteRepository(db *sql.DB) (*SQLiteRepository, error) {
	repo := &SQLiteRepository{db: db}
	if err := repo.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return repo, nil
}

func (r *SQLiteRepository) createTables() error {
	createRecordingsTable := `
	CREATE TABLE IF NOT EXISTS recordings (
		id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		created_at TEXT NOT NULL,
		duration INTEGER NOT NULL,
		size_bytes INTEGER NOT NULL,
		width INTEGER NOT NULL,
		height INTEGER NOT NULL,
		mime_type TEXT NOT NULL,
		thumbnail_path TEXT NOT NULL,
		source_id TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_recordings_created_at ON recordings(created_at);`

	_, err := r.db.Exec(createRecordingsTable)
	return err
}

const selectColumns = `SELECT id, path, title, created_at, duration, size_bytes, width, height, mime_type, thumbnail_path, source_id FROM recordings`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecording(row rowScanner) (*Recording, error) {
	recording := &Recording{}
	var createdAt string
	var durationNanos int64
	err := row.Scan(
		&recording.ID, &recording.Path, &recording.Title, &createdAt, &durationNanos, &recording.SizeBytes,
		&recording.Width, &recording.Height, &recording.MimeType, &recording.ThumbnailPath, &recording.SourceID,
	)
	if err != nil {
		return nil, err
	}

	recording.CreatedAt, err = db.StringToTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("failed to parse timestamp: %w", err)
	}
	recording.Duration = time.Duration(durationNanos)
	return recording, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Recording, error) {
	return r.getOne(ctx, selectColumns+" WHERE id = ?", id)
}

func (r *SQLiteRepository) GetByPath(ctx context.Context, path string) (*Recording, error) {
	return r.getOne(ctx, selectColumns+" WHERE path = ?", path)
}

func (r *SQLiteRepository) getOne(ctx context.Context, query string, arg any) (*Recording, error) {
	recording, err := scanRecording(r.db.QueryRowContext(ctx, query, arg))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return recording, nil
}

func (r *SQLiteRepository) Query(ctx context.Context, query RecordingQuery) ([]*Recording, int, error) {
	where, args := buildConditions(query)

	var totalCount int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM recordings"+where, args...).Scan(&totalCount); err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %w", err)
	}

	sqlQuery := selectColumns + where + " ORDER BY created_at DESC"
	if query.PageSize > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.PageSize)
		if query.Page > 1 {
			sqlQuery += " OFFSET ?"
			args = append(args, (query.Page-1)*query.PageSize)
		}
	}

	rows, err := r.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query recordings: %w", err)
	}
	defer rows.Close()

	var recordings []*Recording
	for rows.Next() {
		recording, err := scanRecording(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan recording: %w", err)
		}
		recordings = append(recordings, recording)
	}

	return recordings, totalCount, rows.Err()
}

func buildConditions(query RecordingQuery) (string, []any) {
	var conditions []string
	var args []any

	if query.StartTime != nil {
		conditions = append(conditions, "created_at >= ?")
		args = append(args, db.TimeToString(*query.StartTime))
	}

	if query.EndTime != nil {
		conditions = append(conditions, "created_at <= ?")
		args = append(args, db.TimeToString(*query.EndTime))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (r *SQLiteRepository) Add(ctx context.Context, recording *Recording) error {
	query := `
	INSERT INTO recordings (id, path, title, created_at, duration, size_bytes, width, height, mime_type, thumbnail_path, source_id)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := r.db.ExecContext(ctx, query,
		recording.ID, recording.Path, recording.Title, db.TimeToString(recording.CreatedAt), int64(recording.Duration),
		recording.SizeBytes, recording.Width, recording.Height, recording.MimeType, recording.ThumbnailPath, recording.SourceID,
	)
	if err != nil {
		return fmt.Errorf("failed to add recording: %w", err)
	}

	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete recording: %w", err)
	}

	return nil
}
