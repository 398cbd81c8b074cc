package history

import (
	"context"
	"database/sql"
	"strings"
	"time"
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	ListSessions(ctx context.Context, limit int) ([]*Session, error)
	UpdateSessionStatus(ctx context.Context, id, status, errorMsg string) error
	UpdateSessionResult(ctx context.Context, id string, movements []string, clipCount int) error

	CreateDownload(ctx context.Context, d *Download) error
	ListDownloads(ctx context.Context, sessionID string, limit int) ([]*Download, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

// movementSep joins labels in one column; labels are single-line text.
const movementSep = "\n"

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *Session) error {
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sessions (id, video_id, filename, size_bytes, duration_s, status, movements, clip_count, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.ID, s.VideoID, s.Filename, s.SizeBytes, s.DurationS, s.Status,
		strings.Join(s.Movements, movementSep), s.ClipCount, nullString(s.Error),
		s.CreatedAt.Format(time.RFC3339), s.UpdatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, filename, size_bytes, duration_s, status, movements, clip_count, error, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions, err := r.scanSessions(rows)
	if err != nil || len(sessions) == 0 {
		return nil, err
	}
	return sessions[0], nil
}

func (r *SQLiteRepository) ListSessions(ctx context.Context, limit int) ([]*Session, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, video_id, filename, size_bytes, duration_s, status, movements, clip_count, error, created_at, updated_at
		FROM sessions ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return r.scanSessions(rows)
}

func (r *SQLiteRepository) scanSessions(rows *sql.Rows) ([]*Session, error) {
	var sessions []*Session
	for rows.Next() {
		var s Session
		var movements string
		var errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&s.ID, &s.VideoID, &s.Filename, &s.SizeBytes, &s.DurationS, &s.Status,
			&movements, &s.ClipCount, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if movements != "" {
			s.Movements = strings.Split(movements, movementSep)
		}
		s.Error = errMsg.String
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		sessions = append(sessions, &s)
	}
	return sessions, rows.Err()
}

func (r *SQLiteRepository) UpdateSessionStatus(ctx context.Context, id, status, errorMsg string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET status = ?, error = ?, updated_at = ? WHERE id = ?
	`, status, nullString(errorMsg), time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) UpdateSessionResult(ctx context.Context, id string, movements []string, clipCount int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sessions SET movements = ?, clip_count = ?, updated_at = ? WHERE id = ?
	`, strings.Join(movements, movementSep), clipCount, time.Now().UTC().Format(time.RFC3339), id)
	return err
}

func (r *SQLiteRepository) CreateDownload(ctx context.Context, d *Download) error {
	if d.CreatedAt.IsZero() {
		d.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO downloads (id, session_id, path, clip_count, size_bytes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, d.ID, d.SessionID, d.Path, d.ClipCount, d.SizeBytes, d.CreatedAt.Format(time.RFC3339))
	return err
}

// ListDownloads returns downloads newest first. An empty sessionID lists
// downloads across all sessions.
func (r *SQLiteRepository) ListDownloads(ctx context.Context, sessionID string, limit int) ([]*Download, error) {
	query := `SELECT id, session_id, path, clip_count, size_bytes, created_at FROM downloads`
	args := []any{}
	if sessionID != "" {
		query += ` WHERE session_id = ?`
		args = append(args, sessionID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var downloads []*Download
	for rows.Next() {
		var d Download
		var createdAt string
		if err := rows.Scan(&d.ID, &d.SessionID, &d.Path, &d.ClipCount, &d.SizeBytes, &createdAt); err != nil {
			return nil, err
		}
		d.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		downloads = append(downloads, &d)
	}
	return downloads, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
