package retention

import (
	"context"
	"database/sql"
	"time"

	"github.com/vigilcam/vigil-agent/internal/clip"
)

// Repository persists clip metadata and small key/value configuration. The
// directory scan stays authoritative for retention ordering; the catalog
// exists so the API can list clips without touching the filesystem.
type Repository interface {
	InsertClip(ctx context.Context, c *clip.File) error
	DeleteClip(ctx context.Context, id string) error
	DeleteAllClips(ctx context.Context) error
	ListClips(ctx context.Context) ([]*clip.File, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) InsertClip(ctx context.Context, c *clip.File) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO clips (id, path, trigger_ts, duration_secs, seq, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.ID, c.Path, c.TriggerTime, c.Duration, c.Sequence, c.CreatedAt.Format(time.RFC3339))
	return err
}

func (r *SQLiteRepository) DeleteClip(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM clips WHERE id = ?", id)
	return err
}

func (r *SQLiteRepository) DeleteAllClips(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM clips")
	return err
}

func (r *SQLiteRepository) ListClips(ctx context.Context) ([]*clip.File, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, path, trigger_ts, duration_secs, seq, created_at
		FROM clips ORDER BY seq ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clips []*clip.File
	for rows.Next() {
		var c clip.File
		var createdAt string
		if err := rows.Scan(&c.ID, &c.Path, &c.TriggerTime, &c.Duration, &c.Sequence, &createdAt); err != nil {
			return nil, err
		}
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		clips = append(clips, &c)
	}
	return clips, rows.Err()
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
