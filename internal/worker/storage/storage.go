package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// Schema creates the post history table. It is safe to run on every start.
const Schema = `
CREATE TABLE IF NOT EXISTS posts (
	job_id        TEXT PRIMARY KEY,
	images        TEXT[] NOT NULL,
	caption       TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	queue_retries INTEGER NOT NULL DEFAULT 0,
	attempts      INTEGER NOT NULL DEFAULT 0,
	external_ref  TEXT,
	error_kind    TEXT,
	error_message TEXT,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	published_at  TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_posts_created ON posts (created_at DESC, job_id DESC);
CREATE INDEX IF NOT EXISTS idx_posts_status ON posts (status);
`

// Storage writes the post history for the queue
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the posts table and its indexes if missing
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to create posts schema: %w", err)
	}
	s.logger.Info("Post history schema ready")
	return nil
}

// RecordQueued inserts a QUEUED record for a freshly enqueued job
func (s *Storage) RecordQueued(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO posts (job_id, images, caption, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(ctx, query,
		job.ID,
		pq.Array(job.Images),
		job.Caption,
		domain.PostStatusQueued,
		job.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert post: %w", err)
	}

	s.logger.Debug("Post recorded",
		slog.String("job_id", job.ID),
		slog.String("status", domain.PostStatusQueued),
	)
	return nil
}

// UpdateStatus applies a lifecycle transition. Attempts accumulate across
// queue retries; error fields always reflect the latest transition.
func (s *Storage) UpdateStatus(ctx context.Context, update domain.StatusUpdate) error {
	query := `
		UPDATE posts
		SET status = $1::text,
			queue_retries = $2,
			attempts = attempts + $3,
			external_ref = COALESCE(NULLIF($4, ''), external_ref),
			error_kind = NULLIF($5, ''),
			error_message = NULLIF($6, ''),
			published_at = CASE WHEN $1::text = $7::text THEN NOW() ELSE published_at END,
			updated_at = NOW()
		WHERE job_id = $8
	`

	res, err := s.db.ExecContext(ctx, query,
		update.Status,
		update.QueueRetries,
		update.Attempts,
		update.ExternalRef,
		string(update.ErrorKind),
		update.ErrorMessage,
		domain.PostStatusPublished,
		update.JobID,
	)
	if err != nil {
		return fmt.Errorf("failed to update post status: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", domain.ErrPostNotFound, update.JobID)
	}

	s.logger.Info("Post status updated",
		slog.String("job_id", update.JobID),
		slog.String("status", update.Status),
	)
	return nil
}
