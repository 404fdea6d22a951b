package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/relay-poster/internal/api/model"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
	"github.com/cuongbtq/relay-poster/shared/postgresql"
)

const postColumns = `
	job_id, images, caption, status, queue_retries, attempts,
	external_ref, error_kind, error_message, created_at, updated_at, published_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

func (s *Storage) GetPost(ctx context.Context, jobID string) (*model.Post, error) {
	var post model.Post
	query := `SELECT ` + postColumns + ` FROM posts WHERE job_id = $1`

	err := s.db.GetContext(ctx, &post, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrPostNotFound
		}
		return nil, fmt.Errorf("failed to get post: %w", err)
	}

	return &post, nil
}

type PostFilter struct {
	Status   string
	PageSize int
	Cursor   *PostCursor
}

type PostCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListPosts returns up to PageSize+1 posts, newest first. The extra row tells
// the caller whether another page exists.
func (s *Storage) ListPosts(ctx context.Context, filter PostFilter) ([]model.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var posts []model.Post
	err := s.db.SelectContext(ctx, &posts, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}

	return posts, nil
}
