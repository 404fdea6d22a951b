package model

import (
	"database/sql"
	"time"

	"github.com/lib/pq"
)

type Post struct {
	JobID        string         `db:"job_id"`
	Images       pq.StringArray `db:"images"`
	Caption      string         `db:"caption"`
	Status       string         `db:"status"`
	QueueRetries int            `db:"queue_retries"`
	Attempts     int            `db:"attempts"`
	ExternalRef  sql.NullString `db:"external_ref"`
	ErrorKind    sql.NullString `db:"error_kind"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
	PublishedAt  sql.NullTime   `db:"published_at"`
}
