package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/relay-poster/internal/api/storage"
)

// ErrInvalidCursor is returned for page tokens this API did not issue.
var ErrInvalidCursor = errors.New("invalid cursor")

// pageToken is the opaque keyset position handed to clients as next_cursor.
type pageToken struct {
	CreatedAt int64  `json:"t"`
	JobID     string `json:"id"`
}

// DecodePostCursor parses a next_cursor value. An empty token means the first page.
func DecodePostCursor(token string) (*storage.PostCursor, error) {
	if token == "" {
		return nil, nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}

	var pt pageToken
	if err := json.Unmarshal(raw, &pt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if pt.JobID == "" || pt.CreatedAt <= 0 {
		return nil, fmt.Errorf("%w: incomplete position", ErrInvalidCursor)
	}

	return &storage.PostCursor{
		CreatedAt: time.Unix(0, pt.CreatedAt).UTC(),
		JobID:     pt.JobID,
	}, nil
}

// EncodePostCursor builds the next_cursor for the page ending at cursor.
func EncodePostCursor(cursor *storage.PostCursor) string {
	raw, _ := json.Marshal(pageToken{
		CreatedAt: cursor.CreatedAt.UnixNano(),
		JobID:     cursor.JobID,
	})
	return base64.RawURLEncoding.EncodeToString(raw)
}
