package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Job is one unit of work (images + caption) to be published
type Job struct {
	ID           string
	Images       []string
	Caption      string
	EnqueuedAt   time.Time
	AttemptCount int
}

// NewJob creates a job with a fresh ID. images must be non-empty; anything
// beyond maxImages is dropped.
func NewJob(images []string, caption string, maxImages int) (*Job, error) {
	if len(images) == 0 {
		return nil, fmt.Errorf("%w: at least one image is required", ErrInvalidJob)
	}

	staged := make([]string, 0, len(images))
	for _, img := range images {
		if img == "" {
			return nil, fmt.Errorf("%w: empty image path", ErrInvalidJob)
		}
		staged = append(staged, img)
	}

	if maxImages > 0 && len(staged) > maxImages {
		staged = staged[:maxImages]
	}

	return &Job{
		ID:         uuid.New().String(),
		Images:     staged,
		Caption:    caption,
		EnqueuedAt: time.Now(),
	}, nil
}

// PublishResult is produced once per job by the governor
type PublishResult struct {
	Success     bool
	ExternalRef string
	Err         error
	Attempts    int
}

// IngestMessage is the producer payload consumed from RabbitMQ
type IngestMessage struct {
	Images  []string `json:"images"`
	Caption string   `json:"caption"`
}

// StatusUpdate is one transition written to the post history
type StatusUpdate struct {
	JobID        string
	Status       string
	QueueRetries int
	Attempts     int
	ExternalRef  string
	ErrorKind    ErrorKind
	ErrorMessage string
}
