package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/relay-poster/internal/api/model"
	"github.com/cuongbtq/relay-poster/internal/api/storage"
	"github.com/cuongbtq/relay-poster/internal/worker"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// QueueService is the part of the publish queue exposed over HTTP
type QueueService interface {
	Enqueue(ctx context.Context, job *domain.Job) error
	Status() worker.Status
	Drain(ctx context.Context) int
}

// PostReader reads the post history
type PostReader interface {
	GetPost(ctx context.Context, jobID string) (*model.Post, error)
	ListPosts(ctx context.Context, filter storage.PostFilter) ([]model.Post, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger    *slog.Logger
	Queue     QueueService
	Posts     PostReader // nil when the database is disabled
	MaxImages int
	Health    func(ctx context.Context) error
}

// PostHandler handles post-related HTTP requests
type PostHandler struct {
	logger    *slog.Logger
	queue     QueueService
	posts     PostReader
	maxImages int
}

// NewPostHandler creates a new PostHandler instance
func NewPostHandler(deps *Dependencies) *PostHandler {
	return &PostHandler{
		logger:    deps.Logger,
		queue:     deps.Queue,
		posts:     deps.Posts,
		maxImages: deps.MaxImages,
	}
}

// QueueHandler handles queue control requests
type QueueHandler struct {
	logger *slog.Logger
	queue  QueueService
}

// NewQueueHandler creates a new QueueHandler instance
func NewQueueHandler(deps *Dependencies) *QueueHandler {
	return &QueueHandler{
		logger: deps.Logger,
		queue:  deps.Queue,
	}
}
