package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/cuongbtq/relay-poster/internal/api/dto"
	"github.com/cuongbtq/relay-poster/internal/api/model"
	"github.com/cuongbtq/relay-poster/internal/api/storage"
	"github.com/cuongbtq/relay-poster/internal/worker/domain"
)

// CreatePost handles POST /api/v1/posts
// Validates the request and enqueues a publish job
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req dto.CreatePostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	job, err := domain.NewJob(req.Images, req.Caption, h.maxImages)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	if err := h.queue.Enqueue(c.Request.Context(), job); err != nil {
		if errors.Is(err, domain.ErrQueueClosed) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"error": "Queue is shutting down",
			})
			return
		}
		h.logger.Error("Failed to enqueue post", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, dto.CreatePostResponse{
		JobID:         job.ID,
		Status:        domain.PostStatusQueued,
		Images:        len(job.Images),
		QueuePosition: h.queue.Status().Length,
	})
}

// GetPost handles GET /api/v1/posts/:job_id
func (h *PostHandler) GetPost(c *gin.Context) {
	if h.posts == nil {
		historyDisabled(c)
		return
	}

	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	post, err := h.posts.GetPost(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrPostNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Post not found",
			})
			return
		}
		h.logger.Error("Failed to get post", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get post",
		})
		return
	}

	c.JSON(http.StatusOK, toPostDTO(post))
}

// ListPosts handles GET /api/v1/posts
// Lists the post history newest first with cursor pagination
func (h *PostHandler) ListPosts(c *gin.Context) {
	if h.posts == nil {
		historyDisabled(c)
		return
	}

	var req dto.ListPostsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodePostCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	posts, err := h.posts.ListPosts(c.Request.Context(), storage.PostFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list posts", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list posts",
		})
		return
	}

	hasMore := len(posts) > req.PageSize
	if hasMore {
		posts = posts[:req.PageSize]
	}

	resp := dto.ListPostsResponse{Posts: make([]dto.PostDTO, len(posts))}
	for i := range posts {
		resp.Posts[i] = toPostDTO(&posts[i])
	}

	if hasMore {
		last := posts[len(posts)-1]
		resp.NextCursor = EncodePostCursor(&storage.PostCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func toPostDTO(p *model.Post) dto.PostDTO {
	out := dto.PostDTO{
		JobID:        p.JobID,
		Images:       []string(p.Images),
		Caption:      p.Caption,
		Status:       p.Status,
		QueueRetries: p.QueueRetries,
		Attempts:     p.Attempts,
		ExternalRef:  p.ExternalRef.String,
		ErrorKind:    p.ErrorKind.String,
		ErrorMessage: p.ErrorMessage.String,
		CreatedAt:    p.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    p.UpdatedAt.Format(time.RFC3339),
	}
	if p.PublishedAt.Valid {
		out.PublishedAt = p.PublishedAt.Time.Format(time.RFC3339)
	}
	return out
}

func historyDisabled(c *gin.Context) {
	c.JSON(http.StatusServiceUnavailable, gin.H{
		"error": "Post history is disabled",
	})
}
