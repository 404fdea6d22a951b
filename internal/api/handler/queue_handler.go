package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/relay-poster/internal/api/dto"
)

// Status handles GET /api/v1/queue
func (h *QueueHandler) Status(c *gin.Context) {
	status := h.queue.Status()

	resp := dto.QueueStatusResponse{
		Length:     status.Length,
		Processing: status.Processing,
	}
	if !status.NextEligibleTime.IsZero() {
		resp.NextEligibleTime = status.NextEligibleTime.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

// Drain handles POST /api/v1/queue/drain
// Removes every waiting job; the job being published is not affected
func (h *QueueHandler) Drain(c *gin.Context) {
	drained := h.queue.Drain(c.Request.Context())

	h.logger.Info("Queue drained via API", slog.Int("drained", drained))
	c.JSON(http.StatusOK, dto.DrainResponse{Drained: drained})
}
