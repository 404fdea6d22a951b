package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cuongbtq/relay-poster/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "relay-poster",
		})
	})

	postHandler := handler.NewPostHandler(deps)
	queueHandler := handler.NewQueueHandler(deps)

	v1 := r.Group("/api/v1")
	{
		posts := v1.Group("/posts")
		{
			// POST /api/v1/posts - Enqueue a post
			posts.POST("", postHandler.CreatePost)

			// GET /api/v1/posts - Post history with pagination
			posts.GET("", postHandler.ListPosts)

			// GET /api/v1/posts/:job_id - Post details
			posts.GET("/:job_id", postHandler.GetPost)
		}

		queue := v1.Group("/queue")
		{
			// GET /api/v1/queue - Backlog length, in-flight flag, next start time
			queue.GET("", queueHandler.Status)

			// POST /api/v1/queue/drain - Remove all waiting jobs
			queue.POST("/drain", queueHandler.Drain)
		}
	}

	return r
}
