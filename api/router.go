package api

import (
	"imgbatch/config"
	"imgbatch/convert"
	"imgbatch/task"

	"github.com/gin-gonic/gin"
)

func SetupRouter(b *task.Batch, conv *convert.Image, cfg *config.Config, defaults map[string]string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	h := NewHandler(b, conv, cfg, defaults)

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg))
	{
		// Submission
		v1.POST("/batch/tasks", h.handleAddTask)
		v1.POST("/batch/folders", h.handleAddFolderTask)

		// Control
		v1.POST("/batch/start", h.handleStart)
		v1.POST("/batch/cancel", h.handleCancel)
		v1.POST("/batch/reset", h.handleReset)

		// Observation
		v1.GET("/batch/progress", h.handleProgress)
		v1.GET("/batch/results", h.handleResults)
		v1.GET("/batch/running", h.handleRunning)
		v1.GET("/tasks/:taskId", h.handleGetTaskStatus)

		// Introspection
		v1.GET("/formats", h.handleFormats)
		v1.GET("/images/info", h.handleImageInfo)
	}
	return r
}
