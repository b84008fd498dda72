package api

import (
	"fmt"
	"net/http"

	"imgbatch/config"
	"imgbatch/convert"
	"imgbatch/task"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type Handler struct {
	batch    *task.Batch
	conv     *convert.Image
	cfg      *config.Config
	defaults map[string]string
}

func NewHandler(b *task.Batch, conv *convert.Image, cfg *config.Config, defaults map[string]string) *Handler {
	return &Handler{
		batch:    b,
		conv:     conv,
		cfg:      cfg,
		defaults: defaults,
	}
}

type TaskRequest struct {
	InputPath  string            `json:"inputPath" binding:"required"`
	OutputPath string            `json:"outputPath" binding:"required"`
	Options    map[string]string `json:"options"`
	// Opts is a shell-style alternative to Options: "quality=85 grayscale".
	Opts string `json:"opts"`
}

type FolderRequest struct {
	InputFolder  string            `json:"inputFolder" binding:"required"`
	OutputFolder string            `json:"outputFolder" binding:"required"`
	OutputFormat string            `json:"outputFormat"`
	Recursive    *bool             `json:"recursive"`
	Options      map[string]string `json:"options"`
	Opts         string            `json:"opts"`
}

// resolveOptions layers configured defaults, the parsed opts string and the
// explicit options map, later sources winning.
func (h *Handler) resolveOptions(options map[string]string, opts string) (map[string]string, error) {
	parsed, err := convert.ParseOptions(opts)
	if err != nil {
		return nil, err
	}
	return convert.MergeOptions(convert.MergeOptions(h.defaults, parsed), options), nil
}

// handleAddTask queues a single conversion job.
func (h *Handler) handleAddTask(c *gin.Context) {
	var req TaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	options, err := h.resolveOptions(req.Options, req.Opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid opts: %v", err)})
		return
	}

	id := h.batch.AddTask(req.InputPath, req.OutputPath, options)
	c.JSON(http.StatusAccepted, gin.H{"taskId": id})
}

// handleAddFolderTask expands a folder into individual tasks.
func (h *Handler) handleAddFolderTask(c *gin.Context) {
	var req FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.OutputFormat != "" {
		if _, ok := convert.OutputExtension(req.OutputFormat); !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unsupported output format: %s", req.OutputFormat)})
			return
		}
	}

	options, err := h.resolveOptions(req.Options, req.Opts)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid opts: %v", err)})
		return
	}

	recursive := true
	if req.Recursive != nil {
		recursive = *req.Recursive
	}

	added := h.batch.AddFolderTask(req.InputFolder, req.OutputFolder, req.OutputFormat, recursive, options)
	c.JSON(http.StatusAccepted, gin.H{"added": added})
}

// handleStart kicks off the scheduler loop.
func (h *Handler) handleStart(c *gin.Context) {
	if !h.batch.Start(progressLogger()) {
		c.JSON(http.StatusConflict, gin.H{"error": "Batch already running or no pending tasks"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Batch started"})
}

// progressLogger logs progress whenever the terminal count moves. It runs
// only on the scheduler loop, so the captured counter needs no lock.
func progressLogger() task.ProgressFunc {
	last := -1
	return func(done, total int, info task.ProgressInfo) {
		if done == last {
			return
		}
		last = done
		log.Info().
			Int("done", done).
			Int("total", total).
			Int("percent", info.Percentage).
			Int("processing", len(info.Processing)).
			Msg("batch progress")
	}
}

func (h *Handler) handleCancel(c *gin.Context) {
	h.batch.Cancel()
	c.JSON(http.StatusAccepted, gin.H{"message": "Batch cancellation requested"})
}

// handleReset clears the registry, draining an active run first.
func (h *Handler) handleReset(c *gin.Context) {
	h.batch.Reset()
	c.JSON(http.StatusOK, gin.H{"message": "Batch reset"})
}

func (h *Handler) handleProgress(c *gin.Context) {
	c.JSON(http.StatusOK, h.batch.Snapshot())
}

func (h *Handler) handleResults(c *gin.Context) {
	c.JSON(http.StatusOK, h.batch.GetResults())
}

func (h *Handler) handleRunning(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"running": h.batch.IsRunning()})
}

// handleGetTaskStatus retrieves a single task.
func (h *Handler) handleGetTaskStatus(c *gin.Context) {
	t, found := h.batch.Get(c.Param("taskId"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "Task not found"})
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) handleFormats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"formats": convert.SupportedFormats()})
}

// handleImageInfo probes an image file without converting it.
func (h *Handler) handleImageInfo(c *gin.Context) {
	path := c.Query("path")
	if path == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "path query parameter required"})
		return
	}
	info, err := h.conv.Probe(path)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, info)
}
