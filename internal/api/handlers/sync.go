package handlers

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stocklink/internal/config"
	"stocklink/internal/logger"
	"stocklink/internal/models"
	"stocklink/internal/services/pos"
	syncengine "stocklink/internal/sync"
)

// SyncHandler exposes the sync engine over two transports: a synchronous
// request returning the final summary, and an SSE stream of progress
// events. Both drive the same orchestrator.
type SyncHandler struct {
	db           *gorm.DB
	logger       *logger.Logger
	config       *config.Config
	orchestrator *syncengine.Orchestrator
	states       *syncengine.StateStore
}

func NewSyncHandler(db *gorm.DB, logger *logger.Logger, cfg *config.Config, orchestrator *syncengine.Orchestrator, states *syncengine.StateStore) *SyncHandler {
	return &SyncHandler{
		db:           db,
		logger:       logger,
		config:       cfg,
		orchestrator: orchestrator,
		states:       states,
	}
}

type syncRequest struct {
	CategoryIDs []string `json:"category_ids"`
}

func (h *SyncHandler) loadConnection(c *gin.Context) (*models.Connection, bool) {
	id := c.Param("id")

	var connection models.Connection
	if err := h.db.First(&connection, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "Connection not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch connection"})
		return nil, false
	}
	return &connection, true
}

func (h *SyncHandler) posClient(connection *models.Connection) *pos.Client {
	baseURL := connection.BaseURL()
	if baseURL == "" {
		baseURL = h.config.POSBaseURL
	}
	opts := pos.Options{
		PageSize:         h.config.POSPageSize,
		MaxPages:         h.config.POSMaxPages,
		RateLimitBackoff: time.Duration(h.config.POSRateLimitBackoff) * time.Second,
		RateLimitRetries: h.config.POSRateLimitRetries,
		PageDelay:        time.Duration(h.config.POSPageDelayMs) * time.Millisecond,
	}
	return pos.NewClient(baseURL, connection.AccountID(), connection.AccessToken(), opts, h.logger)
}

// Sync runs a full sync and responds with the terminal summary.
func (h *SyncHandler) Sync(c *gin.Context) {
	connection, ok := h.loadConnection(c)
	if !ok {
		return
	}

	var request syncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&request); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	result, err := h.orchestrator.Run(c.Request.Context(), connection, h.posClient(connection), request.CategoryIDs, nil)
	if err != nil {
		h.respondRunError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

// Stream runs a full sync and pushes progress as server-sent events,
// ending with a terminal result event.
func (h *SyncHandler) Stream(c *gin.Context) {
	connection, ok := h.loadConnection(c)
	if !ok {
		return
	}

	var request syncRequest
	if ids := c.QueryArray("category_id"); len(ids) > 0 {
		request.CategoryIDs = ids
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	updates := make(chan syncengine.ProgressUpdate, 64)
	done := make(chan struct{})

	var result *syncengine.Result
	var runErr error
	go func() {
		defer close(done)
		result, runErr = h.orchestrator.Run(c.Request.Context(), connection, h.posClient(connection), request.CategoryIDs,
			func(update syncengine.ProgressUpdate) {
				select {
				case updates <- update:
				default:
					// Slow consumer; drop rather than stall the sync.
				}
			})
	}()

	c.Stream(func(w io.Writer) bool {
		select {
		case update := <-updates:
			c.SSEvent("progress", update)
			return true
		case <-done:
			for {
				select {
				case update := <-updates:
					c.SSEvent("progress", update)
					continue
				default:
				}
				break
			}
			if runErr != nil {
				c.SSEvent("error", gin.H{"error": runErr.Error()})
			} else {
				c.SSEvent("result", result)
			}
			return false
		}
	})
}

// Cancel flags a running sync; the orchestrator stops at its next
// checkpoint.
func (h *SyncHandler) Cancel(c *gin.Context) {
	connection, ok := h.loadConnection(c)
	if !ok {
		return
	}

	cancelled, err := h.states.RequestCancel(c.Request.Context(), connection.ID)
	if err != nil {
		h.logger.Error("failed to request cancellation: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to request cancellation"})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{"error": "No running sync for this connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Cancellation requested"})
}

// Status returns the live SyncState row for UI polling.
func (h *SyncHandler) Status(c *gin.Context) {
	connection, ok := h.loadConnection(c)
	if !ok {
		return
	}

	state, err := h.states.Get(c.Request.Context(), connection.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch sync status"})
		return
	}
	if state == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "No sync has run for this connection"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": state})
}

// Continue reports whether a previous run still has work in flight.
// Callers poll it until should_continue is false.
func (h *SyncHandler) Continue(c *gin.Context) {
	connection, ok := h.loadConnection(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.ContinueSync(c.Request.Context(), connection.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check sync state"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": result})
}

func (h *SyncHandler) respondRunError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, syncengine.ErrNoCredentials):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "Connection has no POS credentials"})
	case errors.Is(err, syncengine.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "A sync is already running for this connection"})
	default:
		h.logger.Error("sync failed to start: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to run sync"})
	}
}
