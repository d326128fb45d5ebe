package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"catalog-sync/internal/mapping"
	"catalog-sync/internal/models"
	"catalog-sync/internal/service"
	"catalog-sync/internal/util"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MappingStore persists mapping documents for import and export.
type MappingStore interface {
	SaveMappingDocument(ctx context.Context, content []byte) (*mapping.Document, error)
	ActiveMappingDocument(ctx context.Context) (*mapping.Document, []byte, error)
}

// Handler contains HTTP handlers
type Handler struct {
	orchestrator *service.Orchestrator
	mappings     MappingStore
}

// NewHandler creates a new HTTP handler
func NewHandler(orchestrator *service.Orchestrator, mappings MappingStore) *Handler {
	return &Handler{
		orchestrator: orchestrator,
		mappings:     mappings,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.POST("/sync", h.triggerSync)
		v1.POST("/sync/single", h.triggerSingleSync)
		v1.GET("/runs/:id", h.getRun)
		v1.GET("/runs/:id/errors", h.getRunErrors)
		v1.POST("/runs/:id/cancel", h.cancelRun)
		v1.GET("/mappings", h.exportMappings)
		v1.PUT("/mappings", h.importMappings)
		v1.POST("/mappings/discover", h.discoverMappings)
	}
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

// readinessCheck handles readiness check requests
func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// TriggerSyncRequest is the body of a full sync trigger.
type TriggerSyncRequest struct {
	Target     string `json:"target"`
	TestMode   bool   `json:"test_mode"`
	UpdateOnly bool   `json:"update_only"`
	MaxItems   int    `json:"max_items"`
}

// triggerSync starts a full sync run. A run already active for the target
// yields 409 with the running run's ID.
func (h *Handler) triggerSync(c *gin.Context) {
	var req TriggerSyncRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid request body",
				"details": err.Error(),
			})
			return
		}
	}

	policy := models.SyncPolicy{
		TestMode:   req.TestMode,
		UpdateOnly: req.UpdateOnly,
		MaxItems:   req.MaxItems,
	}

	runID, err := h.orchestrator.Trigger(c.Request.Context(), req.Target, policy)
	if err != nil {
		var running *models.AlreadyRunningError
		if errors.As(err, &running) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "Sync already running for target",
				"run_id": running.RunID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start sync",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// TriggerSingleSyncRequest is the body of a single-product sync trigger.
type TriggerSingleSyncRequest struct {
	Target    string `json:"target"`
	ProductID string `json:"product_id" binding:"required"`
}

// triggerSingleSync runs one product through the full sync state machine.
func (h *Handler) triggerSingleSync(c *gin.Context) {
	var req TriggerSingleSyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	runID, err := h.orchestrator.TriggerSingle(c.Request.Context(), req.Target, req.ProductID)
	if err != nil {
		var running *models.AlreadyRunningError
		if errors.As(err, &running) {
			c.JSON(http.StatusConflict, gin.H{
				"error":  "Sync already running for target",
				"run_id": running.RunID,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to start sync",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"run_id": runID})
}

// getRun handles run status queries
func (h *Handler) getRun(c *gin.Context) {
	run, err := h.orchestrator.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Run not found",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, run)
}

// getRunErrors returns the recorded errors of a run
func (h *Handler) getRunErrors(c *gin.Context) {
	runErrors, err := h.orchestrator.Errors(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to load run errors",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": c.Param("id"),
		"errors": runErrors,
		"count":  len(runErrors),
	})
}

// cancelRun requests cooperative cancellation of an active run
func (h *Handler) cancelRun(c *gin.Context) {
	runID := c.Param("id")
	if err := h.orchestrator.Cancel(c.Request.Context(), runID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Run is not active",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run_id": runID,
		"status": "cancellation_requested",
	})
}

// exportMappings returns the active mapping document exactly as imported.
// Before any import, the built-in default document is returned.
func (h *Handler) exportMappings(c *gin.Context) {
	_, content, err := h.mappings.ActiveMappingDocument(c.Request.Context())
	if err != nil {
		var mapErr *models.MappingError
		if errors.As(err, &mapErr) {
			content, err = mapping.Export(service.DefaultDocument())
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Failed to export mapping document",
				"details": err.Error(),
			})
			return
		}
	}

	c.Data(http.StatusOK, "application/json", content)
}

// importMappings validates and stores a new mapping document
func (h *Handler) importMappings(c *gin.Context) {
	content, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Failed to read request body",
			"details": err.Error(),
		})
		return
	}

	doc, err := h.mappings.SaveMappingDocument(c.Request.Context(), content)
	if err != nil {
		var mapErr *models.MappingError
		if errors.As(err, &mapErr) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid mapping document",
				"details": err.Error(),
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "Failed to store mapping document",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"version": doc.Version,
		"rules":   len(doc.Rules),
	})
}

// DiscoverMappingsRequest carries sample source records to scan for image
// fields.
type DiscoverMappingsRequest struct {
	Samples []map[string]interface{} `json:"samples" binding:"required"`
}

// discoverMappings proposes image mapping rules from sample records. The
// result is advisory; nothing is stored until the operator imports it.
func (h *Handler) discoverMappings(c *gin.Context) {
	var req DiscoverMappingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	rules := mapping.Discover(req.Samples)
	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"count": len(rules),
	})
}

// prometheusMiddleware collects HTTP metrics
func prometheusMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())

		util.HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Observe(duration)

		util.HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			status,
		).Inc()
	}
}
