package handlers

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/openpnl/bitget-orders-go/internal/services"
	"github.com/openpnl/bitget-orders-go/internal/storage"
)

// ResultsHandler exposes the aggregated artifacts and the analytics reports
// derived from them.
type ResultsHandler struct {
	store         storage.ObjectStore
	analytics     *services.AnalyticsService
	resultsPrefix string
	presignTTL    time.Duration
	logger        *logrus.Logger
}

// NewResultsHandler creates the handler.
func NewResultsHandler(store storage.ObjectStore, analytics *services.AnalyticsService, resultsPrefix string, presignTTL time.Duration, logger *logrus.Logger) *ResultsHandler {
	return &ResultsHandler{
		store:         store,
		analytics:     analytics,
		resultsPrefix: resultsPrefix,
		presignTTL:    presignTTL,
		logger:        logger,
	}
}

// GetLatestResult handles GET /api/v1/results/latest. The optional
// execution query parameter narrows the search to artifacts produced by
// one execution.
func (h *ResultsHandler) GetLatestResult(c *gin.Context) {
	execution := c.Query("execution")

	objects, err := h.store.List(c.Request.Context(), h.resultsPrefix)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list results", "message": err.Error()})
		return
	}

	var candidates []storage.ObjectInfo
	for _, obj := range objects {
		if !strings.HasSuffix(obj.Key, ".json") {
			continue
		}
		if execution != "" && !strings.Contains(obj.Key, execution) {
			continue
		}
		candidates = append(candidates, obj)
	}
	if len(candidates) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "No results found", "message": "no aggregated result artifacts match the query"})
		return
	}

	// Timestamped key names make lexical order chronological.
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Key > candidates[j].Key })
	latest := candidates[0]

	resp := gin.H{
		"status":        "success",
		"key":           latest.Key,
		"size":          latest.Size,
		"last_modified": latest.LastModified,
	}

	url, err := h.store.Presign(c.Request.Context(), latest.Key, h.presignTTL)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to presign result artifact")
	} else {
		resp["download_url"] = url
		resp["expires_in"] = int(h.presignTTL.Seconds())
	}

	c.JSON(http.StatusOK, resp)
}

// AnalyzeRequest triggers report generation over an aggregated artifact.
type AnalyzeRequest struct {
	ExecutionName string `json:"execution_name"`
	DaysBack      int    `json:"days_back"`
}

// Analyze handles POST /api/v1/analytics.
func (h *ResultsHandler) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}
	if raw := c.Query("days_back"); raw != "" && req.DaysBack == 0 {
		if parsed, err := strconv.Atoi(raw); err == nil {
			req.DaysBack = parsed
		}
	}

	report, err := h.analytics.Analyze(c.Request.Context(), req.ExecutionName, req.DaysBack)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Analysis failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, report)
}
