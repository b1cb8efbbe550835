package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/openpnl/bitget-orders-go/internal/services"
	"github.com/openpnl/bitget-orders-go/internal/workflow"
)

// ExtractionHandler translates REST calls into workflow-engine operations
// and direct single-symbol runs. It is a thin shim: all pipeline semantics
// live in the services it delegates to.
type ExtractionHandler struct {
	coordinator *services.CoordinatorService
	collector   *services.SymbolCollector
	engine      workflow.Engine
}

// NewExtractionHandler creates the handler.
func NewExtractionHandler(coordinator *services.CoordinatorService, collector *services.SymbolCollector, engine workflow.Engine) *ExtractionHandler {
	return &ExtractionHandler{
		coordinator: coordinator,
		collector:   collector,
		engine:      engine,
	}
}

// ExtractOrdersRequest starts a full extraction execution. Omitting symbols
// lets the coordinator discover them.
type ExtractOrdersRequest struct {
	Symbols       []string `json:"symbols"`
	ExecutionName string   `json:"execution_name"`
}

// ExtractSingleSymbolRequest runs the collector for one symbol directly.
type ExtractSingleSymbolRequest struct {
	Symbol string `json:"symbol" binding:"required"`
	Cursor string `json:"cursor"`
}

// ExtractOrders handles POST /api/v1/extract-orders.
func (h *ExtractionHandler) ExtractOrders(c *gin.Context) {
	var req ExtractOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "message": err.Error()})
		return
	}

	execution, err := h.coordinator.StartExtraction(c.Request.Context(), req.Symbols, req.ExecutionName)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start extraction", "message": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":       "success",
		"execution_id": execution.ID,
		"name":         execution.Name,
		"started_at":   execution.StartedAt,
	})
}

// ExtractSingleSymbol handles POST /api/v1/extract-single-symbol.
func (h *ExtractionHandler) ExtractSingleSymbol(c *gin.Context) {
	var req ExtractSingleSymbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol is required", "message": err.Error()})
		return
	}

	result, err := h.collector.Collect(c.Request.Context(), req.Symbol, req.Cursor)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Symbol collection failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetSymbols handles GET /api/v1/symbols.
func (h *ExtractionHandler) GetSymbols(c *gin.Context) {
	symbols, err := h.coordinator.ListSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list symbols", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"symbols": symbols,
		"count":   len(symbols),
	})
}

// DiscoverSymbols handles POST /api/v1/discover-symbols: the exhaustive
// windowed discovery scan over the full lookback horizon.
func (h *ExtractionHandler) DiscoverSymbols(c *gin.Context) {
	result, err := h.coordinator.DiscoverTradedSymbols(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Symbol discovery failed", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetExecution handles GET /api/v1/executions/:id.
func (h *ExtractionHandler) GetExecution(c *gin.Context) {
	id := c.Param("id")
	status, err := h.engine.DescribeExecution(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Execution not found", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListExecutions handles GET /api/v1/executions.
func (h *ExtractionHandler) ListExecutions(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	executions, err := h.engine.ListExecutions(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list executions", "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"executions": executions,
		"count":      len(executions),
	})
}
