package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openpnl/bitget-orders-go/internal/storage"
	"github.com/openpnl/bitget-orders-go/pkg/bitget"
)

var startTime = time.Now()

type HealthHandler struct {
	exchange    bitget.ExchangeClient
	store       storage.ObjectStore
	productType string
	version     string
}

type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
	Version   string            `json:"version"`
	Uptime    string            `json:"uptime"`
}

func NewHealthHandler(exchange bitget.ExchangeClient, store storage.ObjectStore, productType, version string) *HealthHandler {
	return &HealthHandler{
		exchange:    exchange,
		store:       store,
		productType: productType,
		version:     version,
	}
}

func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	services := make(map[string]string)

	// Check the exchange API with an unauthenticated market-data call.
	if h.exchange != nil {
		if _, err := h.exchange.ListSymbols(ctx, h.productType); err != nil {
			services["exchange"] = "unhealthy: " + err.Error()
		} else {
			services["exchange"] = "healthy"
		}
	} else {
		services["exchange"] = "unhealthy: not configured"
	}

	// Check the object store with a cheap list.
	if h.store != nil {
		if _, err := h.store.List(ctx, "health/"); err != nil {
			services["storage"] = "unhealthy: " + err.Error()
		} else {
			services["storage"] = "healthy"
		}
	} else {
		services["storage"] = "unhealthy: not configured"
	}

	overallStatus := "healthy"
	httpStatus := http.StatusOK
	for _, status := range services {
		if status != "healthy" {
			overallStatus = "degraded"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    overallStatus,
		Timestamp: time.Now(),
		Services:  services,
		Version:   h.version,
		Uptime:    time.Since(startTime).Round(time.Second).String(),
	})
}

// Ready is a lightweight liveness probe that never touches dependencies.
func (h *HealthHandler) Ready(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready", "timestamp": time.Now()})
}
