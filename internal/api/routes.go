package api

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/openpnl/bitget-orders-go/internal/api/handlers"
)

// SetupRoutes registers the HTTP façade on the given router.
func SetupRoutes(router *gin.Engine, health *handlers.HealthHandler, extraction *handlers.ExtractionHandler, results *handlers.ResultsHandler) {
	router.Use(otelgin.Middleware("bitget-orders-api"))

	router.GET("/health", health.HealthCheck)
	router.GET("/ready", health.Ready)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/extract-orders", extraction.ExtractOrders)
		v1.POST("/extract-single-symbol", extraction.ExtractSingleSymbol)

		v1.GET("/symbols", extraction.GetSymbols)
		v1.POST("/discover-symbols", extraction.DiscoverSymbols)

		executions := v1.Group("/executions")
		{
			executions.GET("", extraction.ListExecutions)
			executions.GET("/:id", extraction.GetExecution)
		}

		v1.GET("/results/latest", results.GetLatestResult)
		v1.POST("/analytics", results.Analyze)
	}
}
