// Package api exposes scanning, pricing and inventory listing over HTTP.
package api

import (
	"github.com/gin-gonic/gin"
)

// OwnerHeader carries the caller's owner identity.
const OwnerHeader = "X-Owner-ID"

// SetupRouter creates and configures the Gin router
func SetupRouter(mode string, handler *Handler) *gin.Engine {
	if mode != "" {
		gin.SetMode(mode)
	}

	router := gin.New()
	router.Use(RecoveryMiddleware())
	router.Use(LoggerMiddleware())

	router.GET("/healthz", handler.HealthCheck)

	v1 := router.Group("/v1")
	v1.Use(RequireOwner())
	{
		v1.POST("/scan", handler.Scan)
		v1.POST("/price", handler.Price)
		v1.POST("/price/batch", handler.PriceBatch)
		v1.GET("/items", handler.ListItems)
	}

	return router
}
