package v1

import (
	"github.com/gin-gonic/gin"
)

// DDTRouteHandler defines the delivery-note endpoints.
type DDTRouteHandler interface {
	Next(c *gin.Context)
	Advance(c *gin.Context)
	Generate(c *gin.Context)
}

// RegisterDDTRoutes registers the per-class routes on group.
//
// Usage:
//
//	handler := handlers.NewDDTHandler(cfg.Service, cfg.Service.Generator())
//	RegisterDDTRoutes(api.Group("/ddt/:class"), handler)
func RegisterDDTRoutes(group *gin.RouterGroup, handler DDTRouteHandler) {
	group.GET("/next", handler.Next)
	group.POST("/advance", handler.Advance)
	group.POST("/generate", handler.Generate)
}
