package router

import (
	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/handler"
	"github.com/accesshub/cloud-access-gateway/internal/middleware"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// RegisterCatalog registers the service catalog and the guarded invocation
// path. Catalog reads are public and sit behind the response cache; the
// invocation endpoint and usage history require authentication. Catalog
// mutations are admin-only.
//
// cache may be nil when Redis is unavailable; reads then go straight to the
// database on every request.
func RegisterCatalog(e *echo.Echo, s *handler.ServiceHandler, usage *handler.UsageHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	reads := e.Group("/v1/services")
	if cache != nil {
		reads.Use(cache)
	}
	reads.GET("", s.List)
	reads.GET("/:id", s.Get)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	// The critical path: grant check, sliding-window quota, usage record.
	auth.GET("/services/:id/call", s.Call)
	auth.GET("/usage/me", usage.MyUsage)

	admin := e.Group("/v1/services",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
	admin.POST("", s.Create)
	admin.PUT("/:id", s.Update)
	admin.DELETE("/:id", s.Delete)
}
