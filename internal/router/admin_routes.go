package router

import (
	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/handler"
	"github.com/accesshub/cloud-access-gateway/internal/middleware"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// RegisterAccessControl registers grant administration. Every endpoint is
// admin-only: grants decide who may invoke what, so ordinary users cannot
// view or change them.
func RegisterAccessControl(e *echo.Echo, a *handler.AccessHandler, jwtSecret string) {
	g := e.Group("/v1/access-controls",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
	g.POST("", a.Create)
	g.GET("", a.List)
	g.GET("/:id", a.Get)
	g.DELETE("/:id", a.Delete)
}

// RegisterPermissions registers the permission catalog. Any authenticated
// caller may browse it; creation is admin-only.
func RegisterPermissions(e *echo.Echo, p *handler.PermissionHandler, jwtSecret string) {
	auth := e.Group("/v1/permissions", middleware.JWTAuth(jwtSecret))
	auth.GET("", p.List)

	admin := e.Group("/v1/permissions",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
	admin.POST("", p.Create)
}

// RegisterPlans registers plan management. Browsing plans is available to
// any authenticated caller; mutations are admin-only.
func RegisterPlans(e *echo.Echo, p *handler.PlanHandler, jwtSecret string) {
	auth := e.Group("/v1/plans", middleware.JWTAuth(jwtSecret))
	auth.GET("", p.List)
	auth.GET("/:id", p.Get)

	admin := e.Group("/v1/plans",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
	admin.POST("", p.Create)
	admin.PUT("/:id", p.Update)
	admin.DELETE("/:id", p.Delete)
}
