// Package router defines how HTTP routes are registered for the API.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/handler"
	"github.com/accesshub/cloud-access-gateway/internal/middleware"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// RegisterRoutes registers routes that require no authentication. Currently
// that is only the health check used by load balancers and monitoring.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers authentication endpoints. Obtaining a token is
// unauthenticated; reading the caller's own profile requires a valid token
// but no particular role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/token", a.Token)

	auth := e.Group("/v1/auth", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterUsers registers user management. Registration is open; reading a
// single user needs authentication; listing, deleting and plan subscription
// are admin operations.
func RegisterUsers(e *echo.Echo, u *handler.UserHandler, jwtSecret string) {
	e.POST("/v1/users", u.Register)

	auth := e.Group("/v1/users", middleware.JWTAuth(jwtSecret))
	auth.GET("/:id", u.Get)

	admin := e.Group("/v1/users",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(repository.RoleAdmin),
	)
	admin.GET("", u.List)
	admin.DELETE("/:id", u.Delete)
	admin.PUT("/:id/plan", u.SetPlan)
}
