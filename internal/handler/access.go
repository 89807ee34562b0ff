package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// AccessHandler bundles dependencies for grant management endpoints.
type AccessHandler struct {
	Users    *repository.UserRepo
	Services *repository.ServiceRepo
	Grants   *repository.AccessRepo
}

func NewAccessHandler(users *repository.UserRepo, services *repository.ServiceRepo, grants *repository.AccessRepo) *AccessHandler {
	if users == nil || services == nil || grants == nil {
		panic("nil repository passed to NewAccessHandler")
	}
	return &AccessHandler{Users: users, Services: services, Grants: grants}
}

type grantReq struct {
	UserID     uint64 `json:"user_id"`
	ServiceID  uint64 `json:"service_id"`
	Permission string `json:"permission"`
}

// Create handles POST /v1/access-controls (admin only). User and service
// must both exist before the grant is inserted; an identical existing tuple
// answers 409. The uniqueness check is the insert itself, so two identical
// concurrent requests produce exactly one grant.
func (h *AccessHandler) Create(c echo.Context) error {
	var req grantReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Permission = strings.TrimSpace(req.Permission)
	if req.UserID == 0 || req.ServiceID == 0 || req.Permission == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "user_id/service_id/permission required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if _, err := h.Users.GetByID(ctx, req.UserID); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	if _, err := h.Services.GetByID(ctx, req.ServiceID); err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}

	ac := &repository.AccessControl{UserID: req.UserID, ServiceID: req.ServiceID, Permission: req.Permission}
	if err := h.Grants.Create(ctx, ac); err != nil {
		if errors.Is(err, repository.ErrGrantExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "permission already assigned to this user for this service"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create grant failed"})
	}
	return c.JSON(http.StatusCreated, ac)
}

// List handles GET /v1/access-controls (admin only).
func (h *AccessHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Grants.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/access-controls/:id (admin only).
func (h *AccessHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	ac, err := h.Grants.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrGrantNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "access control not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, ac)
}

// Delete handles DELETE /v1/access-controls/:id (admin only): revokes the
// grant.
func (h *AccessHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Grants.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrGrantNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "access control not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
