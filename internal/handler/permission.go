package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// PermissionHandler manages the permission catalog.
type PermissionHandler struct {
	Perms *repository.PermissionRepo
}

func NewPermissionHandler(perms *repository.PermissionRepo) *PermissionHandler {
	if perms == nil {
		panic("nil repository passed to NewPermissionHandler")
	}
	return &PermissionHandler{Perms: perms}
}

type permissionReq struct {
	Name        string `json:"name"`
	ServiceName string `json:"service_name"`
}

// Create handles POST /v1/permissions (admin only). Duplicate
// (name, service_name) pairs answer 409.
func (h *PermissionHandler) Create(c echo.Context) error {
	var req permissionReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.ServiceName = strings.TrimSpace(req.ServiceName)
	if req.Name == "" || req.ServiceName == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name/service_name required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	p := &repository.Permission{Name: req.Name, ServiceName: req.ServiceName}
	if err := h.Perms.Create(ctx, p); err != nil {
		if errors.Is(err, repository.ErrPermissionExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "permission already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create permission failed"})
	}
	return c.JSON(http.StatusCreated, p)
}

// List handles GET /v1/permissions.
func (h *PermissionHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Perms.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
