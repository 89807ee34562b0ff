package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// PlanHandler manages subscription plans.
type PlanHandler struct {
	Plans *repository.PlanRepo
}

func NewPlanHandler(plans *repository.PlanRepo) *PlanHandler {
	if plans == nil {
		panic("nil repository passed to NewPlanHandler")
	}
	return &PlanHandler{Plans: plans}
}

type planReq struct {
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	MaxCallsPerMinute *int     `json:"max_calls_per_minute"`
	PermissionIDs     []uint64 `json:"permission_ids"`
}

// Create handles POST /v1/plans (admin only). Permission ids that resolve
// to nothing are dropped without complaint; the response shows exactly
// which permissions the plan ended up with.
func (h *PlanHandler) Create(c echo.Context) error {
	var req planReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	limit := 60
	if req.MaxCallsPerMinute != nil {
		if *req.MaxCallsPerMinute < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_calls_per_minute must be >= 0"})
		}
		limit = *req.MaxCallsPerMinute
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	p := &repository.Plan{Name: req.Name, Description: req.Description, MaxCallsPerMinute: limit}
	if err := h.Plans.Create(ctx, p, req.PermissionIDs); err != nil {
		if errors.Is(err, repository.ErrPlanExists) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "plan name already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create plan failed"})
	}
	return c.JSON(http.StatusCreated, p)
}

// List handles GET /v1/plans.
func (h *PlanHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Plans.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/plans/:id.
func (h *PlanHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	p, err := h.Plans.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "plan not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, p)
}

// Update handles PUT /v1/plans/:id (admin only): replaces the plan's fields
// and rewrites its permission set with the same lenient id policy as Create.
func (h *PlanHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req planReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	limit := 60
	if req.MaxCallsPerMinute != nil {
		if *req.MaxCallsPerMinute < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_calls_per_minute must be >= 0"})
		}
		limit = *req.MaxCallsPerMinute
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	p := &repository.Plan{ID: id, Name: req.Name, Description: req.Description, MaxCallsPerMinute: limit}
	if err := h.Plans.Update(ctx, p, req.PermissionIDs); err != nil {
		switch {
		case errors.Is(err, repository.ErrPlanNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "plan not found"})
		case errors.Is(err, repository.ErrPlanExists):
			return c.JSON(http.StatusConflict, echo.Map{"error": "plan name already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update plan failed"})
	}
	return c.JSON(http.StatusOK, p)
}

// Delete handles DELETE /v1/plans/:id (admin only). Subscribed users drop
// back to no plan.
func (h *PlanHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Plans.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrPlanNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "plan not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}
