package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// UsageHandler exposes invocation history.
type UsageHandler struct {
	Usage *repository.UsageRepo
}

func NewUsageHandler(usage *repository.UsageRepo) *UsageHandler {
	if usage == nil {
		panic("nil repository passed to NewUsageHandler")
	}
	return &UsageHandler{Usage: usage}
}

// MyUsage handles GET /v1/usage/me: the caller's own invocation records,
// newest first.
func (h *UsageHandler) MyUsage(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Usage.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
