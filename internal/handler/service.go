package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/accesshub/cloud-access-gateway/internal/access"
	"github.com/accesshub/cloud-access-gateway/internal/queue"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
	queue_publisher "github.com/accesshub/cloud-access-gateway/internal/service"
)

// callPermission is the grant label checked when a service is invoked
// through the gateway. It is a grant string, not a catalog permission; the
// two namespaces are independent.
const callPermission = "read"

// ServiceHandler bundles dependencies for the service catalog and the
// guarded invocation endpoint.
type ServiceHandler struct {
	Services *repository.ServiceRepo
	Engine   *access.Engine
}

func NewServiceHandler(services *repository.ServiceRepo, engine *access.Engine) *ServiceHandler {
	if services == nil || engine == nil {
		panic("nil dependency passed to NewServiceHandler")
	}
	return &ServiceHandler{Services: services, Engine: engine}
}

type serviceReq struct {
	Name              string `json:"name"`
	Description       string `json:"description"`
	MaxCallsPerMinute *int   `json:"max_calls_per_minute"`
}

// Create handles POST /v1/services (admin only). The quota defaults to 60
// calls per minute when the payload leaves it out.
func (h *ServiceHandler) Create(c echo.Context) error {
	var req serviceReq
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

	svc := &repository.CloudService{Name: req.Name, Description: req.Description, MaxCallsPerMinute: limit}
	if err := h.Services.Create(ctx, svc); err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return c.JSON(http.StatusConflict, echo.Map{"error": "service name already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "create service failed"})
	}
	return c.JSON(http.StatusCreated, svc)
}

// List handles GET /v1/services. The route sits behind the response cache,
// so repeated catalog reads are served from Redis until the TTL lapses.
func (h *ServiceHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	items, err := h.Services.List(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Get handles GET /v1/services/:id.
func (h *ServiceHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	svc, err := h.Services.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	return c.JSON(http.StatusOK, svc)
}

// Update handles PUT /v1/services/:id (admin only).
func (h *ServiceHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req serviceReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	svc, err := h.Services.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "db error"})
	}
	svc.Name = req.Name
	svc.Description = req.Description
	if req.MaxCallsPerMinute != nil {
		if *req.MaxCallsPerMinute < 0 {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "max_calls_per_minute must be >= 0"})
		}
		svc.MaxCallsPerMinute = *req.MaxCallsPerMinute
	}
	if err := h.Services.Update(ctx, svc); err != nil {
		switch {
		case errors.Is(err, repository.ErrServiceNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		case errors.Is(err, repository.ErrConflict):
			return c.JSON(http.StatusConflict, echo.Map{"error": "service name already exists"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, svc)
}

// Delete handles DELETE /v1/services/:id (admin only). Grants on the
// service cascade away with it.
func (h *ServiceHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	if err := h.Services.Delete(ctx, id); err != nil {
		if errors.Is(err, repository.ErrServiceNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	return c.NoContent(http.StatusNoContent)
}

// Call handles GET /v1/services/:id/call, the gateway's critical path.
// The engine resolves the service, checks the caller's "read" grant and
// reserves a quota slot; the usage row is written inside that reservation.
// On success the service body is returned and an audit event is published;
// a failed publish is logged by the publisher and otherwise ignored.
func (h *ServiceHandler) Call(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	id, err := pathID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}

	ctx, cancel := reqCtx(c)
	defer cancel()

	d, err := h.Engine.Invoke(ctx, uid, id, callPermission)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "authorization failed"})
	}
	switch d.Outcome {
	case access.OutcomeServiceNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": "service not found"})
	case access.OutcomeNoGrant:
		return c.JSON(http.StatusForbidden, echo.Map{
			"error": "missing '" + callPermission + "' permission on '" + d.Service.Name + "'",
		})
	case access.OutcomeRateLimited:
		c.Response().Header().Set("Retry-After", strconv.Itoa(int(access.Window/time.Second)))
		return c.JSON(http.StatusTooManyRequests, echo.Map{
			"error": "rate limit exceeded",
			"count": d.Count,
			"limit": d.Limit,
		})
	}

	_ = queue_publisher.PublishServiceInvoked(ctx, queue.ServiceInvokedEvent{
		UserID:      uid,
		Username:    getUsername(c),
		ServiceID:   d.Service.ID,
		ServiceName: d.Service.Name,
		Permission:  callPermission,
		WindowCount: d.Count + 1,
		WindowLimit: d.Limit,
		InvokedAt:   time.Now().UTC().Format(time.RFC3339),
	})

	return c.JSON(http.StatusOK, d.Service)
}
