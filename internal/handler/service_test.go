package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/accesshub/cloud-access-gateway/internal/access"
	"github.com/accesshub/cloud-access-gateway/internal/repository"
)

// callStore backs the decision engine with in-memory state so the invocation
// endpoint can be exercised without a database.
type callStore struct {
	mu      sync.Mutex
	service *repository.CloudService
	granted bool
	used    int
}

func (s *callStore) GetByID(ctx context.Context, id uint64) (*repository.CloudService, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil || s.service.ID != id {
		return nil, repository.ErrServiceNotFound
	}
	return s.service, nil
}

func (s *callStore) Find(ctx context.Context, userID, serviceID uint64, permission string) (*repository.AccessControl, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.granted {
		return nil, repository.ErrGrantNotFound
	}
	return &repository.AccessControl{UserID: userID, ServiceID: serviceID, Permission: permission}, nil
}

func (s *callStore) CountSince(ctx context.Context, userID, serviceID uint64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.used, nil
}

func (s *callStore) Append(ctx context.Context, userID, serviceID uint64) (*repository.UsageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.used++
	return &repository.UsageRecord{UserID: userID, ServiceID: serviceID, CreatedAt: time.Now().UTC()}, nil
}

func (s *callStore) ReserveSlot(ctx context.Context, userID, serviceID uint64, since time.Time) (repository.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.service == nil || s.service.ID != serviceID {
		return repository.Reservation{}, repository.ErrServiceNotFound
	}
	rv := repository.Reservation{Count: s.used, Limit: s.service.MaxCallsPerMinute}
	if s.used >= s.service.MaxCallsPerMinute {
		return rv, nil
	}
	s.used++
	rv.Allowed = true
	return rv, nil
}

func callRequest(t *testing.T, store *callStore, serviceID string) *httptest.ResponseRecorder {
	t.Helper()
	h := &ServiceHandler{
		Services: &repository.ServiceRepo{},
		Engine:   access.NewEngine(store, store, store),
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/services/"+serviceID+"/call", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/services/:id/call")
	c.SetParamNames("id")
	c.SetParamValues(serviceID)
	c.Set("user_id", uint64(1))
	c.Set("username", "alice")

	require.NoError(t, h.Call(c))
	return rec
}

func TestCallUnknownService(t *testing.T) {
	rec := callRequest(t, &callStore{}, "99")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"service not found"}`, rec.Body.String())
}

func TestCallWithoutGrant(t *testing.T) {
	store := &callStore{
		service: &repository.CloudService{ID: 7, Name: "gaming-api", MaxCallsPerMinute: 60},
	}
	rec := callRequest(t, store, "7")
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"missing 'read' permission on 'gaming-api'"}`, rec.Body.String())
}

func TestCallOverQuota(t *testing.T) {
	store := &callStore{
		service: &repository.CloudService{ID: 7, Name: "gaming-api", MaxCallsPerMinute: 2},
		granted: true,
		used:    2,
	}
	rec := callRequest(t, store, "7")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"rate limit exceeded","count":2,"limit":2}`, rec.Body.String())
}

func TestCallAllowedReturnsServiceAndRecords(t *testing.T) {
	store := &callStore{
		service: &repository.CloudService{ID: 7, Name: "gaming-api", MaxCallsPerMinute: 2},
		granted: true,
	}
	rec := callRequest(t, store, "7")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"gaming-api"`)
	assert.Equal(t, 1, store.used, "an allowed call writes exactly one usage row")
}

func TestCallBadID(t *testing.T) {
	rec := callRequest(t, &callStore{}, "not-a-number")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCallWithoutIdentity(t *testing.T) {
	h := &ServiceHandler{
		Services: &repository.ServiceRepo{},
		Engine:   access.NewEngine(&callStore{}, &callStore{}, &callStore{}),
	}
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/v1/services/7/call", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("7")

	require.NoError(t, h.Call(c))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
