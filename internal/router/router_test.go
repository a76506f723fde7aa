package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	appointmentHandler "github.com/jwalitptl/booking-api/internal/handler/appointment"
	authHandler "github.com/jwalitptl/booking-api/internal/handler/auth"
	availabilityHandler "github.com/jwalitptl/booking-api/internal/handler/availability"
	"github.com/jwalitptl/booking-api/internal/handler/health"
	promHandler "github.com/jwalitptl/booking-api/internal/handler/prometheus"
	userHandler "github.com/jwalitptl/booking-api/internal/handler/user"
	"github.com/jwalitptl/booking-api/internal/middleware"
	"github.com/jwalitptl/booking-api/internal/repository/memory"
	appointmentService "github.com/jwalitptl/booking-api/internal/service/appointment"
	authService "github.com/jwalitptl/booking-api/internal/service/auth"
	availabilityService "github.com/jwalitptl/booking-api/internal/service/availability"
	userService "github.com/jwalitptl/booking-api/internal/service/user"
	"github.com/jwalitptl/booking-api/pkg/auth"
	"github.com/jwalitptl/booking-api/pkg/metrics"
	"github.com/jwalitptl/booking-api/pkg/security"
)

const (
	coordinatorEmail    = "coordinator@example.com"
	coordinatorPassword = "coordinator-pass"
)

type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Status int `json:"-"`
}

func (r Response) Object(t *testing.T) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(r.Data, &out))
	return out
}

func (r Response) GetString(t *testing.T, key string) string {
	t.Helper()
	val, _ := r.Object(t)[key].(string)
	return val
}

type testAPI struct {
	engine *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	require.NoError(t, middleware.RegisterValidators(middleware.DefaultValidationConfig()))

	store := memory.NewStore()
	registry := prometheus.NewRegistry()
	m := metrics.New("booking", registry)

	jwtSvc, err := auth.NewJWTService(auth.Config{
		Secret:     "router-test-secret",
		Issuer:     "booking-api",
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
	})
	require.NoError(t, err)

	authSvc := authService.NewService(store.Actors(), jwtSvc, security.NewBcryptHasher(bcrypt.MinCost), m)
	_, err = authSvc.EnsureCoordinator(context.Background(), coordinatorEmail, coordinatorPassword, "Coordinator")
	require.NoError(t, err)

	r := NewRouter(
		middleware.NewAuthMiddleware(authSvc),
		Handlers{
			Auth:         authHandler.NewHandler(authSvc),
			User:         userHandler.NewHandler(userService.NewService(store.Actors())),
			Appointment:  appointmentHandler.NewHandler(appointmentService.NewService(store.Appointments(), store.Actors(), m)),
			Availability: availabilityHandler.NewHandler(availabilityService.NewService(store.Appointments(), store.Availability(), store.Actors())),
			Health:       health.NewHandler(nil),
			Metrics:      promHandler.New(registry, m),
		},
		RouterConfig{
			CORSConfig:     middleware.DefaultCORSConfig(),
			RequestTimeout: 5 * time.Second,
			MaxBodySize:    1 << 20,
		},
	)
	r.Setup()
	return &testAPI{engine: r.Engine()}
}

func (a *testAPI) makeRequest(t *testing.T, method, path string, body interface{}, token string) Response {
	t.Helper()
	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, "/api/v1"+path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	resp.Status = w.Code
	return resp
}

func (a *testAPI) login(t *testing.T, email, password string) string {
	t.Helper()
	resp := a.makeRequest(t, http.MethodPost, "/auth/login", map[string]string{"email": email, "password": password}, "")
	require.Equal(t, http.StatusOK, resp.Status, "login %s", email)
	return resp.GetString(t, "access_token")
}

// register creates an account and returns its id and an access token.
func (a *testAPI) register(t *testing.T, email string) (string, string) {
	t.Helper()
	resp := a.makeRequest(t, http.MethodPost, "/auth/register", map[string]string{
		"email": email, "password": "password-123", "name": "Test " + email,
	}, "")
	require.Equal(t, http.StatusCreated, resp.Status, "register %s", email)
	return resp.GetString(t, "id"), a.login(t, email, "password-123")
}

func (a *testAPI) clinician(t *testing.T, coordinator, email string) (string, string) {
	t.Helper()
	id, _ := a.register(t, email)
	resp := a.makeRequest(t, http.MethodPut, "/users/"+id+"/role", map[string]string{"role": "clinician"}, coordinator)
	require.Equal(t, http.StatusOK, resp.Status)
	return id, a.login(t, email, "password-123")
}

func TestAppointmentLifecycleOverHTTP(t *testing.T) {
	api := newTestAPI(t)
	coordinator := api.login(t, coordinatorEmail, coordinatorPassword)
	clientID, client := api.register(t, "client@example.com")
	clinicianID, clinician := api.clinician(t, coordinator, "clinician@example.com")
	otherClientID, _ := api.register(t, "other@example.com")

	created := api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{
		"date": "2025-03-03", "time": "10:00", "reason": "checkup",
	}, client)
	require.Equal(t, http.StatusCreated, created.Status)
	assert.Equal(t, "pending", created.GetString(t, "status"))
	assert.Equal(t, clientID, created.GetString(t, "client_id"))
	aptID := created.GetString(t, "id")

	// clients cannot assign
	resp := api.makeRequest(t, http.MethodPut, "/appointments/"+aptID+"/assign", map[string]string{"clinician_id": clinicianID}, client)
	assert.Equal(t, http.StatusForbidden, resp.Status)

	resp = api.makeRequest(t, http.MethodPut, "/appointments/"+aptID+"/assign", map[string]string{"clinician_id": clinicianID}, coordinator)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "assigned", resp.GetString(t, "status"))
	assert.Equal(t, "Assigned", resp.GetString(t, "status_label"))

	// the same slot cannot be booked twice
	resp = api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{
		"client_id": otherClientID, "clinician_id": clinicianID, "date": "2025-03-03", "time": "10:00",
	}, coordinator)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, fmt.Sprintf("/clinicians/%s/availability/check?date=2025-03-03&time=10:00", clinicianID), nil, client)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, false, resp.Object(t)["free"])

	resp = api.makeRequest(t, http.MethodPut, "/appointments/"+aptID+"/complete", map[string]string{"notes": "all good"}, clinician)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "completed", resp.GetString(t, "status"))

	// terminal
	resp = api.makeRequest(t, http.MethodPut, "/appointments/"+aptID+"/cancel", map[string]string{"reason": "late"}, coordinator)
	assert.Equal(t, http.StatusConflict, resp.Status)
	resp = api.makeRequest(t, http.MethodPut, "/appointments/"+aptID, map[string]string{"status": "Pending"}, coordinator)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/appointments/"+aptID, nil, client)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "completed", resp.GetString(t, "status"))
}

func TestStatusPatchCannotSkipAssignment(t *testing.T) {
	api := newTestAPI(t)
	coordinator := api.login(t, coordinatorEmail, coordinatorPassword)
	_, client := api.register(t, "client@example.com")

	created := api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{"date": "2025-03-03", "time": "11:00"}, client)
	require.Equal(t, http.StatusCreated, created.Status)
	aptID := created.GetString(t, "id")

	resp := api.makeRequest(t, http.MethodPut, "/appointments/"+aptID, map[string]string{"status": "Completed"}, coordinator)
	assert.Equal(t, http.StatusConflict, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/appointments/"+aptID, nil, coordinator)
	assert.Equal(t, "pending", resp.GetString(t, "status"))
}

func TestAuthenticationErrors(t *testing.T) {
	api := newTestAPI(t)
	coordinator := api.login(t, coordinatorEmail, coordinatorPassword)

	resp := api.makeRequest(t, http.MethodGet, "/appointments", nil, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.False(t, resp.Success)

	resp = api.makeRequest(t, http.MethodGet, "/appointments", nil, "not-a-token")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = api.makeRequest(t, http.MethodPost, "/auth/login", map[string]string{"email": coordinatorEmail, "password": "wrong-password"}, "")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/auth/me", nil, coordinator)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "coordinator", resp.GetString(t, "role"))
	assert.NotContains(t, string(resp.Data), "password")

	// refresh tokens are not accepted as bearer credentials
	login := api.makeRequest(t, http.MethodPost, "/auth/login", map[string]string{"email": coordinatorEmail, "password": coordinatorPassword}, "")
	refresh := login.GetString(t, "refresh_token")
	resp = api.makeRequest(t, http.MethodGet, "/auth/me", nil, refresh)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = api.makeRequest(t, http.MethodPost, "/auth/refresh", map[string]string{"refresh_token": refresh}, "")
	require.Equal(t, http.StatusOK, resp.Status)
	assert.NotEmpty(t, resp.GetString(t, "access_token"))
}

func TestRequestValidation(t *testing.T) {
	api := newTestAPI(t)
	_, client := api.register(t, "client@example.com")

	resp := api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{"date": "2025-13-01", "time": "10:00"}, client)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	require.NotNil(t, resp.Error)
	assert.Contains(t, resp.Error.Message, "date")

	resp = api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{"date": "2025-03-03"}, client)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Contains(t, resp.Error.Message, "time is required")

	resp = api.makeRequest(t, http.MethodGet, "/appointments/not-a-uuid", nil, client)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/appointments/6f1c2a5e-8d4b-4c1e-9a7f-3b2d1e0c9f8a", nil, client)
	assert.Equal(t, http.StatusNotFound, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/appointments?status=archived", nil, client)
	assert.Equal(t, http.StatusBadRequest, resp.Status)

	resp = api.makeRequest(t, http.MethodGet, "/appointments?page=abc", nil, client)
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestListIsScopedAndPaginated(t *testing.T) {
	api := newTestAPI(t)
	coordinator := api.login(t, coordinatorEmail, coordinatorPassword)
	clientID, client := api.register(t, "client@example.com")
	_, other := api.register(t, "other@example.com")

	for _, at := range []string{"09:00", "09:30", "10:00"} {
		resp := api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{"date": "2025-03-03", "time": at}, client)
		require.Equal(t, http.StatusCreated, resp.Status)
	}
	resp := api.makeRequest(t, http.MethodPost, "/appointments", map[string]string{"date": "2025-03-03", "time": "09:00"}, other)
	require.Equal(t, http.StatusCreated, resp.Status)

	var page struct {
		Data       []map[string]interface{} `json:"data"`
		Pagination struct {
			Page       int `json:"page"`
			PageSize   int `json:"page_size"`
			Total      int `json:"total"`
			TotalPages int `json:"total_pages"`
		} `json:"pagination"`
	}

	resp = api.makeRequest(t, http.MethodGet, "/appointments?limit=2", nil, client)
	require.Equal(t, http.StatusOK, resp.Status)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Len(t, page.Data, 2)
	assert.Equal(t, 3, page.Pagination.Total)
	assert.Equal(t, 2, page.Pagination.TotalPages)

	resp = api.makeRequest(t, http.MethodGet, "/appointments", nil, coordinator)
	require.NoError(t, json.Unmarshal(resp.Data, &page))
	assert.Equal(t, 4, page.Pagination.Total)

	// another client cannot read this client's list
	resp = api.makeRequest(t, http.MethodGet, "/clients/"+clientID+"/appointments", nil, other)
	assert.Equal(t, http.StatusForbidden, resp.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	api := newTestAPI(t)

	w := httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get(middleware.HeaderXRequestID))

	w = httptest.NewRecorder()
	api.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/health/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Body.String(), "booking_http_requests_total"))
}
