package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/carepulse/internal/appointments"
	"github.com/wolfman30/carepulse/internal/events"
	"github.com/wolfman30/carepulse/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/carepulse/internal/http/middleware"
	"github.com/wolfman30/carepulse/internal/notify"
	"github.com/wolfman30/carepulse/internal/observability/metrics"
	"github.com/wolfman30/carepulse/internal/patients"
	"github.com/wolfman30/carepulse/internal/remote"
	"github.com/wolfman30/carepulse/internal/remote/memory"
	"github.com/wolfman30/carepulse/pkg/logging"
)

const testSecret = "router-secret"

type testEnv struct {
	handler http.Handler
	broker  *events.MemoryBroker
	limiter *httpmiddleware.RateLimiter
}

func newTestRouter(t *testing.T) *testEnv {
	t.Helper()
	logger := logging.Default()
	reg := prometheus.NewRegistry()
	m := metrics.NewSchedulerMetrics(reg)

	mem := memory.New()
	client := remote.Instrument(mem, m)
	broker := events.NewMemoryBroker()
	dispatcher := notify.NewDispatcher(client, notify.DispatcherConfig{Metrics: m}, logger)
	apptSvc := appointments.NewService(client, dispatcher, appointments.Config{
		Events:  broker,
		Metrics: m,
		Now:     func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) },
	}, logger)
	patientSvc := patients.NewService(client, patients.Config{}, logger)

	limiter := httpmiddleware.NewRateLimiter(100, 100)
	t.Cleanup(limiter.Close)

	return &testEnv{
		handler: New(&Config{
			Logger:             logger,
			Appointments:       handlers.NewAppointmentsHandler(apptSvc, logger),
			Patients:           handlers.NewPatientsHandler(patientSvc, logger),
			AdminStream:        events.NewStreamHandler(broker, nil, logger),
			MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			AdminAuthSecret:    testSecret,
			CORSAllowedOrigins: []string{"https://carepulse.example.com"},
			RateLimiter:        limiter,
		}),
		broker:  broker,
		limiter: limiter,
	}
}

func adminToken(t *testing.T) string {
	t.Helper()
	claims := httpmiddleware.AdminClaims{
		Role: httpmiddleware.AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "admin",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return signed
}

func TestRouterHealthEndpoint(t *testing.T) {
	env := newTestRouter(t)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]any
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rr.Header().Get("X-Request-Id"))
}

func TestRouterBookingFlowAndMetrics(t *testing.T) {
	env := newTestRouter(t)

	body, err := json.Marshal(map[string]any{
		"user_id": "u1", "patient_id": "p1", "primary_physician": "Dr. A",
		"schedule": "2025-01-10T09:00:00Z", "reason": "checkup",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Contains(t, rr.Body.String(), "success_path")

	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `carepulse_remote_calls_total{op="documents.create",outcome="ok"} 1`)
	assert.Contains(t, rr.Body.String(), `carepulse_appointments_writes_total{action="created",status="pending"} 1`)
}

func TestRouterAdminRequiresToken(t *testing.T) {
	env := newTestRouter(t)

	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/appointments", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/admin/appointments", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken(t))
	rr = httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var list appointments.RecentList
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&list))
	assert.Equal(t, 0, list.TotalCount)
}

func TestRouterAdminOmittedWithoutSecret(t *testing.T) {
	h := New(&Config{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/admin/appointments", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	env := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/appointments", nil)
	req.Header.Set("Origin", "https://carepulse.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "https://carepulse.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterAdminStream(t *testing.T) {
	env := newTestRouter(t)
	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/admin/appointments/stream?access_token=" + adminToken(t)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	defer resp.Body.Close()

	require.Eventually(t, func() bool { return env.broker.Subscribers() == 1 }, time.Second, 10*time.Millisecond)

	env2, err := events.NewEnvelope(events.AppointmentAggregate("a1"), events.AppointmentsChangedV1{AppointmentID: "a1", Status: "scheduled", Action: events.ActionUpdated})
	require.NoError(t, err)
	require.NoError(t, env.broker.Publish(context.Background(), env2))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var got events.Envelope
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, env2.EventID, got.EventID)
}
