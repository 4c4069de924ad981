package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/config"
	"safetywatch/internal/ingest"
	"safetywatch/internal/middleware"
	"safetywatch/internal/models"
	"safetywatch/internal/realtime"
	"safetywatch/internal/service"
	"safetywatch/internal/validate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	tokens     map[string]string
	loggedOut  []string
	loginInput service.LoginInput
}

func (a *stubAuth) Verify(_ context.Context, token, _, _ string) (service.Identity, error) {
	pid, ok := a.tokens[token]
	if !ok {
		return service.Identity{}, apperr.Unauthenticated("Invalid authentication")
	}
	return service.Identity{PrincipalID: pid, SessionID: "sess-" + pid}, nil
}

func (a *stubAuth) Login(_ context.Context, in service.LoginInput) (service.AuthResult, error) {
	a.loginInput = in
	if in.Password != "Passw0rdOk" {
		return service.AuthResult{}, apperr.Unauthenticated("Invalid login credentials")
	}
	return service.AuthResult{
		AccessToken: "tok",
		ExpiresAt:   time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		Principal:   models.Principal{ID: "p1", Login: "wrk001@safetysystem.local"},
		Role:        models.RoleWorker,
	}, nil
}

func (a *stubAuth) Logout(_ context.Context, sessionID string) error {
	a.loggedOut = append(a.loggedOut, sessionID)
	return nil
}

func (a *stubAuth) Me(_ context.Context, principalID string) (service.Profile, error) {
	return service.Profile{Principal: models.Principal{ID: principalID, Login: principalID + "@safetysystem.local"}, Role: models.RoleAdmin}, nil
}

type stubGate map[string]models.Role

func (g stubGate) AuthorizeUser(_ context.Context, principalID string, action authz.Action) (authz.Caller, error) {
	role, ok := g[principalID]
	if !ok {
		return authz.Caller{}, apperr.Forbidden(action.DenyMessage())
	}
	allowed := true
	switch action {
	case authz.ActionRegisterWorker, authz.ActionListWorkers:
		allowed = role == models.RoleAdmin || role == models.RoleSupervisor
	case authz.ActionSeedDemo, authz.ActionListSupervisors:
		allowed = role == models.RoleAdmin
	}
	if !allowed {
		return authz.Caller{}, apperr.Forbidden(action.DenyMessage())
	}
	return authz.Caller{PrincipalID: principalID, Role: role}, nil
}

type stubProvisioner struct {
	got authz.Caller
	in  service.RegisterInput
	err error
}

func (p *stubProvisioner) Register(_ context.Context, caller authz.Caller, in service.RegisterInput) (service.RegisterResult, error) {
	p.got, p.in = caller, in
	if p.err != nil {
		return service.RegisterResult{}, p.err
	}
	return service.RegisterResult{WorkerID: in.WorkerID, Message: "Worker " + in.Name + " registered successfully"}, nil
}

type stubIngestor struct {
	got []validate.Sensor
	err error
}

func (s *stubIngestor) Submit(_ context.Context, in validate.Sensor) (models.SensorReading, error) {
	s.got = append(s.got, in)
	if s.err != nil {
		return models.SensorReading{}, s.err
	}
	return models.SensorReading{ID: "r1", WorkerID: "w1"}, nil
}

type stubSeeder struct{}

func (stubSeeder) Seed(context.Context) (service.SeedResult, error) {
	return service.SeedResult{
		Supervisors: []service.Credential{{UserID: "sup001", Password: "Xy7pQ2mL9aB3cD4e", Name: "Rajesh Kumar"}},
		Workers:     []service.Credential{{UserID: "wrk001", Password: "Ab3dEf6hJk9mNp2q", Name: "Amit Singh"}},
		Details:     []string{"Supervisor ready: Rajesh Kumar (sup001)"},
	}, nil
}

type stubDirectory struct {
	limit int
}

func (d *stubDirectory) List(context.Context, authz.Caller) ([]models.WorkerStatus, error) {
	return []models.WorkerStatus{{Worker: models.Worker{ID: "w1", WorkerCode: "wrk001", Name: "Amit Singh"}, HealthStatus: models.HealthSafe}}, nil
}

func (d *stubDirectory) Me(context.Context, authz.Caller) (models.Worker, error) {
	return models.Worker{}, apperr.NotFound("Worker profile not found")
}

func (d *stubDirectory) Authorize(_ context.Context, _ authz.Caller, _ authz.Action, id string) (models.Worker, error) {
	if id != "w1" {
		return models.Worker{}, apperr.NotFound("Worker not found")
	}
	return models.Worker{ID: "w1"}, nil
}

func (d *stubDirectory) Readings(_ context.Context, _ authz.Caller, _ string, limit int) ([]models.SensorReading, error) {
	d.limit = limit
	return []models.SensorReading{}, nil
}

func (d *stubDirectory) SetActive(_ context.Context, _ authz.Caller, id string, active bool) (models.Worker, error) {
	return models.Worker{ID: id, IsActive: active}, nil
}

func (d *stubDirectory) Supervisors(context.Context) ([]models.Supervisor, error) {
	return []models.Supervisor{{ID: "s1", SupervisorCode: "sup001", Name: "Rajesh Kumar", Department: "Construction"}}, nil
}

type stubExporter struct{}

func (stubExporter) ExportReadings(_ context.Context, _ authz.Caller, id string) (service.ExportResult, error) {
	return service.ExportResult{URL: "https://reports.example/x.xlsx", Key: "readings/" + id + "/x.xlsx", Rows: 3}, nil
}

type fixture struct {
	engine      *gin.Engine
	provisioner *stubProvisioner
	ingestor    *stubIngestor
	directory   *stubDirectory
	auth        *stubAuth
	checks      map[string]HealthCheck
}

func newFixture() *fixture {
	return newFixtureWithHub(nil)
}

func newFixtureWithHub(hub Subscriber) *fixture {
	fx := &fixture{
		provisioner: &stubProvisioner{},
		ingestor:    &stubIngestor{},
		directory:   &stubDirectory{},
		auth: &stubAuth{tokens: map[string]string{
			"admin-token":  "p-admin",
			"sup-token":    "p-sup",
			"worker-token": "p-worker",
		}},
		checks: map[string]HealthCheck{},
	}
	gate := stubGate{"p-admin": models.RoleAdmin, "p-sup": models.RoleSupervisor, "p-worker": models.RoleWorker}

	cfg := &config.AppConfig{Environment: "test"}
	cfg.Passwords.Client = config.PasswordPolicy{MinLength: 8, RequireUpper: true, RequireLower: true, RequireDigit: true}

	set := NewHandlerSet(Deps{
		Config:       cfg,
		Log:          zerolog.Nop(),
		Auth:         fx.auth,
		Gate:         gate,
		Provisioning: fx.provisioner,
		Ingestion:    fx.ingestor,
		Seeding:      stubSeeder{},
		Workers:      fx.directory,
		Reports:      stubExporter{},
		Checks:       fx.checks,
		Hub:          hub,
	})

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.Recovery(zerolog.Nop()), middleware.CORS(nil))
	set.Register(r.Group("/api"))
	fx.engine = r
	return fx
}

func (fx *fixture) do(method, path, token, contentType string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)
	return w
}

func (fx *fixture) doJSON(method, path, token string, body any) *httptest.ResponseRecorder {
	var raw []byte
	if body != nil {
		raw, _ = json.Marshal(body)
	}
	return fx.do(method, path, token, "application/json", raw)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

var registration = map[string]any{
	"worker_id": "WRK100",
	"name":      "Ravi Nair",
	"age":       31,
	"device_id": "ESP32-100",
	"password":  "Helmet2024",
}

func TestRegisterWorkerAuthFailures(t *testing.T) {
	fx := newFixture()

	w := fx.doJSON(http.MethodPost, "/api/v1/register-worker", "", registration)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Missing authorization header", decode(t, w)["error"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"), "errors carry CORS headers")

	w = fx.doJSON(http.MethodPost, "/api/v1/register-worker", "bogus", registration)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid authentication", decode(t, w)["error"])

	w = fx.doJSON(http.MethodPost, "/api/v1/register-worker", "worker-token", registration)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden: Admin or Supervisor access required", decode(t, w)["error"])

	assert.Empty(t, fx.provisioner.in.WorkerID, "service is never reached")
}

func TestRegisterWorkerSuccess(t *testing.T) {
	fx := newFixture()

	w := fx.doJSON(http.MethodPost, "/api/v1/register-worker", "sup-token", registration)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "Worker Ravi Nair registered successfully", body["message"])
	assert.Equal(t, "WRK100", body["worker_id"])

	assert.Equal(t, models.RoleSupervisor, fx.provisioner.got.Role)
	assert.Equal(t, 31, fx.provisioner.in.Age)
	require.NotNil(t, fx.provisioner.in.DeviceID)
	assert.Equal(t, "ESP32-100", *fx.provisioner.in.DeviceID)
	assert.Nil(t, fx.provisioner.in.SupervisorID)
}

func TestRegisterWorkerErrorBodies(t *testing.T) {
	fx := newFixture()

	w := fx.do(http.MethodPost, "/api/v1/register-worker", "admin-token", "application/json", []byte(`{"age":"thirty"}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decode(t, w)["error"])

	fx.provisioner.err = apperr.Validation("Name is required", map[string]string{"name": "Name is required", "age": "Age must be 18 or older"})
	w = fx.doJSON(http.MethodPost, "/api/v1/register-worker", "admin-token", registration)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	body := decode(t, w)
	assert.Equal(t, "Name is required", body["error"])
	assert.Equal(t, map[string]any{"name": "Name is required", "age": "Age must be 18 or older"}, body["fields"])

	fx.provisioner.err = apperr.Internal("Failed to create worker record", errors.New("db down"))
	w = fx.doJSON(http.MethodPost, "/api/v1/register-worker", "admin-token", registration)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, map[string]any{"error": "Failed to create worker record"}, decode(t, w))
}

func TestSubmitSensorDataJSON(t *testing.T) {
	fx := newFixture()

	w := fx.do(http.MethodPost, "/api/v1/submit-sensor-data", "", "application/json; charset=utf-8",
		[]byte(`{"device_id":"ESP32-001","heart_rate":82,"fall_detected":false}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, map[string]any{"success": true, "message": "Sensor data recorded"}, decode(t, w))

	require.Len(t, fx.ingestor.got, 1)
	got := fx.ingestor.got[0]
	assert.Equal(t, "ESP32-001", got.DeviceID)
	require.NotNil(t, got.HeartRate)
	assert.Equal(t, 82.0, *got.HeartRate)
	assert.Nil(t, got.BodyTemperature)
}

func TestSubmitSensorDataCBORAndHeaderFallback(t *testing.T) {
	fx := newFixture()

	temp := 37.2
	body, err := ingest.EncodeCBOR(ingest.Payload{BodyTemperature: &temp})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/submit-sensor-data", bytes.NewReader(body))
	req.Header.Set("Content-Type", ingest.ContentTypeCBOR)
	req.Header.Set("X-Device-Id", "ESP32-007")
	w := httptest.NewRecorder()
	fx.engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, fx.ingestor.got, 1)
	assert.Equal(t, "ESP32-007", fx.ingestor.got[0].DeviceID)
	assert.Equal(t, 37.2, *fx.ingestor.got[0].BodyTemperature)
}

func TestSubmitSensorDataRejections(t *testing.T) {
	fx := newFixture()

	w := fx.do(http.MethodPost, "/api/v1/submit-sensor-data", "", "text/plain", []byte("hr=80"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Unsupported content type", decode(t, w)["error"])

	w = fx.do(http.MethodPost, "/api/v1/submit-sensor-data", "", "application/json", []byte("{"))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid request body", decode(t, w)["error"])

	big := `{"device_id":"` + strings.Repeat("x", maxSensorBody) + `"}`
	w = fx.do(http.MethodPost, "/api/v1/submit-sensor-data", "", "application/json", []byte(big))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, fx.ingestor.got)

	fx.ingestor.err = apperr.DeviceNotRegistered()
	w = fx.doJSON(http.MethodPost, "/api/v1/submit-sensor-data", "", map[string]any{"device_id": "ESP32-999"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Invalid or unregistered device", decode(t, w)["error"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestSeedDemoData(t *testing.T) {
	fx := newFixture()

	w := fx.doJSON(http.MethodPost, "/api/v1/seed-demo-data", "sup-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "Forbidden: Admin access required", decode(t, w)["error"])

	w = fx.doJSON(http.MethodPost, "/api/v1/seed-demo-data", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	var body seedResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "Demo data seeded successfully!", body.Message)
	require.Len(t, body.Credentials.Supervisors, 1)
	assert.Equal(t, "sup001", body.Credentials.Supervisors[0].UserID)
	assert.Contains(t, w.Body.String(), `"userId":"wrk001"`)
	assert.Len(t, body.Details, 1)
}

func TestPreflightShortCircuits(t *testing.T) {
	fx := newFixture()

	w := fx.do(http.MethodOptions, "/api/v1/register-worker", "", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "authorization")
}

func TestLoginLogoutMe(t *testing.T) {
	fx := newFixture()

	w := fx.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"user_id": "wrk001", "password": "Passw0rdOk"})
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "tok", body["access_token"])
	assert.Equal(t, map[string]any{"id": "p1", "login": "wrk001@safetysystem.local", "role": "worker"}, body["user"])
	assert.Equal(t, "wrk001", fx.auth.loginInput.Login)

	w = fx.doJSON(http.MethodPost, "/api/v1/auth/login", "", map[string]string{"login": "wrk001", "password": "bad"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = fx.doJSON(http.MethodPost, "/api/v1/auth/logout", "sup-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"sess-p-sup"}, fx.auth.loggedOut)

	w = fx.doJSON(http.MethodGet, "/api/v1/auth/me", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "p-admin", decode(t, w)["id"])
}

func TestWorkerDirectoryRoutes(t *testing.T) {
	fx := newFixture()

	w := fx.doJSON(http.MethodGet, "/api/v1/workers", "worker-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = fx.doJSON(http.MethodGet, "/api/v1/workers", "sup-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	workers := decode(t, w)["workers"].([]any)
	require.Len(t, workers, 1)
	assert.Equal(t, "wrk001", workers[0].(map[string]any)["worker_id"])
	assert.Equal(t, "safe", workers[0].(map[string]any)["health_status"])

	w = fx.doJSON(http.MethodGet, "/api/v1/workers/me", "admin-token", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.doJSON(http.MethodGet, "/api/v1/workers/w1/readings?limit=abc", "worker-token", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.doJSON(http.MethodGet, "/api/v1/workers/w1/readings?limit=25", "worker-token", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, fx.directory.limit)

	w = fx.doJSON(http.MethodPatch, "/api/v1/workers/w1/active", "sup-token", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = fx.doJSON(http.MethodPatch, "/api/v1/workers/w1/active", "sup-token", map[string]any{"is_active": false})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decode(t, w)["is_active"])

	w = fx.doJSON(http.MethodPost, "/api/v1/workers/w1/readings/export", "sup-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), decode(t, w)["rows"])

	w = fx.doJSON(http.MethodGet, "/api/v1/supervisors", "sup-token", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = fx.doJSON(http.MethodGet, "/api/v1/supervisors", "admin-token", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"supervisor_id":"sup001"`)
}

func TestStreamRejectsUnknownWorkerBeforeUpgrade(t *testing.T) {
	fx := newFixture()

	w := fx.do(http.MethodGet, "/api/v1/workers/w9/stream?access_token=worker-token", "", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = fx.do(http.MethodGet, "/api/v1/workers/w1/stream", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestStreamRelaysReadyThenWorkerEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	hub := realtime.NewHub(client, "sensor:worker:", zerolog.Nop())

	srv := httptest.NewServer(newFixtureWithHub(hub).engine)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/workers/w1/stream?access_token=worker-token"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	// The subscription is confirmed before the upgrade, so anything published
	// after ready arrives is relayed.
	var ev realtime.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, realtime.EventReady, ev.Type)
	assert.Equal(t, "w1", ev.WorkerID)

	require.NoError(t, hub.Publish(ctx, realtime.Event{
		Type:     realtime.EventReading,
		WorkerID: "w1",
		Reading:  &models.SensorReading{ID: "r1", WorkerID: "w1"},
	}))
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, realtime.EventReading, ev.Type)
	require.NotNil(t, ev.Reading)
	assert.Equal(t, "r1", ev.Reading.ID)
}

func TestSendEventReportsClosedConnection(t *testing.T) {
	errs := make(chan error, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			errs <- err
			return
		}
		conn.CloseNow()
		errs <- sendEvent(context.Background(), conn, realtime.Event{Type: realtime.EventReady, WorkerID: "w1"})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	select {
	case err := <-errs:
		assert.Error(t, err)
	case <-ctx.Done():
		t.Fatal("handler never finished")
	}
}

func TestHealthAndPasswordPolicy(t *testing.T) {
	fx := newFixture()

	fx.checks["postgres"] = func(context.Context) error { return nil }
	w := fx.doJSON(http.MethodGet, "/api/healthz", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])

	fx.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	w = fx.doJSON(http.MethodGet, "/api/healthz", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	body := decode(t, w)
	assert.Equal(t, "degraded", body["status"])
	assert.Equal(t, map[string]any{"postgres": "ok", "redis": "error"}, body["dependencies"])

	w = fx.doJSON(http.MethodGet, "/api/v1/password-policy", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(8), decode(t, w)["min_length"])
}

func TestAcceptOptions(t *testing.T) {
	assert.True(t, acceptOptions(nil).InsecureSkipVerify)
	assert.True(t, acceptOptions([]string{"*"}).InsecureSkipVerify)

	opts := acceptOptions([]string{"https://ops.example.com", " dash.example.com "})
	assert.False(t, opts.InsecureSkipVerify)
	assert.Equal(t, []string{"ops.example.com", "dash.example.com"}, opts.OriginPatterns)
}
