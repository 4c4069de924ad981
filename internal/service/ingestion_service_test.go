package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/models"
	"safetywatch/internal/queue"
	"safetywatch/internal/realtime"
	"safetywatch/internal/validate"
)

func f64(v float64) *float64 { return &v }

type ingestionFixture struct {
	env       *testEnv
	publisher *recordingPublisher
	enqueuer  *recordingEnqueuer
	svc       *IngestionService
}

func newIngestionFixture(t *testing.T) ingestionFixture {
	t.Helper()
	env := newTestEnv()
	env.workers.rows = []models.Worker{
		{ID: "w-active", PrincipalID: "p1", WorkerCode: "wrk001", DeviceID: strPtr("ESP32-001"), IsActive: true},
		{ID: "w-off", PrincipalID: "p2", WorkerCode: "wrk002", DeviceID: strPtr("ESP32-002"), IsActive: false},
	}

	authorizer, err := authz.NewAuthorizer(zerolog.Nop(), nil)
	require.NoError(t, err)
	gate := authz.NewGate(authorizer, env.roles, env.supervisors, env.workers, zerolog.Nop())

	pub := &recordingPublisher{}
	enq := &recordingEnqueuer{}
	return ingestionFixture{
		env:       env,
		publisher: pub,
		enqueuer:  enq,
		svc:       NewIngestionService(gate, env.readings, pub, enq, zerolog.Nop()),
	}
}

func TestSubmitStoresReadingWithDefaults(t *testing.T) {
	fx := newIngestionFixture(t)

	stored, err := fx.svc.Submit(context.Background(), validate.Sensor{
		DeviceID:  "ESP32-001",
		HeartRate: f64(88.4),
	})
	require.NoError(t, err)
	assert.Equal(t, "w-active", stored.WorkerID)
	require.NotNil(t, stored.HeartRate)
	assert.Equal(t, 88, *stored.HeartRate)
	assert.False(t, stored.FallDetected)
	assert.Equal(t, models.GasSafe, stored.GasStatus)
	assert.Equal(t, models.MotionNormal, stored.MotionStatus)
	assert.Equal(t, models.HealthSafe, stored.HealthStatus)

	require.Len(t, fx.publisher.events, 1)
	assert.Equal(t, realtime.EventReading, fx.publisher.events[0].Type)
	assert.Equal(t, "w-active", fx.publisher.events[0].WorkerID)

	require.Len(t, fx.enqueuer.tasks, 1)
	task := fx.enqueuer.tasks[0]
	assert.Equal(t, queue.TaskReading, task.Type)
	var decoded models.SensorReading
	require.NoError(t, json.Unmarshal(task.Payload, &decoded))
	assert.Equal(t, stored.ID, decoded.ID)
}

func TestSubmitRequiresDeviceIDBeforeLookup(t *testing.T) {
	fx := newIngestionFixture(t)

	_, err := fx.svc.Submit(context.Background(), validate.Sensor{DeviceID: "  ", HeartRate: f64(999)})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindValidation, appErr.Kind)
	assert.Equal(t, "device_id is required", appErr.Message)
}

func TestSubmitDeviceTrust(t *testing.T) {
	fx := newIngestionFixture(t)

	// Device checks run before range checks, so bad values from an unknown
	// device still report the device problem.
	_, err := fx.svc.Submit(context.Background(), validate.Sensor{DeviceID: "ESP32-999", HeartRate: f64(999)})
	assert.True(t, apperr.IsCode(err, apperr.CodeDeviceNotRegistered))
	appErr, _ := apperr.As(err)
	assert.Equal(t, 403, appErr.HTTPStatus())

	_, err = fx.svc.Submit(context.Background(), validate.Sensor{DeviceID: "ESP32-002", HeartRate: f64(80)})
	assert.True(t, apperr.IsCode(err, apperr.CodeDeviceInactive))

	assert.Empty(t, fx.env.readings.rows)
	assert.Empty(t, fx.publisher.events)
}

func TestSubmitRejectsOutOfRangeWithoutInsert(t *testing.T) {
	fx := newIngestionFixture(t)

	cases := map[string]validate.Sensor{
		"Invalid heart rate value":       {DeviceID: "ESP32-001", HeartRate: f64(19)},
		"Invalid body temperature value": {DeviceID: "ESP32-001", BodyTemperature: f64(45.1)},
		"Invalid gas level value":        {DeviceID: "ESP32-001", GasLevel: f64(-1)},
		"Invalid health status value":    {DeviceID: "ESP32-001", HealthStatus: strPtr("critical")},
	}
	for want, in := range cases {
		_, err := fx.svc.Submit(context.Background(), in)
		appErr, ok := apperr.As(err)
		require.True(t, ok, want)
		assert.Equal(t, want, appErr.Message)
	}
	assert.Empty(t, fx.env.readings.rows)
}

func TestSubmitBoundaryValuesAccepted(t *testing.T) {
	fx := newIngestionFixture(t)

	_, err := fx.svc.Submit(context.Background(), validate.Sensor{
		DeviceID:        "ESP32-001",
		HeartRate:       f64(250),
		BodyTemperature: f64(30),
		GasLevel:        f64(1000),
	})
	assert.NoError(t, err)
}

func TestSubmitSucceedsWhenPublishFails(t *testing.T) {
	fx := newIngestionFixture(t)
	fx.publisher.err = errors.New("redis down")

	_, err := fx.svc.Submit(context.Background(), validate.Sensor{DeviceID: "ESP32-001"})
	require.NoError(t, err)
	assert.Len(t, fx.env.readings.rows, 1)
	assert.Len(t, fx.enqueuer.tasks, 1)
}

func TestSubmitStoreFailure(t *testing.T) {
	fx := newIngestionFixture(t)
	fx.env.readings.insertErr = errors.New("disk full")

	_, err := fx.svc.Submit(context.Background(), validate.Sensor{DeviceID: "ESP32-001"})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindInternal, appErr.Kind)
	assert.Equal(t, "Failed to record sensor data", appErr.Message)
	assert.Empty(t, fx.publisher.events)
}

func TestRegisteredDeviceRejectsOutOfRangeHeartRate(t *testing.T) {
	fx := newIngestionFixture(t)
	ctx := context.Background()

	res, err := newProvisioning(fx.env).Register(ctx, adminCaller, RegisterInput{
		WorkerID:     "wrk010",
		Name:         "Test User",
		Age:          30,
		HealthIssues: "none",
		DeviceID:     strPtr("DEV-010"),
		Password:     "Abcd1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "wrk010", res.WorkerID)

	w, err := fx.env.workers.GetByDeviceID(ctx, "DEV-010")
	require.NoError(t, err)
	assert.Nil(t, w.SupervisorID)

	_, err = fx.svc.Submit(ctx, validate.Sensor{DeviceID: "DEV-010", HeartRate: f64(260)})
	appErr, ok := apperr.As(err)
	require.True(t, ok)
	assert.Equal(t, 400, appErr.HTTPStatus())
	assert.Equal(t, "Invalid heart rate value", appErr.Message)
	assert.Empty(t, fx.env.readings.rows)
}

func TestSubmitAssignsDistinctReadingIDs(t *testing.T) {
	fx := newIngestionFixture(t)
	ctx := context.Background()

	first, err := fx.svc.Submit(ctx, validate.Sensor{DeviceID: "ESP32-001", HeartRate: f64(80)})
	require.NoError(t, err)
	second, err := fx.svc.Submit(ctx, validate.Sensor{DeviceID: "ESP32-001", HeartRate: f64(81)})
	require.NoError(t, err)

	assert.NotEmpty(t, first.ID)
	assert.NotEmpty(t, second.ID)
	assert.NotEqual(t, first.ID, second.ID)

	require.Len(t, fx.env.readings.rows, 2)
	assert.Equal(t, first.ID, fx.env.readings.rows[0].ID)
	assert.Equal(t, second.ID, fx.env.readings.rows[1].ID)
	require.Len(t, fx.publisher.events, 2)
	assert.Equal(t, second.ID, fx.publisher.events[1].Reading.ID)
}
