package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/config"
	"safetywatch/internal/middleware"
	"safetywatch/internal/models"
	"safetywatch/internal/realtime"
	"safetywatch/internal/service"
	"safetywatch/internal/validate"
)

type Authenticator interface {
	middleware.TokenVerifier
	Login(ctx context.Context, input service.LoginInput) (service.AuthResult, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, principalID string) (service.Profile, error)
}

type Provisioner interface {
	Register(ctx context.Context, caller authz.Caller, input service.RegisterInput) (service.RegisterResult, error)
}

type Ingestor interface {
	Submit(ctx context.Context, in validate.Sensor) (models.SensorReading, error)
}

type Seeder interface {
	Seed(ctx context.Context) (service.SeedResult, error)
}

type Directory interface {
	List(ctx context.Context, caller authz.Caller) ([]models.WorkerStatus, error)
	Me(ctx context.Context, caller authz.Caller) (models.Worker, error)
	Authorize(ctx context.Context, caller authz.Caller, action authz.Action, workerID string) (models.Worker, error)
	Readings(ctx context.Context, caller authz.Caller, workerID string, limit int) ([]models.SensorReading, error)
	SetActive(ctx context.Context, caller authz.Caller, workerID string, active bool) (models.Worker, error)
	Supervisors(ctx context.Context) ([]models.Supervisor, error)
}

type Exporter interface {
	ExportReadings(ctx context.Context, caller authz.Caller, workerID string) (service.ExportResult, error)
}

type Subscriber interface {
	Subscribe(ctx context.Context, workerID string) (*realtime.Subscription, error)
}

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Config       *config.AppConfig
	Log          zerolog.Logger
	Auth         Authenticator
	Gate         middleware.UserGate
	Provisioning Provisioner
	Ingestion    Ingestor
	Seeding      Seeder
	Workers      Directory
	Reports      Exporter
	Hub          Subscriber
	Checks       map[string]HealthCheck
}

type HandlerSet struct {
	log          zerolog.Logger
	cfg          *config.AppConfig
	auth         Authenticator
	gate         middleware.UserGate
	provisioning Provisioner
	ingestion    Ingestor
	seeding      Seeder
	workers      Directory
	reports      Exporter
	hub          Subscriber
	checks       map[string]HealthCheck
}

func NewHandlerSet(deps Deps) HandlerSet {
	return HandlerSet{
		log:          deps.Log,
		cfg:          deps.Config,
		auth:         deps.Auth,
		gate:         deps.Gate,
		provisioning: deps.Provisioning,
		ingestion:    deps.Ingestion,
		seeding:      deps.Seeding,
		workers:      deps.Workers,
		reports:      deps.Reports,
		hub:          deps.Hub,
		checks:       deps.Checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.GET("/password-policy", h.PasswordPolicy)
	v1.POST("/submit-sensor-data", h.SubmitSensorData)

	authed := middleware.Auth(h.auth)

	v1.POST("/register-worker", authed, middleware.Authorize(h.gate, authz.ActionRegisterWorker), h.RegisterWorker)
	v1.POST("/seed-demo-data", authed, middleware.Authorize(h.gate, authz.ActionSeedDemo), h.SeedDemoData)

	auth := v1.Group("/auth")
	{
		auth.POST("/login", h.Login)
		auth.POST("/logout", authed, h.Logout)
		auth.GET("/me", authed, h.Me)
	}

	workers := v1.Group("/workers", authed)
	{
		workers.GET("", middleware.Authorize(h.gate, authz.ActionListWorkers), h.ListWorkers)

		// Per-worker actions resolve the caller first; the worker itself
		// is checked once it has been loaded.
		self := middleware.Authorize(h.gate, authz.ActionViewSelf)
		workers.GET("/me", self, h.MyWorker)
		workers.GET("/:id/readings", self, h.ListReadings)
		workers.POST("/:id/readings/export", self, h.ExportReadings)
		workers.PATCH("/:id/active", self, h.SetWorkerActive)
	}

	v1.GET("/workers/:id/stream",
		middleware.StreamAuth(h.auth),
		middleware.Authorize(h.gate, authz.ActionViewSelf),
		h.StreamWorker,
	)

	v1.GET("/supervisors", authed, middleware.Authorize(h.gate, authz.ActionListSupervisors), h.ListSupervisors)
}

// caller returns the principal resolved by Authorize. When it is missing the
// response has already been written.
func (h HandlerSet) caller(c *gin.Context) (authz.Caller, bool) {
	caller, ok := middleware.CallerFrom(c)
	if !ok {
		middleware.AbortWithError(c, apperr.Internal("route registered without authorization", nil))
	}
	return caller, ok
}
