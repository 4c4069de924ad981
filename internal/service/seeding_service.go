package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/config"
	"safetywatch/internal/ids"
	"safetywatch/internal/models"
	"safetywatch/internal/repository"
	"safetywatch/internal/security"
	"safetywatch/internal/validate"
)

const (
	seedPasswordLength = 16
	seedHistoryHours   = 24
)

type RoleWriter interface {
	Upsert(ctx context.Context, principalID string, role models.Role) error
}

type SupervisorWriter interface {
	Upsert(ctx context.Context, s models.Supervisor) (models.Supervisor, error)
}

type WorkerWriter interface {
	Upsert(ctx context.Context, w models.Worker) (models.Worker, error)
}

type ReadingWriter interface {
	CountByWorker(ctx context.Context, workerID string) (int, error)
	InsertBatch(ctx context.Context, readings []models.SensorReading) (int64, error)
}

type demoSupervisor struct {
	Code       string
	Name       string
	Department string
}

type demoWorker struct {
	Code         string
	Name         string
	Age          int
	HealthIssues string
	DeviceID     string
	Supervisor   string
}

var demoSupervisors = []demoSupervisor{
	{Code: "sup001", Name: "Rajesh Kumar", Department: "Assembly Line A"},
	{Code: "sup002", Name: "Priya Sharma", Department: "Welding Section"},
}

var demoWorkers = []demoWorker{
	{Code: "wrk001", Name: "Amit Singh", Age: 28, HealthIssues: "none", DeviceID: "ESP32-001", Supervisor: "sup001"},
	{Code: "wrk002", Name: "Suresh Patel", Age: 35, HealthIssues: "mild asthma", DeviceID: "ESP32-002", Supervisor: "sup001"},
	{Code: "wrk003", Name: "Vikram Yadav", Age: 42, HealthIssues: "high BP", DeviceID: "ESP32-003", Supervisor: "sup002"},
	{Code: "wrk004", Name: "Deepak Verma", Age: 25, HealthIssues: "none", DeviceID: "ESP32-004", Supervisor: "sup002"},
}

// Credential is a one-time plaintext login handed back by seeding.
type Credential struct {
	UserID   string `json:"userId"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type SeedResult struct {
	Supervisors []Credential
	Workers     []Credential
	Details     []string
}

type SeedingService struct {
	identity    IdentityProvider
	roles       RoleWriter
	supervisors SupervisorWriter
	workers     WorkerWriter
	readings    ReadingWriter
	policy      config.PasswordPolicy
	log         zerolog.Logger
	now         func() time.Time
	rand        *rand.Rand
}

func NewSeedingService(
	identity IdentityProvider,
	roles RoleWriter,
	supervisors SupervisorWriter,
	workers WorkerWriter,
	readings ReadingWriter,
	cfg *config.AppConfig,
	log zerolog.Logger,
) *SeedingService {
	return &SeedingService{
		identity:    identity,
		roles:       roles,
		supervisors: supervisors,
		workers:     workers,
		readings:    readings,
		policy:      cfg.Passwords.Server,
		log:         log,
		now:         time.Now,
		rand:        rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x5eed)),
	}
}

// Seed provisions the demo roster. Running it again rotates every demo
// password and refreshes the profile rows without duplicating them.
func (s *SeedingService) Seed(ctx context.Context) (SeedResult, error) {
	var result SeedResult
	supervisorIDs := make(map[string]string, len(demoSupervisors))

	for _, sup := range demoSupervisors {
		cred, principal, err := s.ensureIdentity(ctx, sup.Code, sup.Name)
		if err != nil {
			return SeedResult{}, err
		}
		if err := s.roles.Upsert(ctx, principal.ID, models.RoleSupervisor); err != nil {
			return SeedResult{}, apperr.Internal("Failed to assign role", err)
		}
		row, err := s.supervisors.Upsert(ctx, models.Supervisor{
			ID:             ids.New(),
			PrincipalID:    principal.ID,
			SupervisorCode: sup.Code,
			Name:           sup.Name,
			Department:     sup.Department,
		})
		if err != nil {
			return SeedResult{}, apperr.Internal("Failed to create supervisor record", err)
		}
		supervisorIDs[sup.Code] = row.ID
		result.Supervisors = append(result.Supervisors, cred)
		result.Details = append(result.Details, fmt.Sprintf("Supervisor ready: %s (%s)", sup.Code, sup.Department))
	}

	var seeded []models.Worker
	for _, wrk := range demoWorkers {
		cred, principal, err := s.ensureIdentity(ctx, wrk.Code, wrk.Name)
		if err != nil {
			return SeedResult{}, err
		}
		if err := s.roles.Upsert(ctx, principal.ID, models.RoleWorker); err != nil {
			return SeedResult{}, apperr.Internal("Failed to assign role", err)
		}

		var supervisorID *string
		if id, ok := supervisorIDs[wrk.Supervisor]; ok {
			supervisorID = &id
		}
		deviceID := wrk.DeviceID
		row, err := s.workers.Upsert(ctx, models.Worker{
			ID:           ids.New(),
			PrincipalID:  principal.ID,
			WorkerCode:   wrk.Code,
			Name:         wrk.Name,
			Age:          wrk.Age,
			HealthIssues: wrk.HealthIssues,
			SupervisorID: supervisorID,
			DeviceID:     &deviceID,
			IsActive:     true,
		})
		if err != nil {
			return SeedResult{}, apperr.Internal("Failed to create worker record", err)
		}
		seeded = append(seeded, row)
		result.Workers = append(result.Workers, cred)
		result.Details = append(result.Details, fmt.Sprintf("Worker ready: %s -> %s", wrk.Code, wrk.Supervisor))
	}

	inserted, err := s.seedHistory(ctx, seeded)
	if err != nil {
		return SeedResult{}, apperr.Internal("Failed to add sample sensor data", err)
	}
	result.Details = append(result.Details, fmt.Sprintf("Sample sensor data added for %d workers", inserted))

	s.log.Info().
		Int("supervisors", len(result.Supervisors)).
		Int("workers", len(result.Workers)).
		Int("history_seeded", inserted).
		Msg("demo data seeded")
	return result, nil
}

// ensureIdentity creates the login for code or, when it already exists,
// replaces its password so the returned credential works.
func (s *SeedingService) ensureIdentity(ctx context.Context, code, name string) (Credential, models.Principal, error) {
	password, err := s.newPassword()
	if err != nil {
		return Credential{}, models.Principal{}, apperr.Internal("Failed to generate password", err)
	}
	login := s.identity.LoginFor(code)

	principal, err := s.identity.CreatePrincipal(ctx, login, password)
	if errors.Is(err, repository.ErrLoginTaken) {
		principal, err = s.identity.FindPrincipal(ctx, login)
		if err == nil {
			err = s.identity.SetPassword(ctx, principal.ID, password)
		}
	}
	if err != nil {
		return Credential{}, models.Principal{}, apperr.Internal(fmt.Sprintf("Failed to provision %s", code), err)
	}
	return Credential{UserID: code, Password: password, Name: name}, principal, nil
}

func (s *SeedingService) newPassword() (string, error) {
	length := max(seedPasswordLength, s.policy.MinLength)
	for range 8 {
		pw, err := security.RandomPassword(length)
		if err != nil {
			return "", err
		}
		if validate.Password(pw, s.policy) == "" {
			return pw, nil
		}
	}
	return "", errors.New("could not generate a password satisfying the policy")
}

// seedHistory bulk inserts synthetic readings for workers that have none and
// returns how many workers received history.
func (s *SeedingService) seedHistory(ctx context.Context, workers []models.Worker) (int, error) {
	now := s.now().UTC().Truncate(time.Second)
	var batch []models.SensorReading
	seeded := 0
	for _, w := range workers {
		count, err := s.readings.CountByWorker(ctx, w.ID)
		if err != nil {
			return 0, err
		}
		if count > 0 {
			continue
		}
		seeded++
		for i := 0; i < seedHistoryHours; i++ {
			batch = append(batch, s.syntheticReading(w.ID, now.Add(-time.Duration(i)*time.Hour)))
		}
	}
	if len(batch) == 0 {
		return 0, nil
	}
	if _, err := s.readings.InsertBatch(ctx, batch); err != nil {
		return 0, err
	}
	return seeded, nil
}

func (s *SeedingService) syntheticReading(workerID string, at time.Time) models.SensorReading {
	heartRate := 70 + s.rand.IntN(30)
	temperature := 36.5 + s.rand.Float64()*1.5
	gas := s.rand.Float64() * 50

	gasStatus := models.GasSafe
	if s.rand.Float64() >= 0.9 {
		gasStatus = models.GasWarning
	}
	motion := models.MotionNormal
	if s.rand.Float64() >= 0.95 {
		motion = models.MotionFallDetected
	}
	health := models.HealthSafe
	if s.rand.Float64() >= 0.7 {
		health = models.HealthWarning
		if s.rand.Float64() >= 0.7 {
			health = models.HealthEmergency
		}
	}

	return models.SensorReading{
		ID:              ids.New(),
		WorkerID:        workerID,
		HeartRate:       &heartRate,
		BodyTemperature: &temperature,
		FallDetected:    s.rand.Float64() < 0.02,
		GasLevel:        &gas,
		GasStatus:       gasStatus,
		MotionStatus:    motion,
		HealthStatus:    health,
		RecordedAt:      at,
	}
}

// EnsureAdmin makes sure the bootstrap admin login exists with the given
// password and role. It runs at startup before any request is served.
func (s *SeedingService) EnsureAdmin(ctx context.Context, login, password string) error {
	if msg := validate.Password(password, s.policy); msg != "" {
		return fmt.Errorf("bootstrap admin password: %s", msg)
	}
	if !strings.Contains(login, "@") {
		login = s.identity.LoginFor(login)
	}

	principal, err := s.identity.CreatePrincipal(ctx, login, password)
	if errors.Is(err, repository.ErrLoginTaken) {
		principal, err = s.identity.FindPrincipal(ctx, login)
		if err == nil {
			err = s.identity.SetPassword(ctx, principal.ID, password)
		}
	}
	if err != nil {
		return fmt.Errorf("ensure admin %s: %w", login, err)
	}
	if err := s.roles.Upsert(ctx, principal.ID, models.RoleAdmin); err != nil {
		return fmt.Errorf("grant admin role: %w", err)
	}
	s.log.Info().Str("principal_id", principal.ID).Str("login", login).Msg("bootstrap admin ensured")
	return nil
}
