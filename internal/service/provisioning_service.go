package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/authz"
	"safetywatch/internal/config"
	"safetywatch/internal/ids"
	"safetywatch/internal/models"
	"safetywatch/internal/repository"
	"safetywatch/internal/validate"
)

type WorkerCreator interface {
	CreateWithRole(ctx context.Context, w models.Worker) error
}

type ProvisioningService struct {
	identity IdentityProvider
	workers  WorkerCreator
	policy   config.PasswordPolicy
	maxAge   int
	log      zerolog.Logger
}

func NewProvisioningService(identity IdentityProvider, workers WorkerCreator, cfg *config.AppConfig, log zerolog.Logger) *ProvisioningService {
	return &ProvisioningService{
		identity: identity,
		workers:  workers,
		policy:   cfg.Passwords.Server,
		maxAge:   cfg.Validation.MaxAge,
		log:      log,
	}
}

type RegisterInput struct {
	WorkerID     string
	Name         string
	Age          int
	HealthIssues string
	SupervisorID *string
	DeviceID     *string
	Password     string
}

type RegisterResult struct {
	WorkerID string
	Message  string
}

// Register creates the principal, its worker role and the worker profile.
// The role grant and profile share a transaction; the principal lives in the
// identity provider and is deleted again if that transaction fails.
func (s *ProvisioningService) Register(ctx context.Context, caller authz.Caller, input RegisterInput) (RegisterResult, error) {
	reg, err := validate.NormalizeRegistration(validate.Registration{
		WorkerID:     input.WorkerID,
		Name:         input.Name,
		Age:          input.Age,
		HealthIssues: input.HealthIssues,
		SupervisorID: input.SupervisorID,
		DeviceID:     input.DeviceID,
		Password:     input.Password,
	}, s.policy, s.maxAge)
	if err != nil {
		return RegisterResult{}, err
	}

	if caller.IsSupervisor() {
		if caller.SupervisorID == nil {
			return RegisterResult{}, apperr.InternalLookupFailure("Could not find supervisor record", nil)
		}
		supervisorID := *caller.SupervisorID
		reg.SupervisorID = &supervisorID
	}

	principal, err := s.identity.CreatePrincipal(ctx, s.identity.LoginFor(reg.WorkerID), reg.Password)
	if err != nil {
		if errors.Is(err, repository.ErrLoginTaken) {
			return RegisterResult{}, apperr.Duplicate("worker_id", "Worker ID already registered", err)
		}
		return RegisterResult{}, apperr.Internal("Failed to create user", err)
	}

	worker := models.Worker{
		ID:           ids.New(),
		PrincipalID:  principal.ID,
		WorkerCode:   reg.WorkerID,
		Name:         reg.Name,
		Age:          reg.Age,
		HealthIssues: reg.HealthIssues,
		SupervisorID: reg.SupervisorID,
		DeviceID:     reg.DeviceID,
		IsActive:     true,
	}
	if err := s.workers.CreateWithRole(ctx, worker); err != nil {
		s.compensate(ctx, principal.ID, reg.WorkerID, err)
		return RegisterResult{}, provisioningError(err)
	}

	s.log.Info().
		Str("worker_code", reg.WorkerID).
		Str("principal_id", principal.ID).
		Str("caller_id", caller.PrincipalID).
		Str("caller_role", string(caller.Role)).
		Msg("worker registered")

	return RegisterResult{
		WorkerID: reg.WorkerID,
		Message:  fmt.Sprintf("Worker %s registered successfully", reg.Name),
	}, nil
}

func (s *ProvisioningService) compensate(ctx context.Context, principalID, workerCode string, cause error) {
	// The request context may already be cancelled; the delete must still run.
	if err := s.identity.DeletePrincipal(context.WithoutCancel(ctx), principalID); err != nil {
		s.log.Error().
			Err(err).
			AnErr("cause", cause).
			Str("principal_id", principalID).
			Str("worker_code", workerCode).
			Msg("orphaned principal requires reconciliation")
		return
	}
	s.log.Warn().Err(cause).Str("principal_id", principalID).Str("worker_code", workerCode).Msg("provisioning rolled back")
}

func provisioningError(err error) error {
	switch {
	case errors.Is(err, repository.ErrWorkerCodeTaken):
		return apperr.Duplicate("worker_id", "Worker ID already registered", err)
	case errors.Is(err, repository.ErrDeviceTaken):
		return apperr.Duplicate("device_id", "Device ID already assigned to another worker", err)
	case errors.Is(err, repository.ErrSupervisorGone):
		return apperr.Validation("Supervisor not found", map[string]string{"supervisor_id": "Supervisor not found"})
	case errors.Is(err, repository.ErrGrantRole):
		return apperr.Internal("Failed to assign role", err)
	default:
		return apperr.Internal("Failed to create worker record", err)
	}
}
