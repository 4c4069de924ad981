package authz

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"safetywatch/internal/apperr"
	"safetywatch/internal/models"
	"safetywatch/internal/repository"
)

type RoleSource interface {
	GetRole(ctx context.Context, principalID string) (models.Role, error)
}

type SupervisorSource interface {
	GetByPrincipal(ctx context.Context, principalID string) (models.Supervisor, error)
}

type DeviceSource interface {
	GetByDeviceID(ctx context.Context, deviceID string) (models.Worker, error)
}

// Gate resolves who is calling and whether they may perform an action. Users
// are identified by a verified principal id; devices only by the identifier
// they present.
type Gate struct {
	authorizer  *Authorizer
	roles       RoleSource
	supervisors SupervisorSource
	devices     DeviceSource
	log         zerolog.Logger
}

func NewGate(authorizer *Authorizer, roles RoleSource, supervisors SupervisorSource, devices DeviceSource, log zerolog.Logger) *Gate {
	return &Gate{
		authorizer:  authorizer,
		roles:       roles,
		supervisors: supervisors,
		devices:     devices,
		log:         log,
	}
}

// AuthorizeUser checks a collection-level action for a verified principal
// and returns the resolved caller. Supervisors are bound to their profile row
// once the role check passes.
func (g *Gate) AuthorizeUser(ctx context.Context, principalID string, action Action) (Caller, error) {
	role, err := g.roles.GetRole(ctx, principalID)
	if err != nil {
		if errors.Is(err, repository.ErrRoleNotFound) {
			return Caller{}, apperr.Forbidden(action.DenyMessage())
		}
		return Caller{}, apperr.InternalLookupFailure("Failed to verify user role", err)
	}

	caller := Caller{PrincipalID: principalID, Role: role}
	decision := g.authorizer.authorize(ctx, userEntity(caller), action, systemEntity())
	if !decision.Allowed {
		return Caller{}, apperr.Forbidden(action.DenyMessage())
	}

	if role == models.RoleSupervisor {
		sup, err := g.supervisors.GetByPrincipal(ctx, principalID)
		if err != nil {
			g.log.Error().Err(err).Str("principal_id", principalID).Msg("supervisor role without profile row")
			return Caller{}, apperr.InternalLookupFailure("Could not find supervisor record", err)
		}
		caller.SupervisorID = &sup.ID
	}
	return caller, nil
}

// AuthorizeWorker checks an action against one worker's profile.
func (g *Gate) AuthorizeWorker(ctx context.Context, caller Caller, action Action, worker models.Worker) error {
	decision := g.authorizer.authorize(ctx, userEntity(caller), action, workerEntity(worker))
	if !decision.Allowed {
		return apperr.Forbidden(action.DenyMessage())
	}
	return nil
}

// AuthorizeDevice resolves the worker that owns deviceID and checks that it
// may submit telemetry.
func (g *Gate) AuthorizeDevice(ctx context.Context, deviceID string) (models.Worker, error) {
	worker, err := g.devices.GetByDeviceID(ctx, deviceID)
	if err != nil {
		if errors.Is(err, repository.ErrWorkerNotFound) {
			return models.Worker{}, apperr.DeviceNotRegistered()
		}
		return models.Worker{}, apperr.Internal("Failed to verify device", err)
	}

	decision := g.authorizer.authorize(ctx, deviceEntity(deviceID, worker.IsActive), ActionSubmitSensor, workerEntity(worker))
	if !decision.Allowed {
		if !worker.IsActive {
			return models.Worker{}, apperr.DeviceInactive()
		}
		return models.Worker{}, apperr.Forbidden(ActionSubmitSensor.DenyMessage())
	}
	return worker, nil
}
