package authz

import (
	"github.com/cedar-policy/cedar-go"

	"safetywatch/internal/models"
)

const (
	typeUser   = cedar.EntityType("Safety::User")
	typeDevice = cedar.EntityType("Safety::Device")
	typeWorker = cedar.EntityType("Safety::Worker")
	typeSystem = cedar.EntityType("Safety::System")
	typeAction = cedar.EntityType("Safety::Action")
)

// Caller is an authenticated user principal resolved by the gate.
type Caller struct {
	PrincipalID  string
	Role         models.Role
	SupervisorID *string
}

func (c Caller) IsAdmin() bool      { return c.Role == models.RoleAdmin }
func (c Caller) IsSupervisor() bool { return c.Role == models.RoleSupervisor }

func userEntity(c Caller) cedar.Entity {
	attrs := cedar.RecordMap{
		"uid":  cedar.String(c.PrincipalID),
		"role": cedar.String(string(c.Role)),
	}
	if c.SupervisorID != nil {
		attrs["supervisor_id"] = cedar.String(*c.SupervisorID)
	}
	return cedar.Entity{
		UID:        cedar.NewEntityUID(typeUser, cedar.String(c.PrincipalID)),
		Parents:    cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(attrs),
	}
}

func deviceEntity(deviceID string, active bool) cedar.Entity {
	return cedar.Entity{
		UID:     cedar.NewEntityUID(typeDevice, cedar.String(deviceID)),
		Parents: cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{
			"device_id": cedar.String(deviceID),
			"active":    cedar.Boolean(active),
		}),
	}
}

func workerEntity(w models.Worker) cedar.Entity {
	attrs := cedar.RecordMap{
		"principal_id": cedar.String(w.PrincipalID),
		"active":       cedar.Boolean(w.IsActive),
	}
	if w.SupervisorID != nil {
		attrs["supervisor_id"] = cedar.String(*w.SupervisorID)
	}
	if w.DeviceID != nil {
		attrs["device_id"] = cedar.String(*w.DeviceID)
	}
	return cedar.Entity{
		UID:        cedar.NewEntityUID(typeWorker, cedar.String(w.ID)),
		Parents:    cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(attrs),
	}
}

func systemEntity() cedar.Entity {
	return cedar.Entity{
		UID:        cedar.NewEntityUID(typeSystem, cedar.String("dashboard")),
		Parents:    cedar.NewEntityUIDSet(),
		Attributes: cedar.NewRecord(cedar.RecordMap{}),
	}
}

func actionUID(a Action) cedar.EntityUID {
	return cedar.NewEntityUID(typeAction, cedar.String(string(a)))
}
