package models

import "time"

type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSupervisor Role = "supervisor"
	RoleWorker     Role = "worker"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleSupervisor, RoleWorker:
		return true
	}
	return false
}

// Principal is a login identity. Profiles hang off it by PrincipalID.
type Principal struct {
	ID           string
	Login        string
	PasswordHash []byte
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type RoleGrant struct {
	PrincipalID string
	Role        Role
	CreatedAt   time.Time
}

type Session struct {
	ID          string
	PrincipalID string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
	LastSeenAt  time.Time
	ExpiresAt   time.Time
}
