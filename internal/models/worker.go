package models

import "time"

type Supervisor struct {
	ID             string
	PrincipalID    string
	SupervisorCode string
	Name           string
	Department     string
	CreatedAt      time.Time
}

type Worker struct {
	ID           string
	PrincipalID  string
	WorkerCode   string
	Name         string
	Age          int
	HealthIssues string
	SupervisorID *string
	DeviceID     *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// WorkerStatus is a Worker joined with its newest reading, if any.
type WorkerStatus struct {
	Worker
	HealthStatus    HealthStatus
	HeartRate       *int
	BodyTemperature *float64
	LastReadingAt   *time.Time
}
