package models

import "time"

type HealthStatus string

const (
	HealthSafe      HealthStatus = "safe"
	HealthWarning   HealthStatus = "warning"
	HealthEmergency HealthStatus = "emergency"
)

type GasStatus string

const (
	GasSafe    GasStatus = "safe"
	GasWarning GasStatus = "warning"
	GasDanger  GasStatus = "danger"
)

type MotionStatus string

const (
	MotionNormal       MotionStatus = "normal"
	MotionFallDetected MotionStatus = "fall_detected"
)

type SensorReading struct {
	ID              string       `json:"id"`
	WorkerID        string       `json:"worker_id"`
	HeartRate       *int         `json:"heart_rate"`
	BodyTemperature *float64     `json:"body_temperature"`
	FallDetected    bool         `json:"fall_detected"`
	GasLevel        *float64     `json:"gas_level"`
	GasStatus       GasStatus    `json:"gas_status"`
	MotionStatus    MotionStatus `json:"motion_status"`
	HealthStatus    HealthStatus `json:"health_status"`
	RecordedAt      time.Time    `json:"recorded_at"`
}
