package tasks

import (
	"fmt"

	"safetywatch/internal/models"
	"safetywatch/internal/realtime"
)

// Vital-sign bands used by the dashboard. Values outside the emergency band
// page the supervisor; values outside the warning band are only logged.
const (
	heartWarnLow       = 60
	heartWarnHigh      = 100
	heartEmergencyLow  = 50
	heartEmergencyHigh = 120

	tempWarnLow       = 36.0
	tempWarnHigh      = 37.5
	tempEmergencyLow  = 35.0
	tempEmergencyHigh = 38.5
)

// Evaluate grades a reading. Emergency conditions are checked before warning
// ones so the most severe grade wins.
func Evaluate(r models.SensorReading) realtime.Alert {
	var emergency, warning []string

	if r.HealthStatus == models.HealthEmergency {
		emergency = append(emergency, "device reported emergency")
	} else if r.HealthStatus == models.HealthWarning {
		warning = append(warning, "device reported warning")
	}
	if r.FallDetected || r.MotionStatus == models.MotionFallDetected {
		emergency = append(emergency, "fall detected")
	}
	switch r.GasStatus {
	case models.GasDanger:
		emergency = append(emergency, "dangerous gas level")
	case models.GasWarning:
		warning = append(warning, "elevated gas level")
	}

	if r.HeartRate != nil {
		hr := *r.HeartRate
		switch {
		case hr < heartEmergencyLow || hr > heartEmergencyHigh:
			emergency = append(emergency, fmt.Sprintf("heart rate %d bpm", hr))
		case hr < heartWarnLow || hr > heartWarnHigh:
			warning = append(warning, fmt.Sprintf("heart rate %d bpm", hr))
		}
	}
	if r.BodyTemperature != nil {
		temp := *r.BodyTemperature
		switch {
		case temp < tempEmergencyLow || temp > tempEmergencyHigh:
			emergency = append(emergency, fmt.Sprintf("body temperature %.1f°C", temp))
		case temp < tempWarnLow || temp > tempWarnHigh:
			warning = append(warning, fmt.Sprintf("body temperature %.1f°C", temp))
		}
	}

	switch {
	case len(emergency) > 0:
		return realtime.Alert{Severity: models.HealthEmergency, Reasons: emergency}
	case len(warning) > 0:
		return realtime.Alert{Severity: models.HealthWarning, Reasons: warning}
	}
	return realtime.Alert{Severity: models.HealthSafe}
}
