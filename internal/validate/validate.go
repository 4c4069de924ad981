package validate

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"safetywatch/internal/apperr"
	"safetywatch/internal/config"
	"safetywatch/internal/models"
)

const (
	MinAge             = 18
	MaxWorkerIDLen     = 50
	MaxNameLen         = 100
	MaxHealthIssuesLen = 500
	MaxDeviceIDLen     = 50
	MaxStatusLen       = 50

	MinHeartRate = 20
	MaxHeartRate = 250
	MinBodyTemp  = 30.0
	MaxBodyTemp  = 45.0
	MinGasLevel  = 0.0
	MaxGasLevel  = 1000.0

	DefaultHealthIssues = "none"
)

// fieldErrors collects messages in check order so the first failure can be
// surfaced as the headline message.
type fieldErrors struct {
	order  []string
	fields map[string]string
}

func (f *fieldErrors) add(field, message string) {
	if f.fields == nil {
		f.fields = make(map[string]string)
	}
	if _, exists := f.fields[field]; exists {
		return
	}
	f.order = append(f.order, field)
	f.fields[field] = message
}

func (f *fieldErrors) err() error {
	if len(f.order) == 0 {
		return nil
	}
	return apperr.Validation(f.fields[f.order[0]], f.fields)
}

type Registration struct {
	WorkerID     string
	Name         string
	Age          int
	HealthIssues string
	SupervisorID *string
	DeviceID     *string
	Password     string
}

// NormalizeRegistration trims input, applies defaults and validates it. The
// returned copy is what provisioning persists.
func NormalizeRegistration(in Registration, policy config.PasswordPolicy, maxAge int) (Registration, error) {
	out := in
	out.WorkerID = strings.TrimSpace(in.WorkerID)
	out.Name = strings.TrimSpace(in.Name)
	out.HealthIssues = strings.TrimSpace(in.HealthIssues)
	if out.HealthIssues == "" {
		out.HealthIssues = DefaultHealthIssues
	}
	out.DeviceID = trimOptional(in.DeviceID)
	out.SupervisorID = trimOptional(in.SupervisorID)

	var errs fieldErrors

	switch n := utf8.RuneCountInString(out.WorkerID); {
	case n == 0:
		errs.add("worker_id", "Worker ID is required")
	case n > MaxWorkerIDLen:
		errs.add("worker_id", "Worker ID too long")
	}

	switch n := utf8.RuneCountInString(out.Name); {
	case n == 0:
		errs.add("name", "Name is required")
	case n > MaxNameLen:
		errs.add("name", "Name too long")
	}

	switch {
	case out.Age < MinAge:
		errs.add("age", "Age must be 18 or older")
	case maxAge > 0 && out.Age > maxAge:
		errs.add("age", "Invalid age")
	}

	if utf8.RuneCountInString(out.HealthIssues) > MaxHealthIssuesLen {
		errs.add("health_issues", "Health issues description too long")
	}

	if out.DeviceID != nil && utf8.RuneCountInString(*out.DeviceID) > MaxDeviceIDLen {
		errs.add("device_id", "Device ID too long")
	}

	if msg := Password(in.Password, policy); msg != "" {
		errs.add("password", msg)
	}

	if err := errs.err(); err != nil {
		return in, err
	}
	return out, nil
}

// Password returns the first policy rule the password breaks, or "".
func Password(pw string, policy config.PasswordPolicy) string {
	if utf8.RuneCountInString(pw) < policy.MinLength {
		return fmt.Sprintf("Password must be at least %d characters", policy.MinLength)
	}
	var upper, lower, digit bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	switch {
	case policy.RequireUpper && !upper:
		return "Password must contain at least one uppercase letter"
	case policy.RequireLower && !lower:
		return "Password must contain at least one lowercase letter"
	case policy.RequireDigit && !digit:
		return "Password must contain at least one number"
	}
	return ""
}

// DeviceID checks the device identifier presented by a sender.
func DeviceID(id string) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return apperr.Validation("device_id is required", map[string]string{"device_id": "device_id is required"})
	}
	if utf8.RuneCountInString(id) > MaxDeviceIDLen {
		return apperr.Validation("Device ID too long", map[string]string{"device_id": "Device ID too long"})
	}
	return nil
}

type Sensor struct {
	DeviceID        string
	HeartRate       *float64
	BodyTemperature *float64
	FallDetected    *bool
	GasLevel        *float64
	GasStatus       *string
	MotionStatus    *string
	HealthStatus    *string
}

// SensorReading range-checks a payload and converts it into a reading with
// defaults applied. Omitted measurements are not checked.
func SensorReading(in Sensor) (models.SensorReading, error) {
	var errs fieldErrors

	if in.HeartRate != nil && !inRange(*in.HeartRate, MinHeartRate, MaxHeartRate) {
		errs.add("heart_rate", "Invalid heart rate value")
	}
	if in.BodyTemperature != nil && !inRange(*in.BodyTemperature, MinBodyTemp, MaxBodyTemp) {
		errs.add("body_temperature", "Invalid body temperature value")
	}
	if in.GasLevel != nil && !inRange(*in.GasLevel, MinGasLevel, MaxGasLevel) {
		errs.add("gas_level", "Invalid gas level value")
	}

	reading := models.SensorReading{
		GasStatus:    models.GasSafe,
		MotionStatus: models.MotionNormal,
		HealthStatus: models.HealthSafe,
	}

	// Device firmware reports its own gas and motion labels; only the known
	// ones drive alerts, the rest are stored as sent.
	if in.GasStatus != nil {
		if s, ok := freeStatus(*in.GasStatus); ok {
			reading.GasStatus = models.GasStatus(s)
		} else {
			errs.add("gas_status", "Invalid gas status value")
		}
	}
	if in.MotionStatus != nil {
		if s, ok := freeStatus(*in.MotionStatus); ok {
			reading.MotionStatus = models.MotionStatus(s)
		} else {
			errs.add("motion_status", "Invalid motion status value")
		}
	}
	if in.HealthStatus != nil {
		switch s := models.HealthStatus(*in.HealthStatus); s {
		case models.HealthSafe, models.HealthWarning, models.HealthEmergency:
			reading.HealthStatus = s
		default:
			errs.add("health_status", "Invalid health status value")
		}
	}

	if err := errs.err(); err != nil {
		return models.SensorReading{}, err
	}

	if in.HeartRate != nil {
		hr := int(math.Round(*in.HeartRate))
		reading.HeartRate = &hr
	}
	reading.BodyTemperature = in.BodyTemperature
	reading.GasLevel = in.GasLevel
	if in.FallDetected != nil {
		reading.FallDetected = *in.FallDetected
	}
	return reading, nil
}

func inRange(v, lo, hi float64) bool {
	return !math.IsNaN(v) && v >= lo && v <= hi
}

func trimOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func freeStatus(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" || utf8.RuneCountInString(s) > MaxStatusLen {
		return "", false
	}
	return s, true
}
