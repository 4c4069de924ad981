package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"safetywatch/internal/models"
)

type SensorRepository struct {
	db DB
}

func NewSensorRepository(db DB) *SensorRepository {
	return &SensorRepository{db: db}
}

const readingColumns = `id, worker_id, heart_rate, body_temperature, fall_detected, gas_level,
	gas_status, motion_status, health_status, recorded_at`

// ErrReadingIDMissing is returned when a reading reaches the store without an id.
var ErrReadingIDMissing = errors.New("sensor reading without id")

// Insert appends one reading; recorded_at is assigned by the database.
func (r *SensorRepository) Insert(ctx context.Context, reading models.SensorReading) (models.SensorReading, error) {
	if reading.ID == "" {
		return models.SensorReading{}, ErrReadingIDMissing
	}
	const query = `
		INSERT INTO sensor_readings (
			id, worker_id, heart_rate, body_temperature, fall_detected, gas_level,
			gas_status, motion_status, health_status, recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, NOW()
		)
		RETURNING ` + readingColumns

	return scanReading(r.db.QueryRow(ctx, query,
		reading.ID,
		reading.WorkerID,
		reading.HeartRate,
		reading.BodyTemperature,
		reading.FallDetected,
		reading.GasLevel,
		reading.GasStatus,
		reading.MotionStatus,
		reading.HealthStatus,
	))
}

// InsertBatch bulk-loads readings with explicit timestamps using COPY.
func (r *SensorRepository) InsertBatch(ctx context.Context, readings []models.SensorReading) (int64, error) {
	columns := []string{
		"id", "worker_id", "heart_rate", "body_temperature", "fall_detected", "gas_level",
		"gas_status", "motion_status", "health_status", "recorded_at",
	}
	return r.db.CopyFrom(ctx, pgx.Identifier{"sensor_readings"}, columns,
		pgx.CopyFromSlice(len(readings), func(i int) ([]any, error) {
			rd := readings[i]
			return []any{
				rd.ID, rd.WorkerID, rd.HeartRate, rd.BodyTemperature, rd.FallDetected, rd.GasLevel,
				string(rd.GasStatus), string(rd.MotionStatus), string(rd.HealthStatus), rd.RecordedAt,
			}, nil
		}),
	)
}

// ListByWorker returns the newest readings first.
func (r *SensorRepository) ListByWorker(ctx context.Context, workerID string, limit int) ([]models.SensorReading, error) {
	const query = `
		SELECT ` + readingColumns + `
		FROM sensor_readings
		WHERE worker_id = $1
		ORDER BY recorded_at DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, workerID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SensorReading, 0, limit)
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rd)
	}
	return out, rows.Err()
}

func (r *SensorRepository) CountByWorker(ctx context.Context, workerID string) (int, error) {
	const query = `SELECT COUNT(*) FROM sensor_readings WHERE worker_id = $1`
	var count int
	if err := r.db.QueryRow(ctx, query, workerID).Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func scanReading(row pgx.Row) (models.SensorReading, error) {
	var rd models.SensorReading
	err := row.Scan(
		&rd.ID, &rd.WorkerID, &rd.HeartRate, &rd.BodyTemperature, &rd.FallDetected, &rd.GasLevel,
		&rd.GasStatus, &rd.MotionStatus, &rd.HealthStatus, &rd.RecordedAt,
	)
	return rd, err
}
