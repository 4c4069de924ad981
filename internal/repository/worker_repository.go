package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"safetywatch/internal/models"
)

var (
	ErrWorkerNotFound  = errors.New("worker not found")
	ErrWorkerCodeTaken = errors.New("worker code already registered")
	ErrDeviceTaken     = errors.New("device id already assigned")
	ErrSupervisorGone  = errors.New("supervisor does not exist")

	// Step markers for CreateWithRole; the returned error wraps one of them.
	ErrGrantRole    = errors.New("grant worker role")
	ErrInsertWorker = errors.New("insert worker")
)

type WorkerRepository struct {
	db DB
}

func NewWorkerRepository(db DB) *WorkerRepository {
	return &WorkerRepository{db: db}
}

const workerColumns = `w.id, w.principal_id, w.worker_code, w.name, w.age, w.health_issues,
	w.supervisor_id, w.device_id, w.is_active, w.created_at, w.updated_at`

const insertWorkerQuery = `
	INSERT INTO workers (
		id, principal_id, worker_code, name, age, health_issues, supervisor_id, device_id, is_active, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW()
	)
`

// CreateWithRole grants the worker role and inserts the profile in one
// transaction. Either both rows exist afterwards or neither does.
func (r *WorkerRepository) CreateWithRole(ctx context.Context, w models.Worker) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %w", ErrGrantRole, err)
	}

	if _, err := tx.Exec(ctx, upsertRoleQuery, w.PrincipalID, models.RoleWorker); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: %w", ErrGrantRole, err)
	}

	if _, err := tx.Exec(ctx, insertWorkerQuery,
		w.ID,
		w.PrincipalID,
		w.WorkerCode,
		w.Name,
		w.Age,
		w.HealthIssues,
		w.SupervisorID,
		w.DeviceID,
	); err != nil {
		_ = tx.Rollback(ctx)
		return fmt.Errorf("%w: %w", ErrInsertWorker, classifyWorkerConflict(err))
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", ErrInsertWorker, err)
	}
	return nil
}

// Upsert inserts or refreshes the profile keyed by principal id. The
// is_active flag of an existing row is left alone.
func (r *WorkerRepository) Upsert(ctx context.Context, w models.Worker) (models.Worker, error) {
	const query = `
		INSERT INTO workers AS w (
			id, principal_id, worker_code, name, age, health_issues, supervisor_id, device_id, is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, TRUE, NOW(), NOW()
		)
		ON CONFLICT (principal_id) DO UPDATE SET
			worker_code = EXCLUDED.worker_code,
			name = EXCLUDED.name,
			age = EXCLUDED.age,
			health_issues = EXCLUDED.health_issues,
			supervisor_id = EXCLUDED.supervisor_id,
			device_id = EXCLUDED.device_id,
			updated_at = NOW()
		RETURNING ` + workerColumns

	out, err := scanWorker(r.db.QueryRow(ctx, query,
		w.ID, w.PrincipalID, w.WorkerCode, w.Name, w.Age, w.HealthIssues, w.SupervisorID, w.DeviceID,
	))
	if err != nil {
		return models.Worker{}, classifyWorkerConflict(err)
	}
	return out, nil
}

func (r *WorkerRepository) GetByID(ctx context.Context, id string) (models.Worker, error) {
	const query = `SELECT ` + workerColumns + ` FROM workers w WHERE w.id = $1`
	return scanWorker(r.db.QueryRow(ctx, query, id))
}

func (r *WorkerRepository) GetByPrincipal(ctx context.Context, principalID string) (models.Worker, error) {
	const query = `SELECT ` + workerColumns + ` FROM workers w WHERE w.principal_id = $1`
	return scanWorker(r.db.QueryRow(ctx, query, principalID))
}

func (r *WorkerRepository) GetByDeviceID(ctx context.Context, deviceID string) (models.Worker, error) {
	const query = `SELECT ` + workerColumns + ` FROM workers w WHERE w.device_id = $1`
	return scanWorker(r.db.QueryRow(ctx, query, deviceID))
}

// ListStatus returns workers with their newest reading. A nil supervisorID
// lists every worker.
func (r *WorkerRepository) ListStatus(ctx context.Context, supervisorID *string) ([]models.WorkerStatus, error) {
	const query = `
		SELECT ` + workerColumns + `,
			COALESCE(sr.health_status, 'safe'), sr.heart_rate, sr.body_temperature, sr.recorded_at
		FROM workers w
		LEFT JOIN LATERAL (
			SELECT health_status, heart_rate, body_temperature, recorded_at
			FROM sensor_readings
			WHERE worker_id = w.id
			ORDER BY recorded_at DESC
			LIMIT 1
		) sr ON TRUE
		WHERE $1::text IS NULL OR w.supervisor_id = $1
		ORDER BY w.worker_code
	`
	rows, err := r.db.Query(ctx, query, supervisorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.WorkerStatus
	for rows.Next() {
		var ws models.WorkerStatus
		if err := rows.Scan(
			&ws.ID, &ws.PrincipalID, &ws.WorkerCode, &ws.Name, &ws.Age, &ws.HealthIssues,
			&ws.SupervisorID, &ws.DeviceID, &ws.IsActive, &ws.CreatedAt, &ws.UpdatedAt,
			&ws.HealthStatus, &ws.HeartRate, &ws.BodyTemperature, &ws.LastReadingAt,
		); err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, rows.Err()
}

func (r *WorkerRepository) SetActive(ctx context.Context, id string, active bool) (models.Worker, error) {
	const query = `
		UPDATE workers w SET is_active = $2, updated_at = NOW()
		WHERE w.id = $1
		RETURNING ` + workerColumns
	return scanWorker(r.db.QueryRow(ctx, query, id, active))
}

// ListStale returns active workers with a device whose newest reading is
// older than cutoff. Workers that never reported are not included.
func (r *WorkerRepository) ListStale(ctx context.Context, cutoff time.Time) ([]models.Worker, error) {
	const query = `
		SELECT ` + workerColumns + `
		FROM workers w
		JOIN LATERAL (
			SELECT MAX(recorded_at) AS last_at FROM sensor_readings WHERE worker_id = w.id
		) sr ON sr.last_at IS NOT NULL
		WHERE w.is_active AND w.device_id IS NOT NULL AND sr.last_at < $1
		ORDER BY w.worker_code
	`
	rows, err := r.db.Query(ctx, query, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorker(row pgx.Row) (models.Worker, error) {
	var w models.Worker
	if err := row.Scan(
		&w.ID, &w.PrincipalID, &w.WorkerCode, &w.Name, &w.Age, &w.HealthIssues,
		&w.SupervisorID, &w.DeviceID, &w.IsActive, &w.CreatedAt, &w.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Worker{}, ErrWorkerNotFound
		}
		return models.Worker{}, err
	}
	return w, nil
}

func classifyWorkerConflict(err error) error {
	if constraint, ok := foreignKeyConstraint(err); ok && constraint == "workers_supervisor_id_fkey" {
		return fmt.Errorf("%w: %w", ErrSupervisorGone, err)
	}
	constraint, ok := uniqueConstraint(err)
	if !ok {
		return err
	}
	switch constraint {
	case "workers_worker_code_key":
		return fmt.Errorf("%w: %w", ErrWorkerCodeTaken, err)
	case "workers_device_id_key":
		return fmt.Errorf("%w: %w", ErrDeviceTaken, err)
	}
	return err
}
