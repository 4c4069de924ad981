package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"safetywatch/internal/models"
)

var ErrSupervisorNotFound = errors.New("supervisor not found")

type SupervisorRepository struct {
	db DB
}

func NewSupervisorRepository(db DB) *SupervisorRepository {
	return &SupervisorRepository{db: db}
}

const supervisorColumns = `id, principal_id, supervisor_code, name, department, created_at`

// Upsert inserts or refreshes the profile keyed by principal id and returns
// the stored row.
func (r *SupervisorRepository) Upsert(ctx context.Context, s models.Supervisor) (models.Supervisor, error) {
	const query = `
		INSERT INTO supervisors (id, principal_id, supervisor_code, name, department, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (principal_id) DO UPDATE SET
			supervisor_code = EXCLUDED.supervisor_code,
			name = EXCLUDED.name,
			department = EXCLUDED.department
		RETURNING ` + supervisorColumns

	return scanSupervisor(r.db.QueryRow(ctx, query, s.ID, s.PrincipalID, s.SupervisorCode, s.Name, s.Department))
}

func (r *SupervisorRepository) GetByPrincipal(ctx context.Context, principalID string) (models.Supervisor, error) {
	const query = `SELECT ` + supervisorColumns + ` FROM supervisors WHERE principal_id = $1`
	return scanSupervisor(r.db.QueryRow(ctx, query, principalID))
}

func (r *SupervisorRepository) GetByID(ctx context.Context, id string) (models.Supervisor, error) {
	const query = `SELECT ` + supervisorColumns + ` FROM supervisors WHERE id = $1`
	return scanSupervisor(r.db.QueryRow(ctx, query, id))
}

func (r *SupervisorRepository) List(ctx context.Context) ([]models.Supervisor, error) {
	const query = `SELECT ` + supervisorColumns + ` FROM supervisors ORDER BY name`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Supervisor
	for rows.Next() {
		s, err := scanSupervisor(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanSupervisor(row pgx.Row) (models.Supervisor, error) {
	var s models.Supervisor
	if err := row.Scan(&s.ID, &s.PrincipalID, &s.SupervisorCode, &s.Name, &s.Department, &s.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Supervisor{}, ErrSupervisorNotFound
		}
		return models.Supervisor{}, err
	}
	return s, nil
}
