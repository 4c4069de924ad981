package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"safetywatch/internal/models"
)

var ErrRoleNotFound = errors.New("role grant not found")

type RoleRepository struct {
	db DB
}

func NewRoleRepository(db DB) *RoleRepository {
	return &RoleRepository{db: db}
}

const upsertRoleQuery = `
	INSERT INTO role_grants (principal_id, role, created_at)
	VALUES ($1, $2, NOW())
	ON CONFLICT (principal_id) DO UPDATE SET role = EXCLUDED.role
`

// Upsert keeps at most one grant per principal.
func (r *RoleRepository) Upsert(ctx context.Context, principalID string, role models.Role) error {
	_, err := r.db.Exec(ctx, upsertRoleQuery, principalID, role)
	return err
}

func (r *RoleRepository) GetRole(ctx context.Context, principalID string) (models.Role, error) {
	const query = `SELECT role FROM role_grants WHERE principal_id = $1`
	var role models.Role
	if err := r.db.QueryRow(ctx, query, principalID).Scan(&role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrRoleNotFound
		}
		return "", err
	}
	return role, nil
}
