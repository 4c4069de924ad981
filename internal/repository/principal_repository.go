package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"safetywatch/internal/models"
)

var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrLoginTaken        = errors.New("login already registered")
)

type PrincipalRepository struct {
	db DB
}

func NewPrincipalRepository(db DB) *PrincipalRepository {
	return &PrincipalRepository{db: db}
}

func (r *PrincipalRepository) Create(ctx context.Context, p models.Principal) error {
	const query = `
		INSERT INTO principals (id, login, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, NOW(), NOW())
	`
	if _, err := r.db.Exec(ctx, query, p.ID, p.Login, p.PasswordHash); err != nil {
		if _, ok := uniqueConstraint(err); ok {
			return ErrLoginTaken
		}
		return err
	}
	return nil
}

func (r *PrincipalRepository) FindByLogin(ctx context.Context, login string) (models.Principal, error) {
	const query = `
		SELECT id, login, password_hash, created_at, updated_at
		FROM principals WHERE login = $1
	`
	return scanPrincipal(r.db.QueryRow(ctx, query, login))
}

func (r *PrincipalRepository) GetByID(ctx context.Context, id string) (models.Principal, error) {
	const query = `
		SELECT id, login, password_hash, created_at, updated_at
		FROM principals WHERE id = $1
	`
	return scanPrincipal(r.db.QueryRow(ctx, query, id))
}

func (r *PrincipalRepository) UpdatePasswordHash(ctx context.Context, id string, hash []byte) error {
	const query = `UPDATE principals SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id, hash)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

// Delete removes a principal and, through cascades, its role grant, sessions
// and profile rows.
func (r *PrincipalRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM principals WHERE id = $1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrPrincipalNotFound
	}
	return nil
}

func scanPrincipal(row pgx.Row) (models.Principal, error) {
	var p models.Principal
	if err := row.Scan(&p.ID, &p.Login, &p.PasswordHash, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Principal{}, ErrPrincipalNotFound
		}
		return models.Principal{}, err
	}
	return p, nil
}
