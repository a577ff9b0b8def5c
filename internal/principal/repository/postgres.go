package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"

	"chat-credential-engine/internal/principal/domain"
)

const uniqueViolation = "23505"

const principalColumns = `id, email, display_name, role, device_id, password_hash, created_at, updated_at`

// PostgresRepository stores principals in the principals table.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns a principal repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// GetByID returns the principal for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+principalColumns+` FROM principals WHERE id = $1`, id)
	return scanPrincipal(row)
}

// GetByEmail returns the principal with the given email (case-insensitive), or nil if not found.
func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*domain.Principal, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+principalColumns+` FROM principals WHERE lower(email) = $1`, domain.NormalizeEmail(email))
	return scanPrincipal(row)
}

// Create inserts the principal. The principal must have ID set; it is not assigned by this method.
func (r *PostgresRepository) Create(ctx context.Context, p *domain.Principal) error {
	if err := p.Validate(); err != nil {
		return err
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO principals (`+principalColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, domain.NormalizeEmail(p.Email), p.DisplayName, p.Role, p.DeviceID,
		sql.NullString{String: p.PasswordHash, Valid: p.PasswordHash != ""},
		p.CreatedAt, p.UpdatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrEmailTaken
	}
	return err
}

// Delete removes the principal with id.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM principals WHERE id = $1`, id)
	return err
}

func scanPrincipal(row *sql.Row) (*domain.Principal, error) {
	var p domain.Principal
	var hash sql.NullString
	err := row.Scan(&p.ID, &p.Email, &p.DisplayName, &p.Role, &p.DeviceID, &hash, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.PasswordHash = hash.String
	return &p, nil
}
