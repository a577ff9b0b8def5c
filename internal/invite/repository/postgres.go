package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"chat-credential-engine/internal/invite/domain"
)

const uniqueViolation = "23505"

// PostgresRepository stores invites in the invites table.
type PostgresRepository struct {
	db *sql.DB
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository returns an invite repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the invite.
func (r *PostgresRepository) Create(ctx context.Context, inv *domain.Invite) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO invites (token, inviter_id, created_at, expires_at, used) VALUES ($1, $2, $3, $4, false)`,
		inv.Token, inv.InviterID, inv.CreatedAt, inv.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return domain.ErrDuplicateToken
	}
	return err
}

// GetByToken returns the invite for token, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByToken(ctx context.Context, token string) (*domain.Invite, error) {
	var inv domain.Invite
	var usedBy sql.NullString
	var usedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT token, inviter_id, created_at, expires_at, used, used_by, used_at FROM invites WHERE token = $1`, token,
	).Scan(&inv.Token, &inv.InviterID, &inv.CreatedAt, &inv.ExpiresAt, &inv.Used, &usedBy, &usedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	inv.CreatedAt = inv.CreatedAt.UTC()
	inv.ExpiresAt = inv.ExpiresAt.UTC()
	if usedBy.Valid {
		inv.UsedBy = &usedBy.String
	}
	if usedAt.Valid {
		at := usedAt.Time.UTC()
		inv.UsedAt = &at
	}
	return &inv, nil
}

// MarkUsed redeems the invite in one conditional UPDATE.
func (r *PostgresRepository) MarkUsed(ctx context.Context, token, userID string, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invites SET used = true, used_by = $2, used_at = $3
		 WHERE token = $1 AND used = false AND expires_at > $3`,
		token, userID, now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetUsed undoes a redemption made by userID.
func (r *PostgresRepository) ResetUsed(ctx context.Context, token, userID string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invites SET used = false, used_by = NULL, used_at = NULL
		 WHERE token = $1 AND used = true AND used_by = $2`,
		token, userID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
