package repository

import (
	"context"
	"database/sql"
	"errors"

	"securebank/internal/mfa/domain"
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an MFA challenge repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists the MFA challenge. The challenge must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, c *domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO mfa_challenges (id, account_id, code_hash, issued_at, expires_at) VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.AccountID, c.CodeHash, c.IssuedAt, c.ExpiresAt,
	)
	return err
}

// Consume deletes the challenge and returns the deleted row, or nil if it was already gone.
func (r *PostgresRepository) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	c := &domain.Challenge{ID: id, State: domain.StateIssued}
	err := r.db.QueryRowContext(ctx,
		`DELETE FROM mfa_challenges WHERE id = $1 RETURNING account_id, code_hash, issued_at, expires_at`,
		id,
	).Scan(&c.AccountID, &c.CodeHash, &c.IssuedAt, &c.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return c, nil
}

// DeleteExpired removes challenges whose window has closed. Returns the number removed.
func (r *PostgresRepository) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM mfa_challenges WHERE expires_at < now()`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
