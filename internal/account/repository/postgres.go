package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"securebank/internal/account/domain"
)

// pgUniqueViolation is the SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an account repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the account. The balance is stored rounded to two fraction digits.
func (r *PostgresRepository) Create(ctx context.Context, a *domain.Account) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (id, derived_key, salt, balance, created_at) VALUES ($1, $2, $3, $4, $5)`,
		a.ID, a.DerivedKey, a.Salt, a.Balance.Round(domain.BalanceScale), a.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

// GetByID returns the account for id, or nil if not found.
// It returns an error only for database failures, not for missing rows.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	var a domain.Account
	err := r.db.QueryRowContext(ctx,
		`SELECT id, derived_key, salt, balance, created_at FROM accounts WHERE id = $1`, id,
	).Scan(&a.ID, &a.DerivedKey, &a.Salt, &a.Balance, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

// GetBalance returns the committed balance for id, or ErrNotFound.
func (r *PostgresRepository) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := r.db.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1`, id).Scan(&bal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, err
	}
	return bal, nil
}

// BeginTx starts a database transaction at the default isolation level. Row locks taken by
// LockBalance serialize writers, so READ COMMITTED is sufficient.
func (r *PostgresRepository) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &postgresTx{tx: tx}, nil
}

type postgresTx struct {
	tx *sql.Tx
}

func (t *postgresTx) LockBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	var bal decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `SELECT balance FROM accounts WHERE id = $1 FOR UPDATE`, id).Scan(&bal)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, ErrNotFound
		}
		return decimal.Zero, mapTxErr(err)
	}
	return bal, nil
}

func (t *postgresTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE accounts SET balance = $2 WHERE id = $1`,
		id, balance.Round(domain.BalanceScale))
	if err != nil {
		return mapTxErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *postgresTx) Commit() error {
	return mapTxErr(t.tx.Commit())
}

func (t *postgresTx) Rollback() error {
	return mapTxErr(t.tx.Rollback())
}

func mapTxErr(err error) error {
	if errors.Is(err, sql.ErrTxDone) {
		return ErrTxDone
	}
	return err
}
