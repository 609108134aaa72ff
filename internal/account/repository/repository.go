package repository

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"securebank/internal/account/domain"
)

var (
	// ErrAccountExists is returned by Create when the id (or, improbably, the salt) is already taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrNotFound is returned by balance reads and locks for an unknown account.
	ErrNotFound = errors.New("account not found")
	// ErrTxDone is returned by Tx methods after Commit or Rollback.
	ErrTxDone = errors.New("transaction already committed or rolled back")
)

// Repository defines persistence for accounts.
type Repository interface {
	// Create persists a new account. Returns ErrAccountExists on a duplicate id.
	Create(ctx context.Context, a *domain.Account) error
	// GetByID returns the account for id, or nil if not found.
	// It returns an error only for database failures, not for missing rows.
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetBalance returns the committed balance for id.
	GetBalance(ctx context.Context, id string) (decimal.Decimal, error)
	// BeginTx starts a read-modify-write transaction on balances.
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a balance transaction. LockBalance holds an exclusive lock on the account row until
// Commit or Rollback; writes are invisible to other readers until Commit.
type Tx interface {
	LockBalance(ctx context.Context, id string) (decimal.Decimal, error)
	SetBalance(ctx context.Context, id string, balance decimal.Decimal) error
	Commit() error
	// Rollback discards the transaction. Calling it after Commit returns ErrTxDone and has no effect.
	Rollback() error
}
