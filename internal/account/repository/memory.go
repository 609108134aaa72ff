package repository

import (
	"bytes"
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"

	"securebank/internal/account/domain"
)

// ErrNegativeBalance mirrors the balance >= 0 check constraint of the accounts table.
var ErrNegativeBalance = errors.New("balance must not be negative")

var errNotLocked = errors.New("balance written without LockBalance")

// MemoryRepository keeps accounts in process. Each account carries a one-slot lock that a Tx
// holds from LockBalance until Commit or Rollback, the same way a row lock does in Postgres.
// It backs the console when DATABASE_URL is unset, and tests.
type MemoryRepository struct {
	mu       sync.Mutex
	accounts map[string]*memAccount
}

type memAccount struct {
	lock chan struct{}
	acct domain.Account
}

// NewMemoryRepository returns an empty in-memory account repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{accounts: make(map[string]*memAccount)}
}

func (r *MemoryRepository) Create(ctx context.Context, a *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[a.ID]; ok {
		return ErrAccountExists
	}
	for _, m := range r.accounts {
		if bytes.Equal(m.acct.Salt, a.Salt) {
			return ErrAccountExists
		}
	}
	if a.Balance.IsNegative() {
		return ErrNegativeBalance
	}
	cp := *a
	cp.Balance = a.Balance.Round(domain.BalanceScale)
	r.accounts[a.ID] = &memAccount{lock: make(chan struct{}, 1), acct: cp}
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := m.acct
	return &cp, nil
}

func (r *MemoryRepository) GetBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.accounts[id]
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	return m.acct.Balance, nil
}

func (r *MemoryRepository) BeginTx(ctx context.Context) (Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &memoryTx{
		repo:    r,
		held:    make(map[string]*memAccount),
		pending: make(map[string]decimal.Decimal),
	}, nil
}

type memoryTx struct {
	repo    *MemoryRepository
	mu      sync.Mutex
	held    map[string]*memAccount
	pending map[string]decimal.Decimal
	done    bool
}

// LockBalance blocks until the account's lock is free or ctx is done.
func (t *memoryTx) LockBalance(ctx context.Context, id string) (decimal.Decimal, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return decimal.Zero, ErrTxDone
	}
	if m, ok := t.held[id]; ok {
		if bal, ok := t.pending[id]; ok {
			return bal, nil
		}
		return t.repo.balanceOf(m), nil
	}

	t.repo.mu.Lock()
	m, ok := t.repo.accounts[id]
	t.repo.mu.Unlock()
	if !ok {
		return decimal.Zero, ErrNotFound
	}
	select {
	case m.lock <- struct{}{}:
	case <-ctx.Done():
		return decimal.Zero, ctx.Err()
	}
	t.held[id] = m
	return t.repo.balanceOf(m), nil
}

func (t *memoryTx) SetBalance(ctx context.Context, id string, balance decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	if _, ok := t.held[id]; !ok {
		return errNotLocked
	}
	if balance.IsNegative() {
		return ErrNegativeBalance
	}
	t.pending[id] = balance.Round(domain.BalanceScale)
	return nil
}

func (t *memoryTx) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.repo.mu.Lock()
	for id, bal := range t.pending {
		t.held[id].acct.Balance = bal
	}
	t.repo.mu.Unlock()
	t.release()
	return nil
}

func (t *memoryTx) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return ErrTxDone
	}
	t.release()
	return nil
}

// release frees every held lock. Caller holds t.mu.
func (t *memoryTx) release() {
	for _, m := range t.held {
		<-m.lock
	}
	t.done = true
	t.held = nil
	t.pending = nil
}

func (r *MemoryRepository) balanceOf(m *memAccount) decimal.Decimal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return m.acct.Balance
}
