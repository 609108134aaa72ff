package repository

import (
	"context"
	"sync"

	"securebank/internal/mfa/domain"
)

// MemoryRepository is an in-process Repository. Challenges past expiry are still returned by
// Consume so the caller can report them as expired; they are dropped on the next Create.
type MemoryRepository struct {
	mu sync.Mutex
	m  map[string]domain.Challenge
}

// NewMemoryRepository returns an empty in-memory challenge repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{m: make(map[string]domain.Challenge)}
}

// Create stores a copy of c.
func (r *MemoryRepository) Create(ctx context.Context, c *domain.Challenge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, existing := range r.m {
		if existing.ExpiresAt.Before(c.IssuedAt) {
			delete(r.m, id)
		}
	}
	r.m[c.ID] = *c
	return nil
}

// Consume removes and returns the challenge for id.
func (r *MemoryRepository) Consume(ctx context.Context, id string) (*domain.Challenge, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.m[id]
	if !ok {
		return nil, nil
	}
	delete(r.m, id)
	return &c, nil
}

// size returns the number of pending challenges.
func (r *MemoryRepository) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.m)
}
