// Package devotp keeps the latest delivered one-time code per account for development and tests
// (OTP_NOTIFIER=capture). It must never back a production deployment.
package devotp

import (
	"context"
	"sync"
	"time"
)

// Store holds plain codes by account id until they expire.
type Store interface {
	// Put records otp as the latest code for accountID until expiresAt, replacing any earlier one.
	Put(ctx context.Context, accountID, otp string, expiresAt time.Time)
	// Take returns and removes the unexpired code for accountID, so a captured code is read at most once.
	Take(ctx context.Context, accountID string) (otp string, ok bool)
}

type entry struct {
	otp       string
	expiresAt time.Time
}

// MemoryStore is an in-memory Store implementation.
type MemoryStore struct {
	mu   sync.Mutex
	m    map[string]entry
	nowF func() time.Time
}

// NewMemoryStore returns a new in-memory dev OTP store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		m:    make(map[string]entry),
		nowF: func() time.Time { return time.Now().UTC() },
	}
}

// Put stores otp for accountID until expiresAt.
func (s *MemoryStore) Put(ctx context.Context, accountID, otp string, expiresAt time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[accountID] = entry{otp: otp, expiresAt: expiresAt}
}

// Take returns and removes the otp for accountID. An expired entry is dropped and reported missing.
func (s *MemoryStore) Take(ctx context.Context, accountID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.m[accountID]
	if !ok {
		return "", false
	}
	delete(s.m, accountID)
	if !e.expiresAt.After(s.nowF()) {
		return "", false
	}
	return e.otp, true
}
