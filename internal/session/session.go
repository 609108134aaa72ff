// Package session creates and ends authenticated sessions. A session is only created after
// both login factors have passed; see identity/service.
package session

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"securebank/internal/session/domain"
)

// ErrNotAuthenticated is returned for a nil or logged-out session.
var ErrNotAuthenticated = errors.New("not authenticated")

// Authenticate returns a new active session for accountID.
func Authenticate(accountID string) *domain.Session {
	return &domain.Session{
		ID:              uuid.New().String(),
		AccountID:       accountID,
		AuthenticatedAt: time.Now().UTC(),
	}
}

// Logout ends s. It is safe to call on a nil or already logged-out session and reports whether
// s was active before the call.
func Logout(s *domain.Session) bool {
	return s.End(time.Now().UTC())
}

// RequireAuthenticated returns the account id of an active session, or ErrNotAuthenticated.
func RequireAuthenticated(s *domain.Session) (string, error) {
	if !s.Active() {
		return "", ErrNotAuthenticated
	}
	return s.AccountID, nil
}
