package domain

import (
	"sync"
	"time"
)

// Session is the authenticated state of one console or caller. It refers to its account by id
// only and is passed explicitly to every balance operation.
type Session struct {
	ID              string
	AccountID       string
	AuthenticatedAt time.Time

	mu          sync.Mutex
	loggedOutAt *time.Time // nil while authenticated
}

// Active reports whether the session is still authenticated.
func (s *Session) Active() bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loggedOutAt == nil && s.AccountID != ""
}

// End marks the session logged out at now. It reports whether the session was active.
func (s *Session) End(now time.Time) bool {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedOutAt != nil {
		return false
	}
	s.loggedOutAt = &now
	return true
}

// LoggedOutAt returns when the session ended, or false if it has not.
func (s *Session) LoggedOutAt() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loggedOutAt == nil {
		return time.Time{}, false
	}
	return *s.loggedOutAt, true
}
