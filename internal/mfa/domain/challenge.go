package domain

import "time"

// State is the lifecycle position of a Challenge. Verified, Expired and Failed are terminal.
type State string

const (
	StateIssued   State = "issued"
	StateVerified State = "verified"
	StateExpired  State = "expired"
	StateFailed   State = "failed"
)

// Challenge is a pending one-time code for a login attempt. Only the code hash is kept.
type Challenge struct {
	ID        string
	AccountID string
	CodeHash  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	State     State
}

// Expired reports whether now is past the validity window.
func (c *Challenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// Resolve moves an issued challenge to its terminal state and reports whether it verified.
// A challenge that is already terminal stays put and never verifies again.
func (c *Challenge) Resolve(now time.Time, codeMatches bool) bool {
	if c.State != StateIssued {
		return false
	}
	switch {
	case c.Expired(now):
		c.State = StateExpired
	case !codeMatches:
		c.State = StateFailed
	default:
		c.State = StateVerified
	}
	return c.State == StateVerified
}
