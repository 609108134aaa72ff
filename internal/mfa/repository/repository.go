package repository

import (
	"context"
	"time"

	"securebank/internal/mfa/domain"
)

// Repository holds pending MFA challenges until they are consumed.
type Repository interface {
	// Create stores c until c.ExpiresAt.
	Create(ctx context.Context, c *domain.Challenge) error
	// Consume atomically removes and returns the challenge for id, or nil if there is none.
	// Two concurrent Consume calls for the same id never both receive the challenge.
	Consume(ctx context.Context, id string) (*domain.Challenge, error)
}

// DefaultChallengeTTL is the default MFA challenge expiry.
const DefaultChallengeTTL = 5 * time.Minute
