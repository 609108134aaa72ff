// Package mfa issues and verifies single-use one-time codes for the second login factor.
package mfa

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"securebank/internal/mfa/domain"
	"securebank/internal/mfa/repository"
)

// Verification failures. Callers collapse all of them into one user-facing error.
var (
	ErrChallengeNotFound = errors.New("challenge not found or already used")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrCodeMismatch      = errors.New("verification code mismatch")
)

// Service issues challenges into a repository and verifies submitted codes against them.
// It never transmits codes; delivery is the caller's job.
type Service struct {
	repo     repository.Repository
	ttl      time.Duration
	nowF     func() time.Time
	generate func() (string, error)
}

// NewService returns a Service storing challenges in repo. ttl <= 0 uses DefaultChallengeTTL.
func NewService(repo repository.Repository, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = repository.DefaultChallengeTTL
	}
	return &Service{
		repo:     repo,
		ttl:      ttl,
		nowF:     func() time.Time { return time.Now().UTC() },
		generate: GenerateOTP,
	}
}

// TTL returns the validity window of issued challenges.
func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Issue creates and stores a challenge for accountID. The returned code is the only copy of
// the plaintext; the stored challenge holds its hash.
func (s *Service) Issue(ctx context.Context, accountID string) (*domain.Challenge, string, error) {
	code, err := s.generate()
	if err != nil {
		return nil, "", fmt.Errorf("generate otp: %w", err)
	}
	now := s.nowF()
	c := &domain.Challenge{
		ID:        uuid.New().String(),
		AccountID: accountID,
		CodeHash:  HashOTP(code),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
		State:     domain.StateIssued,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, "", fmt.Errorf("store challenge: %w", err)
	}
	return c, code, nil
}

// Verify consumes the challenge and checks submitted against it. The challenge is gone after
// this call whatever the outcome, so a second Verify always returns ErrChallengeNotFound.
// Whenever the challenge existed it returns the account it was issued for, also alongside
// ErrChallengeExpired and ErrCodeMismatch so callers can attribute the failure.
func (s *Service) Verify(ctx context.Context, challengeID, submitted string) (string, error) {
	c, err := s.repo.Consume(ctx, challengeID)
	if err != nil {
		return "", err
	}
	if c == nil {
		return "", ErrChallengeNotFound
	}
	if c.Resolve(s.nowF(), OTPEqual(submitted, c.CodeHash)) {
		return c.AccountID, nil
	}
	if c.State == domain.StateExpired {
		return c.AccountID, ErrChallengeExpired
	}
	return c.AccountID, ErrCodeMismatch
}

// Discard drops a challenge without verifying it, e.g. when the code could not be delivered.
func (s *Service) Discard(ctx context.Context, challengeID string) error {
	_, err := s.repo.Consume(ctx, challengeID)
	return err
}
