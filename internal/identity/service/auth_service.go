// Package service implements account registration and two-factor login.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"

	accountdomain "securebank/internal/account/domain"
	accountrepo "securebank/internal/account/repository"
	"securebank/internal/audit"
	auditdomain "securebank/internal/audit/domain"
	"securebank/internal/events"
	"securebank/internal/mfa"
	"securebank/internal/mfa/notify"
	"securebank/internal/security"
	"securebank/internal/session"
	sessiondomain "securebank/internal/session/domain"
	"securebank/internal/validate"
)

// Sentinel errors for the auth service; the console maps them to customer messages.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	ErrDeliveryFailed          = errors.New("verification code could not be delivered")
	ErrAccountExists           = errors.New("account already exists")
)

// CodeSubmitter obtains the one-time code the account holder entered, after delivery.
type CodeSubmitter func(ctx context.Context) (string, error)

// AccountRepo is the minimal account repository needed by the auth service.
type AccountRepo interface {
	GetByID(ctx context.Context, id string) (*accountdomain.Account, error)
	Create(ctx context.Context, a *accountdomain.Account) error
}

// Options tunes externally visible login behavior.
type Options struct {
	// UniformErrors reports an unknown account as ErrInvalidCredentials, after a derivation of
	// the same cost as a real check. When false, ErrAccountNotFound is returned instead.
	UniformErrors bool
	// MaxAmount caps the initial deposit at registration. Zero means no cap.
	MaxAmount decimal.Decimal
}

// AuthService implements register, two-factor login and logout.
type AuthService struct {
	accounts   AccountRepo
	deriver    *security.Deriver
	challenges *mfa.Service
	notifier   notify.Notifier
	audit      audit.AuditLogger
	publisher  events.Publisher
	opts       Options

	// dummySalt and dummyKey stand in for a stored credential when the account is unknown.
	dummySalt []byte
	dummyKey  []byte
}

// NewAuthService returns an AuthService with the given dependencies. auditLogger and publisher may be nil.
func NewAuthService(
	accounts AccountRepo,
	deriver *security.Deriver,
	challenges *mfa.Service,
	notifier notify.Notifier,
	auditLogger audit.AuditLogger,
	publisher events.Publisher,
	opts Options,
) *AuthService {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	s := &AuthService{
		accounts:   accounts,
		deriver:    deriver,
		challenges: challenges,
		notifier:   notifier,
		audit:      auditLogger,
		publisher:  publisher,
		opts:       opts,
	}
	if deriver != nil {
		if salt, err := deriver.GenerateSalt(); err == nil {
			s.dummySalt = salt
			s.dummyKey = make([]byte, deriver.Config().KeyLength)
		} else {
			log.Printf("identity: dummy credential unavailable, unknown-account logins skip derivation: %v", err)
		}
	}
	return s
}

// Register creates an account with a fresh salt and the derived key of password.
// Format problems are returned as the validate package's errors.
func (s *AuthService) Register(ctx context.Context, accountID, password string, initialDeposit decimal.Decimal) error {
	if err := validate.AccountFormat(accountID); err != nil {
		return err
	}
	if err := validate.PasswordShape(password); err != nil {
		return err
	}
	max := s.opts.MaxAmount
	if !max.IsPositive() {
		max = initialDeposit
	}
	if err := validate.Amount(initialDeposit, max); err != nil {
		return err
	}

	salt, err := s.deriver.GenerateSalt()
	if err != nil {
		return err
	}
	key, err := s.deriver.Derive(password, salt)
	if err != nil {
		return err
	}
	acct := &accountdomain.Account{
		ID:         accountID,
		DerivedKey: key,
		Salt:       salt,
		Balance:    initialDeposit.Round(accountdomain.BalanceScale),
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		if errors.Is(err, accountrepo.ErrAccountExists) {
			return ErrAccountExists
		}
		return fmt.Errorf("create account: %w", err)
	}
	s.logEvent(ctx, accountID, auditdomain.ActionRegister, "initial_deposit="+acct.Balance.StringFixed(2))
	return nil
}

// Login runs both factors in one call: password check, code delivery, code submission and
// verification. No session exists unless every step succeeds.
func (s *AuthService) Login(ctx context.Context, accountID, password string, submit CodeSubmitter) (*sessiondomain.Session, error) {
	challengeID, err := s.BeginLogin(ctx, accountID, password)
	if err != nil {
		return nil, err
	}
	code, err := submit(ctx)
	if err != nil {
		if derr := s.challenges.Discard(ctx, challengeID); derr != nil {
			log.Printf("identity: discard unanswered challenge %s: %v", challengeID, derr)
		}
		return nil, fmt.Errorf("read verification code: %w", err)
	}
	return s.CompleteLogin(ctx, challengeID, code)
}

// BeginLogin checks the password and, only if it matches, issues and delivers a one-time code.
// It returns the challenge id to pass to CompleteLogin.
func (s *AuthService) BeginLogin(ctx context.Context, accountID, password string) (string, error) {
	acct, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("lookup account: %w", err)
	}
	if acct == nil {
		s.equalizeTiming(password)
		s.logEvent(ctx, accountID, auditdomain.ActionLoginFailure, "account not found")
		if s.opts.UniformErrors {
			return "", ErrInvalidCredentials
		}
		return "", ErrAccountNotFound
	}

	ok, err := s.deriver.Verify(password, acct.DerivedKey, acct.Salt)
	if err != nil {
		return "", err
	}
	if !ok {
		s.logEvent(ctx, accountID, auditdomain.ActionLoginFailure, "wrong password")
		return "", ErrInvalidCredentials
	}

	c, code, err := s.challenges.Issue(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("issue challenge: %w", err)
	}
	if err := s.notifier.Deliver(ctx, accountID, code); err != nil {
		if derr := s.challenges.Discard(ctx, c.ID); derr != nil {
			log.Printf("identity: discard undelivered challenge %s: %v", c.ID, derr)
		}
		s.logEvent(ctx, accountID, auditdomain.ActionLoginFailure, "code delivery failed: "+err.Error())
		return "", fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}
	s.logEvent(ctx, accountID, auditdomain.ActionLoginChallenge, "challenge="+c.ID)
	return c.ID, nil
}

// CompleteLogin verifies code against the challenge and, on success, returns a new session.
// The challenge is consumed whatever the outcome.
func (s *AuthService) CompleteLogin(ctx context.Context, challengeID, code string) (*sessiondomain.Session, error) {
	accountID, err := s.challenges.Verify(ctx, challengeID, code)
	if err != nil {
		if errors.Is(err, mfa.ErrChallengeNotFound) || errors.Is(err, mfa.ErrChallengeExpired) || errors.Is(err, mfa.ErrCodeMismatch) {
			s.logEvent(ctx, accountID, auditdomain.ActionLoginFailure, err.Error())
			return nil, ErrInvalidVerificationCode
		}
		return nil, fmt.Errorf("verify challenge: %w", err)
	}

	sess := session.Authenticate(accountID)
	s.logEvent(ctx, accountID, auditdomain.ActionLoginSuccess, "session="+sess.ID)
	if err := s.publisher.PublishLogin(ctx, accountID, sess.ID); err != nil {
		log.Printf("identity: publish login for %s: %v", accountID, err)
	}
	return sess, nil
}

// Logout ends sess. Logging out a nil or already ended session does nothing.
func (s *AuthService) Logout(ctx context.Context, sess *sessiondomain.Session) {
	if !session.Logout(sess) {
		return
	}
	detail := "session=" + sess.ID
	if at, ok := sess.LoggedOutAt(); ok {
		detail += " duration=" + at.Sub(sess.AuthenticatedAt).Round(time.Second).String()
	}
	s.logEvent(ctx, sess.AccountID, auditdomain.ActionLogout, detail)
	if err := s.publisher.PublishLogout(ctx, sess.AccountID, sess.ID); err != nil {
		log.Printf("identity: publish logout for %s: %v", sess.AccountID, err)
	}
}

// equalizeTiming spends one derivation on a throwaway key so an unknown account costs the same
// as a wrong password.
func (s *AuthService) equalizeTiming(password string) {
	if s.dummySalt == nil {
		return
	}
	_, _ = s.deriver.Verify(password, s.dummyKey, s.dummySalt)
}

func (s *AuthService) logEvent(ctx context.Context, accountID, action, detail string) {
	if s.audit != nil {
		s.audit.LogEvent(ctx, accountID, action, detail)
	}
}
