// Package service implements balance mutation for authenticated sessions.
package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"securebank/internal/account/domain"
	"securebank/internal/account/repository"
	"securebank/internal/audit"
	auditdomain "securebank/internal/audit/domain"
	"securebank/internal/events"
	"securebank/internal/session"
	sessiondomain "securebank/internal/session/domain"
)

// Sentinel errors for the engine; the console maps them to customer messages.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrTransactionFailed = errors.New("transaction failed")
	ErrInvalidAmount     = errors.New("amount must be positive with at most two decimal places")
)

const instrumentationName = "securebank/account"

// Outcome labels for the transaction counter.
const (
	outcomeCommitted    = "committed"
	outcomeInsufficient = "insufficient_funds"
	outcomeFailed       = "failed"
)

// Engine applies deposits and withdrawals to the balance of the session's account.
// Each mutation is one repository transaction: lock the row, compute, write, commit.
type Engine struct {
	repo      repository.Repository
	audit     audit.AuditLogger
	publisher events.Publisher
	tracer    trace.Tracer
	counter   metric.Int64Counter
}

// NewEngine returns an Engine over repo. auditLogger and publisher may be nil.
func NewEngine(repo repository.Repository, auditLogger audit.AuditLogger, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	counter, err := otel.Meter(instrumentationName).Int64Counter(
		"securebank.transactions",
		metric.WithDescription("Balance mutations by kind and outcome"),
	)
	if err != nil {
		log.Printf("account: transaction counter: %v", err)
	}
	return &Engine{
		repo:      repo,
		audit:     auditLogger,
		publisher: publisher,
		tracer:    otel.Tracer(instrumentationName),
		counter:   counter,
	}
}

// Deposit adds amount to the balance. amount must be positive.
func (e *Engine) Deposit(ctx context.Context, sess *sessiondomain.Session, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return e.ApplyDelta(ctx, sess, amount)
}

// Withdraw subtracts amount from the balance. amount must be positive; the balance never goes negative.
func (e *Engine) Withdraw(ctx context.Context, sess *sessiondomain.Session, amount decimal.Decimal) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return e.ApplyDelta(ctx, sess, amount.Neg())
}

// ApplyDelta adds a signed amount to the balance under an exclusive row lock and returns the
// new balance. If the result would be negative nothing is written and ErrInsufficientFunds is
// returned. Store failures are wrapped in ErrTransactionFailed; the transaction is rolled back
// on every path that does not commit. Amounts finer than a cent are rejected with ErrInvalidAmount.
func (e *Engine) ApplyDelta(ctx context.Context, sess *sessiondomain.Session, amount decimal.Decimal) (decimal.Decimal, error) {
	accountID, err := session.RequireAuthenticated(sess)
	if err != nil {
		return decimal.Zero, err
	}
	if !amount.Equal(amount.Truncate(domain.BalanceScale)) {
		return decimal.Zero, ErrInvalidAmount
	}
	kind := auditdomain.ActionDeposit
	if amount.IsNegative() {
		kind = auditdomain.ActionWithdraw
	}

	ctx, span := e.tracer.Start(ctx, "account.ApplyDelta", trace.WithAttributes(
		attribute.String("account.id", accountID),
		attribute.String("transaction.kind", kind),
		attribute.String("transaction.amount", amount.StringFixed(2)),
	))
	defer span.End()

	balance, err := e.applyDelta(ctx, accountID, amount)
	switch {
	case err == nil:
		e.record(ctx, kind, outcomeCommitted)
		e.logEvent(ctx, accountID, kind, fmt.Sprintf("amount=%s balance=%s", amount.StringFixed(2), balance.StringFixed(2)))
		if perr := e.publisher.PublishBalanceChanged(ctx, accountID, amount, balance); perr != nil {
			log.Printf("account: publish balance change for %s: %v", accountID, perr)
		}
		return balance, nil
	case errors.Is(err, ErrInsufficientFunds):
		span.SetAttributes(attribute.String("transaction.outcome", outcomeInsufficient))
		e.record(ctx, kind, outcomeInsufficient)
		e.logEvent(ctx, accountID, auditdomain.ActionTransactionDenied, fmt.Sprintf("%s amount=%s: insufficient funds", kind, amount.StringFixed(2)))
		return decimal.Zero, err
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, "transaction failed")
		e.record(ctx, kind, outcomeFailed)
		e.logEvent(ctx, accountID, auditdomain.ActionTransactionFailed, fmt.Sprintf("%s amount=%s: %v", kind, amount.StringFixed(2), err))
		log.Printf("account: %s for %s failed: %v", kind, accountID, err)
		return decimal.Zero, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
}

func (e *Engine) applyDelta(ctx context.Context, accountID string, amount decimal.Decimal) (decimal.Decimal, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("begin: %w", err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if rerr := tx.Rollback(); rerr != nil && !errors.Is(rerr, repository.ErrTxDone) {
			log.Printf("account: rollback for %s: %v", accountID, rerr)
		}
	}()

	current, err := tx.LockBalance(ctx, accountID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("lock balance: %w", err)
	}
	candidate := current.Add(amount)
	if candidate.IsNegative() {
		return decimal.Zero, ErrInsufficientFunds
	}
	if err := tx.SetBalance(ctx, accountID, candidate); err != nil {
		return decimal.Zero, fmt.Errorf("set balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return decimal.Zero, fmt.Errorf("commit: %w", err)
	}
	committed = true
	return candidate, nil
}

// CheckBalance returns the committed balance of the session's account.
func (e *Engine) CheckBalance(ctx context.Context, sess *sessiondomain.Session) (decimal.Decimal, error) {
	accountID, err := session.RequireAuthenticated(sess)
	if err != nil {
		return decimal.Zero, err
	}
	ctx, span := e.tracer.Start(ctx, "account.CheckBalance", trace.WithAttributes(attribute.String("account.id", accountID)))
	defer span.End()

	bal, err := e.repo.GetBalance(ctx, accountID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "balance read failed")
		return decimal.Zero, fmt.Errorf("%w: %w", ErrTransactionFailed, err)
	}
	return bal, nil
}

func (e *Engine) record(ctx context.Context, kind, outcome string) {
	if e.counter == nil {
		return
	}
	e.counter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("outcome", outcome),
	))
}

func (e *Engine) logEvent(ctx context.Context, accountID, action, detail string) {
	if e.audit != nil {
		e.audit.LogEvent(ctx, accountID, action, detail)
	}
}
