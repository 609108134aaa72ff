// Package audit records authentication and balance events for operators. Entries go to the
// audit_logs table and, when a LoggerProvider is configured, out as OTel log records.
package audit

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	otellog "go.opentelemetry.io/otel/log"

	"securebank/internal/audit/domain"
	auditrepo "securebank/internal/audit/repository"
)

// instrumentationName names the OTel logger audit records are emitted under.
const instrumentationName = "securebank.audit"

// AuditLogger writes a single audit event. Used by the auth and transaction code paths.
// LogEvent is best-effort: failures are logged and do not affect the caller.
type AuditLogger interface {
	LogEvent(ctx context.Context, accountID, action, detail string)
}

// Logger implements AuditLogger using the audit repository and an optional OTel logger.
type Logger struct {
	repo    auditrepo.Repository
	emitter otellog.Logger
	nowF    func() time.Time
}

// NewLogger returns an AuditLogger that persists to repo and emits through provider.
// Either may be nil; a Logger with neither does nothing.
func NewLogger(repo auditrepo.Repository, provider otellog.LoggerProvider) *Logger {
	l := &Logger{repo: repo, nowF: func() time.Time { return time.Now().UTC() }}
	if provider != nil {
		l.emitter = provider.Logger(instrumentationName)
	}
	return l
}

// LogEvent writes one audit log entry. Best-effort: errors are logged and not returned.
func (l *Logger) LogEvent(ctx context.Context, accountID, action, detail string) {
	entry := &domain.AuditLog{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Action:    action,
		Detail:    detail,
		CreatedAt: l.nowF(),
	}
	if l.repo != nil {
		if err := l.repo.Create(ctx, entry); err != nil {
			log.Printf("audit: failed to log event %s for %s: %v", action, accountID, err)
		}
	}
	if l.emitter != nil {
		l.emitter.Emit(ctx, toRecord(entry))
	}
}

func toRecord(entry *domain.AuditLog) otellog.Record {
	var rec otellog.Record
	rec.SetTimestamp(entry.CreatedAt)
	rec.SetSeverity(severityFor(entry.Action))
	rec.SetBody(otellog.StringValue(entry.Action))
	rec.AddAttributes(
		otellog.String("audit.id", entry.ID),
		otellog.String("account_id", entry.AccountID),
		otellog.String("action", entry.Action),
	)
	if entry.Detail != "" {
		rec.AddAttributes(otellog.String("detail", entry.Detail))
	}
	return rec
}

func severityFor(action string) otellog.Severity {
	switch action {
	case domain.ActionLoginFailure, domain.ActionTransactionDenied:
		return otellog.SeverityWarn
	case domain.ActionTransactionFailed:
		return otellog.SeverityError
	default:
		return otellog.SeverityInfo
	}
}
