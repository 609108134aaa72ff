package domain

import "time"

// AuditLog is an operator-facing record of an authentication or balance event.
// Detail may carry the precise failure cause that is hidden from the customer.
type AuditLog struct {
	ID        string
	AccountID string
	Action    string
	Detail    string
	CreatedAt time.Time
}

// Audit actions.
const (
	ActionRegister          = "register"
	ActionLoginChallenge    = "login_challenge"
	ActionLoginSuccess      = "login_success"
	ActionLoginFailure      = "login_failure"
	ActionLogout            = "logout"
	ActionDeposit           = "deposit"
	ActionWithdraw          = "withdraw"
	ActionTransactionDenied = "transaction_denied"
	ActionTransactionFailed = "transaction_failed"
)
