// Package notify delivers one-time codes to account holders. Implementations must not log codes.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"securebank/internal/devotp"
)

// Notifier hands a one-time code to the account holder. A non-nil error means the code did
// not reach them and the login must not continue.
type Notifier interface {
	Deliver(ctx context.Context, accountID, code string) error
}

// ConsoleNotifier writes the code to a terminal, standing in for SMS or email delivery.
type ConsoleNotifier struct {
	mu       sync.Mutex
	w        io.Writer
	validFor time.Duration
}

// NewConsoleNotifier returns a notifier that writes to w and states the code's validity window.
func NewConsoleNotifier(w io.Writer, validFor time.Duration) *ConsoleNotifier {
	return &ConsoleNotifier{w: w, validFor: validFor}
}

// Deliver prints the code for accountID.
func (n *ConsoleNotifier) Deliver(ctx context.Context, accountID, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, err := fmt.Fprintf(n.w, "MFA code for %s: %s\nThis code is valid for %s\n",
		accountID, code, validity(n.validFor))
	return err
}

// validity renders d in whole minutes when it is one, otherwise as a Go duration (e.g. "1m30s").
func validity(d time.Duration) string {
	switch {
	case d == time.Minute:
		return "1 minute"
	case d > 0 && d%time.Minute == 0:
		return fmt.Sprintf("%d minutes", int(d/time.Minute))
	default:
		return d.String()
	}
}

// CaptureNotifier keeps codes in a devotp.Store so tests and dev tooling can read them back.
// Never enable outside development.
type CaptureNotifier struct {
	store    devotp.Store
	validFor time.Duration
	nowF     func() time.Time
}

// NewCaptureNotifier returns a notifier that records each code in store for validFor.
func NewCaptureNotifier(store devotp.Store, validFor time.Duration) *CaptureNotifier {
	return &CaptureNotifier{store: store, validFor: validFor, nowF: time.Now}
}

// Deliver records the code as the latest one for accountID.
func (n *CaptureNotifier) Deliver(ctx context.Context, accountID, code string) error {
	n.store.Put(ctx, accountID, code, n.nowF().Add(n.validFor))
	return nil
}
