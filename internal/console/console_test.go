package console

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	accountrepo "securebank/internal/account/repository"
	accountservice "securebank/internal/account/service"
	"securebank/internal/devotp"
	identityservice "securebank/internal/identity/service"
	"securebank/internal/mfa"
	mfarepo "securebank/internal/mfa/repository"
	"securebank/internal/mfa/notify"
	"securebank/internal/security"
)

// scriptReader yields one line per Read, producing each line only when it is asked for so
// a step can depend on what earlier steps did (e.g. the delivered code).
type scriptReader struct {
	lines   []func() string
	pending []byte
}

func (r *scriptReader) Read(p []byte) (int, error) {
	if len(r.pending) == 0 {
		if len(r.lines) == 0 {
			return 0, io.EOF
		}
		r.pending = []byte(r.lines[0]() + "\n")
		r.lines = r.lines[1:]
	}
	n := copy(p, r.pending)
	r.pending = r.pending[n:]
	return n, nil
}

func script(steps ...any) *scriptReader {
	r := &scriptReader{}
	for _, s := range steps {
		switch v := s.(type) {
		case string:
			r.lines = append(r.lines, func() string { return v })
		case func() string:
			r.lines = append(r.lines, v)
		}
	}
	return r
}

func newTestConsole(t *testing.T, in io.Reader, out io.Writer) (*Console, *devotp.MemoryStore) {
	t.Helper()
	cfg := security.DefaultDeriverConfig()
	cfg.Iterations = security.MinIterations
	deriver, err := security.NewDeriver(cfg)
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	codes := devotp.NewMemoryStore()
	accounts := accountrepo.NewMemoryRepository()
	auth := identityservice.NewAuthService(
		accounts,
		deriver,
		mfa.NewService(mfarepo.NewMemoryRepository(), 5*time.Minute),
		notify.NewCaptureNotifier(codes, 5*time.Minute),
		nil, nil,
		identityservice.Options{UniformErrors: true, MaxAmount: decimal.NewFromInt(1000000)},
	)
	engine := accountservice.NewEngine(accounts, nil, nil)
	return New(in, out, auth, engine, decimal.NewFromInt(1000000)), codes
}

func assertOutput(t *testing.T, out string, want ...string) {
	t.Helper()
	rest := out
	for _, w := range want {
		i := strings.Index(rest, w)
		if i < 0 {
			t.Fatalf("output missing %q (in order); got:\n%s", w, out)
		}
		rest = rest[i+len(w):]
	}
}

func TestConsole_EndToEnd(t *testing.T) {
	var out bytes.Buffer
	var codes *devotp.MemoryStore
	code := func() string {
		c, _ := codes.Take(context.Background(), "AB12345")
		return c
	}
	in := script(
		"1", "AB12345", "Str0ng!Pass", "100.00",
		"2", "AB12345", "Str0ng!Pass", code,
		"2", "50.00",
		"3", "200.00",
		"1",
		"3", "150.00",
		"4",
		"2", "AB12345", "Wr0ng!Pass",
		"3",
	)
	c, store := newTestConsole(t, in, &out)
	codes = store

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertOutput(t, out.String(),
		"Welcome to Secure Bank System",
		"Account created successfully",
		"Enter Verification Code: ",
		"Login successful!",
		"Transaction successful. New balance: $150.00",
		"Insufficient funds",
		"Current balance: $150.00",
		"Transaction successful. New balance: $0.00",
		"Logged out successfully",
		"Invalid credentials",
		"Goodbye!",
	)
}

func TestConsole_WrongCode(t *testing.T) {
	var out bytes.Buffer
	var codes *devotp.MemoryStore
	wrong := func() string {
		c, _ := codes.Take(context.Background(), "AB12345")
		if c == "000000" {
			return "111111"
		}
		return "000000"
	}
	in := script(
		"1", "AB12345", "Str0ng!Pass", "10",
		"2", "AB12345", "Str0ng!Pass", wrong,
		"3",
	)
	c, store := newTestConsole(t, in, &out)
	codes = store

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertOutput(t, out.String(), "Invalid verification code", "Goodbye!")
	if strings.Contains(out.String(), "Login successful!") {
		t.Error("login should not succeed with a wrong code")
	}
}

func TestConsole_InvalidInput(t *testing.T) {
	var out bytes.Buffer
	in := script(
		"abc",
		"9",
		"1", "ab1",
		"1", "AB12345", "weak",
		"1", "AB12345", "Str0ng!Pass", "lots",
		"1", "AB12345", "Str0ng!Pass", "-5",
		"1", "AB12345", "Str0ng!Pass", "5",
		"1", "AB12345", "Str0ng!Pass", "5",
		"2", "ZZ99999", "Str0ng!Pass",
	)
	c, _ := newTestConsole(t, in, &out)

	// Input ends without choosing Exit.
	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	assertOutput(t, out.String(),
		"Please enter a valid number",
		"Invalid option. Try again.",
		"Invalid account number format",
		"Password does not meet requirements",
		"Invalid amount format",
		"Invalid amount",
		"Account created successfully",
		"Account already exists",
		"Invalid credentials",
	)
}

func TestConsole_InputEndsDuringLogin(t *testing.T) {
	var out bytes.Buffer
	in := script("1", "AB12345", "Str0ng!Pass", "5", "2", "AB12345", "Str0ng!Pass")
	c, _ := newTestConsole(t, in, &out)

	if err := c.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.Contains(out.String(), "Login successful!") {
		t.Error("login should not succeed without a code")
	}
}
