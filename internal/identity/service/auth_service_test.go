package service

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	accountrepo "securebank/internal/account/repository"
	accountservice "securebank/internal/account/service"
	auditdomain "securebank/internal/audit/domain"
	"securebank/internal/devotp"
	"securebank/internal/mfa"
	mfadomain "securebank/internal/mfa/domain"
	mfarepo "securebank/internal/mfa/repository"
	"securebank/internal/mfa/notify"
	"securebank/internal/security"
	"securebank/internal/session"
	"securebank/internal/validate"
)

const (
	testAccount  = "AB12345"
	testPassword = "Str0ng!Pass"
)

// countingNotifier wraps a Notifier and counts deliveries, optionally failing them.
type countingNotifier struct {
	next notify.Notifier
	err  error

	mu       sync.Mutex
	calls    int
	lastCode string
}

func (n *countingNotifier) Deliver(ctx context.Context, accountID, code string) error {
	n.mu.Lock()
	n.calls++
	n.lastCode = code
	n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	return n.next.Deliver(ctx, accountID, code)
}

type auditEntry struct {
	accountID, action, detail string
}

type captureAudit struct {
	mu      sync.Mutex
	entries []auditEntry
}

func (c *captureAudit) LogEvent(ctx context.Context, accountID, action, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, auditEntry{accountID, action, detail})
}

func (c *captureAudit) last() auditEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return auditEntry{}
	}
	return c.entries[len(c.entries)-1]
}

type capturePublisher struct {
	mu      sync.Mutex
	logins  int
	logouts int
}

func (p *capturePublisher) PublishLogin(context.Context, string, string) error {
	p.mu.Lock()
	p.logins++
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) PublishLogout(context.Context, string, string) error {
	p.mu.Lock()
	p.logouts++
	p.mu.Unlock()
	return nil
}

func (p *capturePublisher) PublishBalanceChanged(context.Context, string, decimal.Decimal, decimal.Decimal) error {
	return nil
}

// trackingChallenges counts challenges that were created and not yet consumed.
type trackingChallenges struct {
	*mfarepo.MemoryRepository
	mu   sync.Mutex
	live map[string]bool
}

func (r *trackingChallenges) Create(ctx context.Context, c *mfadomain.Challenge) error {
	if err := r.MemoryRepository.Create(ctx, c); err != nil {
		return err
	}
	r.mu.Lock()
	r.live[c.ID] = true
	r.mu.Unlock()
	return nil
}

func (r *trackingChallenges) Consume(ctx context.Context, id string) (*mfadomain.Challenge, error) {
	c, err := r.MemoryRepository.Consume(ctx, id)
	if c != nil {
		r.mu.Lock()
		delete(r.live, id)
		r.mu.Unlock()
	}
	return c, err
}

func (r *trackingChallenges) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.live)
}

type harness struct {
	svc       *AuthService
	accounts  *accountrepo.MemoryRepository
	mfaRepo   *trackingChallenges
	codes     *devotp.MemoryStore
	notifier  *countingNotifier
	audit     *captureAudit
	publisher *capturePublisher
}

func newHarness(t *testing.T, opts Options, ttl time.Duration) *harness {
	t.Helper()
	cfg := security.DefaultDeriverConfig()
	cfg.Iterations = security.MinIterations
	deriver, err := security.NewDeriver(cfg)
	if err != nil {
		t.Fatalf("NewDeriver: %v", err)
	}
	h := &harness{
		accounts:  accountrepo.NewMemoryRepository(),
		mfaRepo:   &trackingChallenges{MemoryRepository: mfarepo.NewMemoryRepository(), live: make(map[string]bool)},
		codes:     devotp.NewMemoryStore(),
		audit:     &captureAudit{},
		publisher: &capturePublisher{},
	}
	h.notifier = &countingNotifier{next: notify.NewCaptureNotifier(h.codes, ttl)}
	h.svc = NewAuthService(h.accounts, deriver, mfa.NewService(h.mfaRepo, ttl), h.notifier, h.audit, h.publisher, opts)
	return h
}

func (h *harness) register(t *testing.T, balance string) {
	t.Helper()
	if err := h.svc.Register(context.Background(), testAccount, testPassword, decimal.RequireFromString(balance)); err != nil {
		t.Fatalf("Register: %v", err)
	}
}

// deliveredCode submits whatever code was captured for the account.
func (h *harness) deliveredCode(ctx context.Context) (string, error) {
	code, ok := h.codes.Take(ctx, testAccount)
	if !ok {
		return "", errors.New("no code delivered")
	}
	return code, nil
}

func fixedCode(code string) CodeSubmitter {
	return func(context.Context) (string, error) { return code, nil }
}

func TestRegister(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	h.register(t, "100.00")

	acct, err := h.accounts.GetByID(context.Background(), testAccount)
	if err != nil || acct == nil {
		t.Fatalf("GetByID: %v, %v", acct, err)
	}
	if len(acct.Salt) != 16 || len(acct.DerivedKey) != 32 {
		t.Errorf("salt, key lengths = %d, %d; want 16, 32", len(acct.Salt), len(acct.DerivedKey))
	}
	if string(acct.DerivedKey) == testPassword {
		t.Error("password must not be stored")
	}
	if !acct.Balance.Equal(decimal.RequireFromString("100")) {
		t.Errorf("balance = %s, want 100", acct.Balance)
	}
	if h.audit.last().action != auditdomain.ActionRegister {
		t.Errorf("last audit action = %q, want register", h.audit.last().action)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "1")
	err := h.svc.Register(context.Background(), testAccount, "An0ther!Pass", decimal.NewFromInt(5))
	if !errors.Is(err, ErrAccountExists) {
		t.Fatalf("err = %v, want ErrAccountExists", err)
	}
}

func TestRegister_RejectsBadInput(t *testing.T) {
	h := newHarness(t, Options{MaxAmount: decimal.NewFromInt(1000)}, 5*time.Minute)
	ctx := context.Background()
	testCases := []struct {
		name      string
		accountID string
		password  string
		deposit   string
		wantErr   error
	}{
		{"bad account", "ab1", testPassword, "10", validate.ErrAccountFormat},
		{"short password", testAccount, "Aa1!", "10", validate.ErrPasswordShort},
		{"weak password", testAccount, "password1", "10", validate.ErrPasswordShape},
		{"zero deposit", testAccount, testPassword, "0", validate.ErrAmountRange},
		{"fractional cent", testAccount, testPassword, "1.001", validate.ErrAmountScale},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := h.svc.Register(ctx, tc.accountID, tc.password, decimal.RequireFromString(tc.deposit))
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("err = %v, want %v", err, tc.wantErr)
			}
		})
	}
	if err := h.svc.Register(ctx, testAccount, testPassword, decimal.NewFromInt(1001)); err == nil {
		t.Error("deposit over MaxAmount should be rejected")
	}
	if acct, _ := h.accounts.GetByID(ctx, testAccount); acct != nil {
		t.Error("no account should have been created")
	}
}

func TestLogin_Success(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	h.register(t, "100.00")

	sess, err := h.svc.Login(context.Background(), testAccount, testPassword, h.deliveredCode)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	id, err := session.RequireAuthenticated(sess)
	if err != nil || id != testAccount {
		t.Fatalf("RequireAuthenticated = %q, %v", id, err)
	}
	if h.notifier.calls != 1 {
		t.Errorf("deliveries = %d, want 1", h.notifier.calls)
	}
	if h.mfaRepo.Len() != 0 {
		t.Errorf("pending challenges = %d, want 0 after verification", h.mfaRepo.Len())
	}
	if h.publisher.logins != 1 {
		t.Errorf("login events = %d, want 1", h.publisher.logins)
	}
	if h.audit.last().action != auditdomain.ActionLoginSuccess {
		t.Errorf("last audit action = %q", h.audit.last().action)
	}
}

func TestLogin_WrongPasswordIssuesNoChallenge(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	h.register(t, "100.00")

	submitted := false
	_, err := h.svc.Login(context.Background(), testAccount, "Wr0ng!Pass", func(context.Context) (string, error) {
		submitted = true
		return "", nil
	})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("err = %v, want ErrInvalidCredentials", err)
	}
	if submitted {
		t.Error("code submitter should not be called")
	}
	if h.notifier.calls != 0 {
		t.Errorf("deliveries = %d, want 0", h.notifier.calls)
	}
	if h.mfaRepo.Len() != 0 {
		t.Errorf("pending challenges = %d, want 0", h.mfaRepo.Len())
	}
	if got := h.audit.last(); got.action != auditdomain.ActionLoginFailure || got.detail != "wrong password" {
		t.Errorf("last audit = %+v", got)
	}
}

func TestLogin_UnknownAccount(t *testing.T) {
	testCases := []struct {
		name    string
		uniform bool
		wantErr error
	}{
		{"uniform", true, ErrInvalidCredentials},
		{"distinct", false, ErrAccountNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, Options{UniformErrors: tc.uniform}, 5*time.Minute)
			_, err := h.svc.Login(context.Background(), "ZZ99999", testPassword, fixedCode("123456"))
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if h.notifier.calls != 0 {
				t.Errorf("deliveries = %d, want 0", h.notifier.calls)
			}
			if got := h.audit.last(); got.detail != "account not found" {
				t.Errorf("audit detail = %q, want the precise cause", got.detail)
			}
		})
	}
}

func TestLogin_WrongCode(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	h.register(t, "100.00")
	ctx := context.Background()

	var challengeCode string
	sess, err := h.svc.Login(ctx, testAccount, testPassword, func(ctx context.Context) (string, error) {
		code, _ := h.deliveredCode(ctx)
		challengeCode = code
		if code == "000000" {
			return "111111", nil
		}
		return "000000", nil
	})
	if !errors.Is(err, ErrInvalidVerificationCode) {
		t.Fatalf("err = %v, want ErrInvalidVerificationCode", err)
	}
	if sess != nil {
		t.Error("no session should be created")
	}
	if challengeCode == "" {
		t.Fatal("a code should have been delivered")
	}
	if h.mfaRepo.Len() != 0 {
		t.Error("failed verification should consume the challenge")
	}
	if got := h.audit.last(); got.accountID != testAccount || got.action != auditdomain.ActionLoginFailure {
		t.Errorf("last audit = %+v", got)
	}
	if h.publisher.logins != 0 {
		t.Errorf("login events = %d, want 0", h.publisher.logins)
	}
}

func TestLogin_ExpiredCode(t *testing.T) {
	h := newHarness(t, Options{}, time.Millisecond)
	h.register(t, "100.00")

	_, err := h.svc.Login(context.Background(), testAccount, testPassword, func(ctx context.Context) (string, error) {
		time.Sleep(5 * time.Millisecond)
		return h.notifier.lastCode, nil
	})
	if !errors.Is(err, ErrInvalidVerificationCode) {
		t.Fatalf("err = %v, want ErrInvalidVerificationCode", err)
	}
}

func TestLogin_DeliveryFailed(t *testing.T) {
	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "100.00")
	h.notifier.err = errors.New("gateway unavailable")

	_, err := h.svc.Login(context.Background(), testAccount, testPassword, fixedCode("123456"))
	if !errors.Is(err, ErrDeliveryFailed) {
		t.Fatalf("err = %v, want ErrDeliveryFailed", err)
	}
	if h.mfaRepo.Len() != 0 {
		t.Error("undelivered challenge should be discarded")
	}
}

func TestLogin_SubmitterError(t *testing.T) {
	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "100.00")

	_, err := h.svc.Login(context.Background(), testAccount, testPassword, func(context.Context) (string, error) {
		return "", errors.New("input closed")
	})
	if err == nil {
		t.Fatal("Login should fail when no code can be read")
	}
	if h.mfaRepo.Len() != 0 {
		t.Error("abandoned challenge should be discarded")
	}
}

// unconsumableRepo stores challenges but cannot hand them back.
type unconsumableRepo struct {
	*mfarepo.MemoryRepository
}

func (unconsumableRepo) Consume(context.Context, string) (*mfadomain.Challenge, error) {
	return nil, errors.New("challenge backend down")
}

func TestLogin_SubmitterErrorLogsDiscardFailure(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "100.00")
	svc := NewAuthService(h.accounts, h.svc.deriver, mfa.NewService(unconsumableRepo{h.mfaRepo.MemoryRepository}, 5*time.Minute),
		h.notifier, h.audit, h.publisher, Options{})

	_, err := svc.Login(context.Background(), testAccount, testPassword, func(context.Context) (string, error) {
		return "", errors.New("input closed")
	})
	if err == nil {
		t.Fatal("Login should fail when no code can be read")
	}
	if !strings.Contains(buf.String(), "discard unanswered challenge") {
		t.Errorf("log output = %q, want the discard failure", buf.String())
	}
}

func TestNewAuthService_PreparesDummyCredential(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	cfg := h.svc.deriver.Config()
	if len(h.svc.dummySalt) != cfg.SaltLength {
		t.Fatalf("dummy salt length = %d, want %d", len(h.svc.dummySalt), cfg.SaltLength)
	}
	if len(h.svc.dummyKey) != cfg.KeyLength {
		t.Fatalf("dummy key length = %d, want %d", len(h.svc.dummyKey), cfg.KeyLength)
	}
	salt, key := &h.svc.dummySalt[0], &h.svc.dummyKey[0]

	for i := 0; i < 2; i++ {
		if _, err := h.svc.BeginLogin(context.Background(), "ZZ99999", testPassword); !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("BeginLogin err = %v, want ErrInvalidCredentials", err)
		}
	}
	if &h.svc.dummySalt[0] != salt || &h.svc.dummyKey[0] != key {
		t.Error("unknown-account logins should reuse the credential prepared at construction")
	}
}

func TestBeginCompleteLogin_ChallengeIsSingleUse(t *testing.T) {
	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "100.00")
	ctx := context.Background()

	challengeID, err := h.svc.BeginLogin(ctx, testAccount, testPassword)
	if err != nil {
		t.Fatalf("BeginLogin: %v", err)
	}
	code, _ := h.codes.Take(ctx, testAccount)
	if _, err := h.svc.CompleteLogin(ctx, challengeID, code); err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	if _, err := h.svc.CompleteLogin(ctx, challengeID, code); !errors.Is(err, ErrInvalidVerificationCode) {
		t.Errorf("second CompleteLogin err = %v, want ErrInvalidVerificationCode", err)
	}
}

func TestLogout(t *testing.T) {
	h := newHarness(t, Options{}, 5*time.Minute)
	h.register(t, "100.00")
	ctx := context.Background()
	sess, err := h.svc.Login(ctx, testAccount, testPassword, h.deliveredCode)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	h.svc.Logout(ctx, sess)
	h.svc.Logout(ctx, sess)
	h.svc.Logout(ctx, nil)

	if _, err := session.RequireAuthenticated(sess); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("err = %v, want ErrNotAuthenticated", err)
	}
	if h.publisher.logouts != 1 {
		t.Errorf("logout events = %d, want 1", h.publisher.logouts)
	}
	got := h.audit.last()
	if got.action != auditdomain.ActionLogout {
		t.Fatalf("last audit action = %q, want logout", got.action)
	}
	if !strings.HasPrefix(got.detail, "session="+sess.ID+" duration=") {
		t.Errorf("audit detail = %q, want session id and duration", got.detail)
	}
}

func TestEndToEnd(t *testing.T) {
	h := newHarness(t, Options{UniformErrors: true}, 5*time.Minute)
	h.register(t, "100.00")
	ctx := context.Background()
	engine := accountservice.NewEngine(h.accounts, nil, nil)
	dec := decimal.RequireFromString

	sess, err := h.svc.Login(ctx, testAccount, testPassword, h.deliveredCode)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	bal, err := engine.Deposit(ctx, sess, dec("50.00"))
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if !bal.Equal(dec("150.00")) {
		t.Errorf("after deposit = %s, want 150.00", bal)
	}

	if _, err := engine.Withdraw(ctx, sess, dec("200.00")); !errors.Is(err, accountservice.ErrInsufficientFunds) {
		t.Fatalf("Withdraw 200 err = %v, want ErrInsufficientFunds", err)
	}
	bal, err = engine.CheckBalance(ctx, sess)
	if err != nil {
		t.Fatalf("CheckBalance: %v", err)
	}
	if !bal.Equal(dec("150.00")) {
		t.Errorf("after failed withdraw = %s, want 150.00", bal)
	}

	bal, err = engine.Withdraw(ctx, sess, dec("150.00"))
	if err != nil {
		t.Fatalf("Withdraw 150: %v", err)
	}
	if bal.StringFixed(2) != "0.00" {
		t.Errorf("after withdraw = %s, want 0.00", bal.StringFixed(2))
	}

	h.svc.Logout(ctx, sess)
	if _, err := engine.CheckBalance(ctx, sess); !errors.Is(err, session.ErrNotAuthenticated) {
		t.Errorf("CheckBalance after logout err = %v, want ErrNotAuthenticated", err)
	}
}
