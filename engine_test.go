package staffauth

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// testConfig returns the default configuration loosened for tests: no resend
// interval (individual tests opt back in) and short provider timeouts.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Delivery.ResendInterval = 0
	cfg.Provider.CallTimeout = time.Second
	cfg.Delivery.SendTimeout = time.Second
	return cfg
}

type fakeAccount struct {
	record   AccountRecord
	password string
}

// fakeProvider is an in-memory AccountProvider with per-method error
// injection and a lock-transition counter for race assertions.
type fakeProvider struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount

	getErr    error
	verifyErr error
	lockErr   error
	recordErr error

	lockCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{accounts: map[string]*fakeAccount{}}
}

func (p *fakeProvider) put(record AccountRecord, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts[record.AccountID] = &fakeAccount{record: record, password: password}
}

func (p *fakeProvider) get(accountID string) AccountRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.accounts[accountID].record
}

func (p *fakeProvider) lockTransitions() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lockCalls
}

func (p *fakeProvider) GetAccountByUsername(_ context.Context, username string) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return AccountRecord{}, p.getErr
	}
	for _, account := range p.accounts {
		if strings.EqualFold(account.record.Username, username) {
			return account.record, nil
		}
	}
	return AccountRecord{}, ErrAccountNotFound
}

func (p *fakeProvider) GetAccountByID(_ context.Context, accountID string) (AccountRecord, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return AccountRecord{}, p.getErr
	}
	account, ok := p.accounts[accountID]
	if !ok {
		return AccountRecord{}, ErrAccountNotFound
	}
	return account.record, nil
}

func (p *fakeProvider) VerifyPassword(_ context.Context, accountID, password string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifyErr != nil {
		return false, p.verifyErr
	}
	account, ok := p.accounts[accountID]
	if !ok {
		return false, ErrAccountNotFound
	}
	return account.password == password, nil
}

func (p *fakeProvider) SetLocked(_ context.Context, accountID string, locked bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lockErr != nil {
		return p.lockErr
	}
	account, ok := p.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	if locked && !account.record.Locked {
		p.lockCalls++
	}
	account.record.Locked = locked
	return nil
}

func (p *fakeProvider) RecordLogin(_ context.Context, accountID string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.recordErr != nil {
		return p.recordErr
	}
	account, ok := p.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	account.record.LastLoginAt = at
	return nil
}

type sentCode struct {
	phoneNumber string
	code        string
}

// fakeSender records delivered codes so tests can submit them.
type fakeSender struct {
	mu    sync.Mutex
	sends []sentCode
	err   error
}

func (s *fakeSender) SendCode(_ context.Context, phoneNumber, code string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sends = append(s.sends, sentCode{phoneNumber: phoneNumber, code: code})
	return "msg-test", nil
}

func (s *fakeSender) lastCode(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.sends) == 0 {
		t.Fatal("no code was sent")
	}
	return s.sends[len(s.sends)-1].code
}

func (s *fakeSender) sendCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sends)
}

func seedAccount(provider *fakeProvider) {
	provider.put(AccountRecord{
		AccountID:   "acct-1",
		Username:    "dana",
		PhoneNumber: "+15550100",
		Role:        "operator-admin",
	}, "correct-horse-battery")
}

func newTestEngine(t *testing.T, cfg Config, provider *fakeProvider) (*Engine, *fakeSender, *MemorySink, *redis.Client, func()) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	sender := &fakeSender{}
	sink := NewMemorySink()

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithProvider(provider).
		WithSender(sender).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("engine build failed: %v", err)
	}

	return engine, sender, sink, rdb, func() {
		_ = rdb.Close()
		mr.Close()
	}
}

// loginToCodeStep drives a sequence through username and password, returning
// the attempt token with the sequence awaiting code entry.
func loginToCodeStep(t *testing.T, engine *Engine, username, password string) string {
	t.Helper()

	step, err := engine.SubmitUsername(context.Background(), username)
	if err != nil {
		t.Fatalf("SubmitUsername failed: %v", err)
	}
	if step.NextStep != StepAwaitingPassword {
		t.Fatalf("expected awaiting_password, got %s", step.NextStep)
	}

	step, err = engine.SubmitPassword(context.Background(), step.AttemptToken, password)
	if err != nil {
		t.Fatalf("SubmitPassword failed: %v", err)
	}
	if step.NextStep != StepAwaitingCode {
		t.Fatalf("expected awaiting_code, got %s", step.NextStep)
	}
	return step.AttemptToken
}
