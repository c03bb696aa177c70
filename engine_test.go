package authgate

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/meridianlabs/authgate/session"
)

/*
====================================
SHARED TEST FIXTURES
====================================
*/

func testConfig() Config {
	cfg := defaultConfig()
	cfg.Lockout.MaxAttempts = 3
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1
	cfg.Token.AccessTTL = 5 * time.Minute
	cfg.Token.SigningMethod = "hs256"
	cfg.Token.PrivateKey = []byte("0123456789abcdef0123456789abcdef")
	cfg.Audit.Enabled = false
	return cfg
}

// mockAccounts is an in-memory AccountStore.
type mockAccounts struct {
	mu       sync.Mutex
	accounts map[string]*Account
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{accounts: make(map[string]*Account)}
}

func (m *mockAccounts) put(account *Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *account
	m.accounts[account.ID] = &clone
}

func (m *mockAccounts) get(id string) *Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account, ok := m.accounts[id]; ok {
		clone := *account
		return &clone
	}
	return nil
}

func (m *mockAccounts) findBy(match func(*Account) bool) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, account := range m.accounts {
		if match(account) {
			clone := *account
			return &clone, nil
		}
	}
	return nil, ErrAccountNotFound
}

func (m *mockAccounts) GetByEmail(_ context.Context, email string) (*Account, error) {
	return m.findBy(func(a *Account) bool { return strings.EqualFold(a.Email, email) })
}

func (m *mockAccounts) GetByID(_ context.Context, id string) (*Account, error) {
	return m.findBy(func(a *Account) bool { return a.ID == id })
}

func (m *mockAccounts) GetByUsername(_ context.Context, username string) (*Account, error) {
	return m.findBy(func(a *Account) bool { return a.Username == username })
}

func (m *mockAccounts) GetByPhone(_ context.Context, phone string) (*Account, error) {
	if phone == "" {
		return nil, ErrAccountNotFound
	}
	return m.findBy(func(a *Account) bool { return a.Phone == phone })
}

func (m *mockAccounts) Create(_ context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.accounts {
		if strings.EqualFold(existing.Email, account.Email) ||
			existing.Username == account.Username ||
			(account.Phone != "" && existing.Phone == account.Phone) {
			return ErrDuplicateAccount
		}
	}
	clone := *account
	m.accounts[account.ID] = &clone
	return nil
}

func (m *mockAccounts) UpdatePasswordHash(_ context.Context, id, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.PasswordHash = hash
	return nil
}

func (m *mockAccounts) UpdatePhone(_ context.Context, id, phone string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.Phone = phone
	return nil
}

func (m *mockAccounts) UpdateSecurityState(_ context.Context, id string, state SecurityState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.FailedLoginAttempts = state.FailedLoginAttempts
	account.LockedUntil = state.LockedUntil
	account.LockoutCount = state.LockoutCount
	account.Disabled = state.Disabled
	return nil
}

func (m *mockAccounts) RecordLogin(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return ErrAccountNotFound
	}
	account.FailedLoginAttempts = 0
	account.LockedUntil = nil
	account.LastLoginAt = &at
	return nil
}

// memSessionStore is an in-memory session.Store.
type memSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{sessions: make(map[string]*session.Session)}
}

func (m *memSessionStore) Insert(_ context.Context, sess *session.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sess
	m.sessions[sess.ID] = &clone
	return nil
}

func (m *memSessionStore) Get(_ context.Context, id string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (m *memSessionStore) ListByAccount(_ context.Context, accountID string) ([]*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*session.Session
	for _, sess := range m.sessions {
		if sess.AccountID == accountID {
			clone := *sess
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *memSessionStore) SetStatus(_ context.Context, id string, status session.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.Status = status
	return nil
}

func (m *memSessionStore) ExpireActive(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && sess.Status == session.StatusActive {
			sess.Status = session.StatusExpired
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) DeactivateAll(_ context.Context, accountID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && sess.Status != session.StatusInactive {
			sess.Status = session.StatusInactive
			n++
		}
	}
	return n, nil
}

func (m *memSessionStore) Touch(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sess, ok := m.sessions[id]
	if !ok {
		return session.ErrSessionNotFound
	}
	sess.LastActiveAt = at
	return nil
}

func (m *memSessionStore) LatestExpired(_ context.Context, accountID string) (*session.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var latest *session.Session
	for _, sess := range m.sessions {
		if sess.AccountID != accountID || sess.Status != session.StatusExpired {
			continue
		}
		if latest == nil || sess.LastActiveAt.After(latest.LastActiveAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, session.ErrSessionNotFound
	}
	clone := *latest
	return &clone, nil
}

func (m *memSessionStore) countByStatus(accountID string, status session.Status) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, sess := range m.sessions {
		if sess.AccountID == accountID && sess.Status == status {
			n++
		}
	}
	return n
}

// mockSubscriptions is an in-memory SubscriptionReader.
type mockSubscriptions struct {
	mu   sync.Mutex
	rows map[string]*Subscription // by account ID
}

func newMockSubscriptions() *mockSubscriptions {
	return &mockSubscriptions{rows: make(map[string]*Subscription)}
}

func (m *mockSubscriptions) put(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *sub
	m.rows[sub.AccountID] = &clone
}

func (m *mockSubscriptions) status(accountID string) SubscriptionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.rows[accountID]; ok {
		return sub.Status
	}
	return ""
}

func (m *mockSubscriptions) Latest(_ context.Context, accountID string) (*Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.rows[accountID]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	clone := *sub
	return &clone, nil
}

func (m *mockSubscriptions) MarkExpired(_ context.Context, subscriptionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sub := range m.rows {
		if sub.ID == subscriptionID {
			sub.Status = SubscriptionExpired
			return nil
		}
	}
	return ErrSubscriptionNotFound
}

// recordingNotifier captures every delivery so tests can assert on codes and
// notices without real email/SMS.
type recordingNotifier struct {
	mu sync.Mutex

	lockouts   []string // emails
	disabled   []string // emails
	changed    []string // emails
	alerts     []string // details
	resetCodes map[string]string // email -> code
	smsCodes   map[string]string // account ID -> code
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		resetCodes: make(map[string]string),
		smsCodes:   make(map[string]string),
	}
}

func (n *recordingNotifier) SendLockoutNotice(_ context.Context, email string, _ int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lockouts = append(n.lockouts, email)
	return nil
}

func (n *recordingNotifier) SendDisabledNotice(_ context.Context, email string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disabled = append(n.disabled, email)
	return nil
}

func (n *recordingNotifier) SendPasswordChangedNotice(_ context.Context, email string, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changed = append(n.changed, email)
	return nil
}

func (n *recordingNotifier) SendPasswordResetCode(_ context.Context, email, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.resetCodes[email] = code
	return nil
}

func (n *recordingNotifier) SendSecurityAlert(_ context.Context, _ string, details string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.alerts = append(n.alerts, details)
	return nil
}

func (n *recordingNotifier) SendVerificationCode(_ context.Context, accountID, _, code string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.smsCodes[accountID] = code
	return nil
}

func (n *recordingNotifier) smsCode(accountID string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.smsCodes[accountID]
}

func (n *recordingNotifier) resetCode(email string) string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.resetCodes[email]
}

type testEnv struct {
	engine   *Engine
	accounts *mockAccounts
	sessions *memSessionStore
	subs     *mockSubscriptions
	notifier *recordingNotifier
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		accounts: newMockAccounts(),
		sessions: newMemSessionStore(),
		subs:     newMockSubscriptions(),
		notifier: newRecordingNotifier(),
	}

	engine, err := New().
		WithConfig(cfg).
		WithAccounts(env.accounts).
		WithSessions(env.sessions).
		WithSubscriptions(env.subs).
		WithNotifier(env.notifier).
		Build()
	if err != nil {
		t.Fatalf("engine build: %v", err)
	}
	t.Cleanup(engine.Close)

	env.engine = engine
	return env
}

const testPassword = "correct-horse-9!"

// seedAccount creates a verified, active account with the shared test
// password and registers it in the mock store.
func (env *testEnv) seedAccount(t *testing.T, id, email string, mutate func(*Account)) *Account {
	t.Helper()

	hash, err := env.engine.hasher.Hash(testPassword)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	account := &Account{
		ID:           id,
		Email:        email,
		Username:     "user-" + id,
		PasswordHash: hash,
		Verified:     true,
		Active:       true,
	}
	if mutate != nil {
		mutate(account)
	}
	env.accounts.put(account)
	return account
}

func loginReq(email, password string) LoginRequest {
	return LoginRequest{
		Email:         email,
		Password:      password,
		CaptchaOK:     true,
		TermsAccepted: true,
		ClientIP:      "10.0.0.1",
		UserAgent:     "test-agent",
	}
}
