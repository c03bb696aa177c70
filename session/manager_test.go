package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*Session

	insertErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[string]*Session)}
}

func (f *fakeStore) Insert(_ context.Context, sess *Session) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *sess
	f.sessions[sess.ID] = &clone
	return nil
}

func (f *fakeStore) Get(_ context.Context, id string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	clone := *sess
	return &clone, nil
}

func (f *fakeStore) ListByAccount(_ context.Context, accountID string) ([]*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*Session
	for _, sess := range f.sessions {
		if sess.AccountID == accountID {
			clone := *sess
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (f *fakeStore) SetStatus(_ context.Context, id string, status Status) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.Status = status
	return nil
}

func (f *fakeStore) ExpireActive(_ context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sess := range f.sessions {
		if sess.AccountID == accountID && sess.Status == StatusActive {
			sess.Status = StatusExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) DeactivateAll(_ context.Context, accountID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, sess := range f.sessions {
		if sess.AccountID == accountID && sess.Status != StatusInactive {
			sess.Status = StatusInactive
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) Touch(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[id]
	if !ok {
		return ErrSessionNotFound
	}
	sess.LastActiveAt = at
	return nil
}

func (f *fakeStore) LatestExpired(_ context.Context, accountID string) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *Session
	for _, sess := range f.sessions {
		if sess.AccountID != accountID || sess.Status != StatusExpired {
			continue
		}
		if latest == nil || sess.LastActiveAt.After(latest.LastActiveAt) {
			latest = sess
		}
	}
	if latest == nil {
		return nil, ErrSessionNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeStore) statusOf(id string) Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[id].Status
}

func TestCreate_ExpiresPriorActiveSessions(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{})
	ctx := context.Background()

	first, _, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("first create: %v", err)
	}
	second, _, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("second create: %v", err)
	}

	if store.statusOf(first.ID) != StatusExpired {
		t.Fatal("prior session not expired by new login")
	}
	if store.statusOf(second.ID) != StatusActive {
		t.Fatal("new session not active")
	}
}

func TestCreate_RawTokenValidatesOnce(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{})
	ctx := context.Background()

	sess, token, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if token == "" {
		t.Fatal("no raw token returned")
	}

	got, err := mgr.Validate(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if got.ID != sess.ID {
		t.Fatalf("validated %s, want %s", got.ID, sess.ID)
	}
}

func TestValidate_RejectsTamperedToken(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{})
	ctx := context.Background()

	_, token, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Flip a character in the secret portion.
	tampered := []byte(token)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	if _, err := mgr.Validate(ctx, string(tampered)); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("expected ErrRefreshMismatch, got %v", err)
	}

	if _, err := mgr.Validate(ctx, "garbage"); !errors.Is(err, ErrRefreshMismatch) {
		t.Fatalf("undecodable token: expected ErrRefreshMismatch, got %v", err)
	}
}

func TestValidate_LazyTTLExpiry(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{Expiry: time.Hour})
	ctx := context.Background()

	now := time.Now()
	mgr.now = func() time.Time { return now }

	sess, token, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	now = now.Add(2 * time.Hour)

	if _, err := mgr.Validate(ctx, token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	// The stale row was transitioned as a side effect.
	if store.statusOf(sess.ID) != StatusExpired {
		t.Fatal("stale session not marked expired")
	}
}

func TestInvalidateAll(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{})
	ctx := context.Background()

	_, token, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n, err := mgr.InvalidateAll(ctx, "u1")
	if err != nil {
		t.Fatalf("invalidate all: %v", err)
	}
	if n != 1 {
		t.Fatalf("invalidated %d sessions, want 1", n)
	}
	if _, err := mgr.Validate(ctx, token); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired after invalidation, got %v", err)
	}
}

func TestDetectConcurrentLogin(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{})
	ctx := context.Background()

	sess, _, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	// Only the session itself exists: nothing concurrent.
	if found, _ := mgr.DetectConcurrentLogin(ctx, "u1", sess.ID); found {
		t.Fatal("false positive with a single session")
	}

	// Plant a second active session behind the manager's back.
	store.Insert(ctx, &Session{
		ID:        "rogue",
		AccountID: "u1",
		Status:    StatusActive,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	if found, _ := mgr.DetectConcurrentLogin(ctx, "u1", sess.ID); !found {
		t.Fatal("concurrent active session not detected")
	}
}

func TestMonitorSuspiciousLogin(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{SuspiciousWindow: 5 * time.Minute})
	ctx := context.Background()

	var alerts []string
	mgr.Alert = func(_ context.Context, _ string, details string) {
		alerts = append(alerts, details)
	}

	// No prior expired session: nothing to flag.
	if flagged, err := mgr.MonitorSuspiciousLogin(ctx, "u1", "10.0.0.1", nil); err != nil || flagged {
		t.Fatalf("flagged=%v err=%v with no history", flagged, err)
	}

	if _, _, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", []byte{1}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := mgr.Create(ctx, "u1", "203.0.113.9", "agent", []byte{1}); err != nil {
		t.Fatalf("second create: %v", err)
	}

	flagged, err := mgr.MonitorSuspiciousLogin(ctx, "u1", "203.0.113.9", []byte{1})
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if !flagged {
		t.Fatal("rapid IP change not flagged")
	}
	if len(alerts) != 1 {
		t.Fatalf("alerts = %d, want 1", len(alerts))
	}

	// Same IP and fingerprint: no flag.
	flagged, err = mgr.MonitorSuspiciousLogin(ctx, "u1", "10.0.0.1", []byte{1})
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if flagged {
		t.Fatal("unchanged client flagged")
	}
}

func TestMonitorSuspiciousLogin_OutsideWindow(t *testing.T) {
	store := newFakeStore()
	mgr := NewManager(store, Config{SuspiciousWindow: 5 * time.Minute})
	ctx := context.Background()

	now := time.Now()
	mgr.now = func() time.Time { return now }

	if _, _, err := mgr.Create(ctx, "u1", "10.0.0.1", "agent", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := mgr.Create(ctx, "u1", "203.0.113.9", "agent", nil); err != nil {
		t.Fatalf("second create: %v", err)
	}

	now = now.Add(10 * time.Minute)

	flagged, err := mgr.MonitorSuspiciousLogin(ctx, "u1", "198.51.100.4", nil)
	if err != nil {
		t.Fatalf("monitor: %v", err)
	}
	if flagged {
		t.Fatal("stale session activity flagged outside the window")
	}
}
