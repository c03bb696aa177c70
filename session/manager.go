package session

import (
	"bytes"
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridianlabs/authgate/internal"
)

// Config holds session lifecycle tuning.
type Config struct {
	// Expiry is the absolute session lifetime.
	Expiry time.Duration

	// SuspiciousWindow bounds how recently the previous session must have
	// been active for MonitorSuspiciousLogin to consider it.
	SuspiciousWindow time.Duration
}

// Manager creates and invalidates sessions against a [Store]. Alert, when
// set, is invoked for advisory suspicious-login flags; it must not block the
// login path and its outcome is ignored.
type Manager struct {
	store Store
	cfg   Config

	now   func() time.Time
	Alert func(ctx context.Context, accountID, details string)
}

// NewManager creates a Manager. Zero config fields fall back to a 24h expiry
// and a 5m suspicious window.
func NewManager(store Store, cfg Config) *Manager {
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	if cfg.SuspiciousWindow <= 0 {
		cfg.SuspiciousWindow = 5 * time.Minute
	}
	return &Manager{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// Create invalidates every prior active session for the account, then inserts
// a fresh active one. The two steps are sequenced, not merely checked: under
// concurrent logins the last insert to commit holds the sole active session
// and the loser observes its own session expired on its next check.
//
// The returned string is the raw refresh token. Its hash is stored; the raw
// value is returned exactly once.
func (m *Manager) Create(ctx context.Context, accountID, ip, userAgent string, fingerprint []byte) (*Session, string, error) {
	if _, err := m.store.ExpireActive(ctx, accountID); err != nil {
		return nil, "", fmt.Errorf("%w: expire prior: %v", ErrStoreUnavailable, err)
	}

	secret, err := internal.NewRefreshSecret()
	if err != nil {
		return nil, "", err
	}

	now := m.now()
	sess := &Session{
		ID:           uuid.NewString(),
		AccountID:    accountID,
		IPAddress:    ip,
		UserAgent:    userAgent,
		Fingerprint:  fingerprint,
		RefreshHash:  internal.HashRefreshSecret(secret),
		Status:       StatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
		ExpiresAt:    now.Add(m.cfg.Expiry),
	}

	if err := m.store.Insert(ctx, sess); err != nil {
		return nil, "", fmt.Errorf("%w: insert: %v", ErrStoreUnavailable, err)
	}

	token, err := internal.EncodeRefreshToken(sess.ID, secret)
	if err != nil {
		return nil, "", err
	}

	return sess, token, nil
}

// Invalidate marks a single session inactive.
func (m *Manager) Invalidate(ctx context.Context, sessionID string) error {
	if err := m.store.SetStatus(ctx, sessionID, StatusInactive); err != nil {
		if err == ErrSessionNotFound {
			return ErrSessionNotFound
		}
		return fmt.Errorf("%w: set status: %v", ErrStoreUnavailable, err)
	}
	return nil
}

// InvalidateAll marks every session for the account inactive. Used by logout
// and by password change to force re-login everywhere.
func (m *Manager) InvalidateAll(ctx context.Context, accountID string) (int, error) {
	n, err := m.store.DeactivateAll(ctx, accountID)
	if err != nil {
		return 0, fmt.Errorf("%w: deactivate: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

// DetectConcurrentLogin reports whether any other unexpired active session
// exists for the account. Advisory only: callers alert, they do not block.
func (m *Manager) DetectConcurrentLogin(ctx context.Context, accountID, excludeSessionID string) (bool, error) {
	sessions, err := m.store.ListByAccount(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("%w: list: %v", ErrStoreUnavailable, err)
	}

	now := m.now()
	for _, sess := range sessions {
		if sess.ID == excludeSessionID {
			continue
		}
		if sess.Status == StatusActive && sess.ExpiresAt.After(now) {
			return true, nil
		}
	}
	return false, nil
}

// MonitorSuspiciousLogin inspects the most recently expired session for the
// account. If it was active inside the suspicious window and its IP or
// fingerprint differs from the new login's, the login is flagged and Alert
// (when set) is invoked. Never blocks the new session.
func (m *Manager) MonitorSuspiciousLogin(ctx context.Context, accountID, newIP string, newFingerprint []byte) (bool, error) {
	prev, err := m.store.LatestExpired(ctx, accountID)
	if err != nil {
		if err == ErrSessionNotFound {
			return false, nil
		}
		return false, fmt.Errorf("%w: latest expired: %v", ErrStoreUnavailable, err)
	}

	if m.now().Sub(prev.LastActiveAt) >= m.cfg.SuspiciousWindow {
		return false, nil
	}

	ipChanged := prev.IPAddress != "" && newIP != "" && prev.IPAddress != newIP
	fpChanged := len(prev.Fingerprint) > 0 && len(newFingerprint) > 0 &&
		!bytes.Equal(prev.Fingerprint, newFingerprint)
	if !ipChanged && !fpChanged {
		return false, nil
	}

	if m.Alert != nil {
		details := "rapid session churn"
		if ipChanged {
			details = "login from new address shortly after previous session"
		} else if fpChanged {
			details = "login from new device shortly after previous session"
		}
		m.Alert(ctx, accountID, details)
	}

	return true, nil
}

// Validate resolves a refresh token to its session, enforcing status, TTL,
// and a constant-time hash comparison. A session found past its TTL is
// transitioned to expired as a side effect.
func (m *Manager) Validate(ctx context.Context, token string) (*Session, error) {
	sessionID, secret, err := internal.DecodeRefreshToken(token)
	if err != nil {
		return nil, ErrRefreshMismatch
	}

	sess, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if err == ErrSessionNotFound {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("%w: get: %v", ErrStoreUnavailable, err)
	}

	if sess.Status != StatusActive {
		return nil, ErrSessionExpired
	}
	if !sess.ExpiresAt.After(m.now()) {
		// Lazy TTL enforcement; best-effort status write.
		_ = m.store.SetStatus(ctx, sess.ID, StatusExpired)
		return nil, ErrSessionExpired
	}

	expected := internal.HashRefreshSecret(secret)
	if subtle.ConstantTimeCompare(expected[:], sess.RefreshHash[:]) != 1 {
		return nil, ErrRefreshMismatch
	}

	if err := m.store.Touch(ctx, sess.ID, m.now()); err != nil {
		return nil, fmt.Errorf("%w: touch: %v", ErrStoreUnavailable, err)
	}

	return sess, nil
}
