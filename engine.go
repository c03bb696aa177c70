package authgate

import (
	"context"
	"time"

	internalaudit "github.com/meridianlabs/authgate/internal/audit"
	internalmetrics "github.com/meridianlabs/authgate/internal/metrics"
	"github.com/meridianlabs/authgate/password"
	"github.com/meridianlabs/authgate/session"
	"github.com/meridianlabs/authgate/token"
	"github.com/meridianlabs/authgate/verification"
)

// Engine is the assembled authentication subsystem. Construct it through
// [New] and [Builder.Build]; the zero value is not usable. All methods are
// safe for concurrent use.
type Engine struct {
	config Config

	accounts      AccountStore
	subscriptions SubscriptionReader
	notifier      Notifier

	sessions *session.Manager
	codes    *verification.Store
	attempts attemptLimiter

	hasher *password.Hasher
	tokens *token.Manager

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	commonPasswords map[string]struct{}

	now func() time.Time
}

// Close flushes and stops the audit dispatcher. Call once when shutting down.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	e.audit.Close()
}

// AuditDropped reports how many audit events were shed because the buffer
// was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of all counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{Counters: map[MetricID]uint64{}}
	}
	return e.metrics.Snapshot()
}

// Policy returns a read-only snapshot of the engine's active security
// posture, for operator introspection.
func (e *Engine) Policy() Policy {
	if e == nil {
		return Policy{}
	}
	_, shared := e.attempts.(*redisAttemptLimiter)
	return Policy{
		MaxAttempts:        e.config.Lockout.MaxAttempts,
		LockoutDuration:    e.config.Lockout.LockoutDuration,
		MaxLockouts:        e.config.Lockout.MaxLockouts,
		SessionExpiry:      e.config.Session.Expiry,
		MaxSessionsPerUser: 1,
		CodeLength:         e.config.Verification.CodeLength,
		CodeTTL:            e.config.Verification.CodeTTL,
		SubscriptionGate:   e.subscriptions != nil,
		GatedTier:          e.config.Subscription.GatedTier,
		SharedAttemptTier:  shared,
		AccessTokens:       e.tokens != nil,
	}
}

// ValidateSession resolves a refresh token to its live session.
func (e *Engine) ValidateSession(ctx context.Context, refreshToken string) (*session.Session, error) {
	return e.sessions.Validate(ctx, refreshToken)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}
