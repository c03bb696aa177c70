package authgate

import (
	"context"
	"io"
	"time"

	"github.com/meridianlabs/authgate/session"
	internalaudit "github.com/meridianlabs/authgate/internal/audit"
	internalmetrics "github.com/meridianlabs/authgate/internal/metrics"
)

// Account is the identity and security posture of a user, as persisted by the
// integrator's [AccountStore]. Disabled is monotonic: once true it is never
// cleared by this subsystem.
type Account struct {
	ID           string
	Email        string
	Username     string
	PasswordHash string

	// Phone is the E.164-normalized phone number, empty when none is on file.
	Phone string

	// Tier is the subscription tier label, compared against
	// [SubscriptionConfig].GatedTier during the login gate.
	Tier string

	Verified bool
	Active   bool
	Disabled bool

	FailedLoginAttempts int
	LockedUntil         *time.Time
	LockoutCount        int
	LastLoginAt         *time.Time
}

// SecurityState is the transactional write unit for an account's security
// columns. Implementations of [AccountStore.UpdateSecurityState] must apply
// all four fields atomically relative to the read that produced them.
type SecurityState struct {
	FailedLoginAttempts int
	LockedUntil         *time.Time
	LockoutCount        int
	Disabled            bool
}

// AccountStore is the primary interface integrators implement to connect
// authgate to their account database. Lookup misses return
// [ErrAccountNotFound]; uniqueness collisions on Create return
// [ErrDuplicateAccount].
type AccountStore interface {
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByID(ctx context.Context, id string) (*Account, error)
	GetByUsername(ctx context.Context, username string) (*Account, error)
	GetByPhone(ctx context.Context, phone string) (*Account, error)
	Create(ctx context.Context, account *Account) error
	UpdatePasswordHash(ctx context.Context, id, hash string) error
	UpdatePhone(ctx context.Context, id, phone string) error
	UpdateSecurityState(ctx context.Context, id string, state SecurityState) error

	// RecordLogin resets FailedLoginAttempts to zero, clears LockedUntil,
	// and stamps LastLoginAt in one transaction.
	RecordLogin(ctx context.Context, id string, at time.Time) error
}

// SubscriptionStatus is the lifecycle state of a subscription row.
type SubscriptionStatus string

const (
	// SubscriptionActive marks a subscription the billing system considers current.
	SubscriptionActive SubscriptionStatus = "active"
	// SubscriptionExpired marks a subscription past its end date.
	SubscriptionExpired SubscriptionStatus = "expired"
	// SubscriptionCanceled marks a subscription terminated by the user.
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

// Subscription is the read-only billing record consulted by the login gate.
type Subscription struct {
	ID        string
	AccountID string
	Status    SubscriptionStatus
	EndDate   time.Time
}

// SubscriptionReader exposes the one read and one status transition the login
// gate needs. Billing management lives elsewhere. Latest returns
// [ErrSubscriptionNotFound] when the account has no subscription on record.
type SubscriptionReader interface {
	Latest(ctx context.Context, accountID string) (*Subscription, error)
	MarkExpired(ctx context.Context, subscriptionID string) error
}

// Notifier abstracts email/SMS delivery. Every call is fire-and-forget from
// the engine's perspective: a returned error is audited and logged, never
// surfaced to the authentication decision.
type Notifier interface {
	SendLockoutNotice(ctx context.Context, email string, minutes int) error
	SendDisabledNotice(ctx context.Context, email string) error
	SendPasswordChangedNotice(ctx context.Context, email string, when time.Time) error
	SendPasswordResetCode(ctx context.Context, email, code string) error
	SendSecurityAlert(ctx context.Context, email, details string) error
	SendVerificationCode(ctx context.Context, accountID, phone, code string) error
}

// NoOpNotifier discards all notifications.
type NoOpNotifier struct{}

func (NoOpNotifier) SendLockoutNotice(context.Context, string, int) error { return nil }
func (NoOpNotifier) SendDisabledNotice(context.Context, string) error     { return nil }
func (NoOpNotifier) SendPasswordChangedNotice(context.Context, string, time.Time) error {
	return nil
}
func (NoOpNotifier) SendPasswordResetCode(context.Context, string, string) error { return nil }
func (NoOpNotifier) SendSecurityAlert(context.Context, string, string) error     { return nil }
func (NoOpNotifier) SendVerificationCode(context.Context, string, string, string) error {
	return nil
}

// LoginRequest carries a single login attempt. CaptchaOK is the caller's
// CAPTCHA verdict; this subsystem gates on the boolean and performs no
// verification of its own.
type LoginRequest struct {
	Email         string
	Password      string
	Fingerprint   []byte
	CaptchaOK     bool
	TermsAccepted bool
	ClientIP      string
	UserAgent     string
}

// LoginResult is returned by [Engine.Login] and
// [Engine.CompleteRenewalChallenge]. Either Session is set (with the raw
// refresh token, returned exactly once and never persisted), or
// RenewalRequired is true and Challenge describes the pending SMS step.
type LoginResult struct {
	Session      *session.Session
	AccessToken  string
	RefreshToken string

	RenewalRequired bool
	Challenge       *RenewalChallenge
}

// RenewalChallenge is the stashed context of a subscription renewal challenge
// interposed on login.
type RenewalChallenge struct {
	AccountID string
	Email     string
	Phone     string
}

// RegisterRequest is the input for [Engine.Register]. Phone is optional.
type RegisterRequest struct {
	Email           string
	Username        string
	Password        string
	ConfirmPassword string
	Phone           string
}

// Policy is a read-only snapshot of the engine's active security posture.
type Policy struct {
	MaxAttempts        int
	LockoutDuration    time.Duration
	MaxLockouts        int
	SessionExpiry      time.Duration
	MaxSessionsPerUser int
	CodeLength         int
	CodeTTL            time.Duration
	SubscriptionGate   bool
	GatedTier          string
	SharedAttemptTier  bool
	AccessTokens       bool
}

// AuditEvent is the structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that silently discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink is an [AuditSink] that writes JSON-encoded events to an
// [io.Writer], one object per line.
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	// MetricLoginSuccess counts fully successful logins.
	MetricLoginSuccess = internalmetrics.MetricLoginSuccess
	// MetricLoginFailure counts credential and gate failures.
	MetricLoginFailure = internalmetrics.MetricLoginFailure
	// MetricLoginLocked counts attempts rejected by an active or new lockout.
	MetricLoginLocked = internalmetrics.MetricLoginLocked
	// MetricLoginDisabled counts attempts against permanently disabled accounts.
	MetricLoginDisabled = internalmetrics.MetricLoginDisabled
	// MetricAccountLockout counts lockout escalations.
	MetricAccountLockout = internalmetrics.MetricAccountLockout
	// MetricAccountDisabled counts permanent disablements.
	MetricAccountDisabled = internalmetrics.MetricAccountDisabled
	// MetricRenewalChallenge counts logins redirected into the renewal challenge.
	MetricRenewalChallenge = internalmetrics.MetricRenewalChallenge
	// MetricSessionCreated counts sessions created on login.
	MetricSessionCreated = internalmetrics.MetricSessionCreated
	// MetricSessionInvalidated counts cascading invalidations.
	MetricSessionInvalidated = internalmetrics.MetricSessionInvalidated
	// MetricSuspiciousLogin counts advisory suspicious-login flags.
	MetricSuspiciousLogin = internalmetrics.MetricSuspiciousLogin
	// MetricCodeIssued counts verification codes issued.
	MetricCodeIssued = internalmetrics.MetricCodeIssued
	// MetricCodeRedeemed counts successful redemptions.
	MetricCodeRedeemed = internalmetrics.MetricCodeRedeemed
	// MetricCodeRejected counts failed redemption attempts.
	MetricCodeRejected = internalmetrics.MetricCodeRejected
	// MetricCodeDegraded counts degraded-mode issuances (persistent write failed).
	MetricCodeDegraded = internalmetrics.MetricCodeDegraded
	// MetricPasswordChange counts successful password changes and resets.
	MetricPasswordChange = internalmetrics.MetricPasswordChange
	// MetricRegistration counts successful registrations.
	MetricRegistration = internalmetrics.MetricRegistration
)

// Metrics holds the engine's atomic counters.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all counters.
type MetricsSnapshot = internalmetrics.Snapshot
