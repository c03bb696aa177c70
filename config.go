package authgate

import (
	"errors"
	"time"

	"github.com/meridianlabs/authgate/password"
	"github.com/meridianlabs/authgate/token"
)

// Config is the full engine configuration. Instances are set once at
// initialization, cloned by the Builder, and treated as immutable afterwards.
type Config struct {
	Lockout      LockoutConfig
	Session      SessionConfig
	Password     PasswordConfig
	Verification VerificationConfig
	Subscription SubscriptionConfig
	Token        TokenConfig
	Audit        AuditConfig
	Metrics      MetricsConfig
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig tunes the failed-attempt counter and the escalation ladder.
type LockoutConfig struct {
	// MaxAttempts is the number of consecutive credential mismatches inside
	// AttemptWindow that triggers a lockout.
	MaxAttempts int

	// AttemptWindow is measured from the LAST failed attempt: a mismatch
	// after a quiet period longer than the window restarts the count at 1.
	AttemptWindow time.Duration

	// LockoutDuration is how long the account stays locked per lockout.
	LockoutDuration time.Duration

	// MaxLockouts is the number of lockouts after which the account is
	// permanently disabled pending manual review.
	MaxLockouts int

	// RedisPrefix namespaces the shared attempt-counter keys when a redis
	// client is attached.
	RedisPrefix string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig tunes session lifetime and the suspicious-login monitor.
type SessionConfig struct {
	Expiry           time.Duration
	SuspiciousWindow time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters plus the rehash-on-login
// switch.
type PasswordConfig struct {
	Memory      uint32 // in KB
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32

	// UpgradeOnLogin re-hashes the password after a successful login when the
	// stored hash uses weaker parameters than the current configuration.
	UpgradeOnLogin bool
}

/*
====================================
VERIFICATION CONFIG
====================================
*/

// VerificationConfig tunes issued verification codes.
type VerificationConfig struct {
	CodeLength int
	CodeTTL    time.Duration
}

/*
====================================
SUBSCRIPTION CONFIG
====================================
*/

// SubscriptionConfig tunes the subscription gate.
type SubscriptionConfig struct {
	// GatedTier is the account tier whose logins require an active
	// subscription. Accounts of other tiers skip the gate entirely.
	GatedTier string
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig configures access-token issuance. Leave AccessTTL zero to
// disable access tokens; sessions and refresh tokens work without them.
type TokenConfig struct {
	AccessTTL     time.Duration
	SigningMethod string // "hs256" (default) or "ed25519"
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig tunes the async audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int

	// DropIfFull sheds events when the buffer is full instead of blocking
	// the caller.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig enables the in-process counters.
type MetricsConfig struct {
	Enabled bool
}

func defaultConfig() Config {
	pw := password.DefaultConfig()
	return Config{
		Lockout: LockoutConfig{
			MaxAttempts:     5,
			AttemptWindow:   15 * time.Minute,
			LockoutDuration: 20 * time.Minute,
			MaxLockouts:     3,
			RedisPrefix:     "ag",
		},
		Session: SessionConfig{
			Expiry:           24 * time.Hour,
			SuspiciousWindow: 5 * time.Minute,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
		},
		Verification: VerificationConfig{
			CodeLength: 6,
			CodeTTL:    10 * time.Minute,
		},
		Subscription: SubscriptionConfig{
			GatedTier: "premium",
		},
		Token: TokenConfig{
			SigningMethod: string(token.MethodHS256),
			Leeway:        30 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    true,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Validate checks the configuration for internally inconsistent or unsafe
// values. Called by the Builder before construction.
func (c *Config) Validate() error {
	if c.Lockout.MaxAttempts < 1 {
		return errors.New("Lockout.MaxAttempts must be >= 1")
	}
	if c.Lockout.AttemptWindow <= 0 {
		return errors.New("Lockout.AttemptWindow must be > 0")
	}
	if c.Lockout.LockoutDuration <= 0 {
		return errors.New("Lockout.LockoutDuration must be > 0")
	}
	if c.Lockout.MaxLockouts < 1 {
		return errors.New("Lockout.MaxLockouts must be >= 1")
	}

	if c.Session.Expiry <= 0 {
		return errors.New("Session.Expiry must be > 0")
	}
	if c.Session.SuspiciousWindow <= 0 {
		return errors.New("Session.SuspiciousWindow must be > 0")
	}

	if c.Verification.CodeLength < 4 || c.Verification.CodeLength > 10 {
		return errors.New("Verification.CodeLength must be between 4 and 10")
	}
	if c.Verification.CodeTTL <= 0 {
		return errors.New("Verification.CodeTTL must be > 0")
	}

	if c.Subscription.GatedTier == "" {
		return errors.New("Subscription.GatedTier must not be empty")
	}

	if c.Token.AccessTTL > 0 {
		switch token.SigningMethod(c.Token.SigningMethod) {
		case token.MethodHS256, token.MethodEd25519:
		default:
			return errors.New("Token.SigningMethod must be hs256 or ed25519")
		}
		if len(c.Token.PrivateKey) == 0 {
			return errors.New("Token.PrivateKey required when AccessTTL > 0")
		}
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit.BufferSize must be > 0 when audit is enabled")
	}

	return nil
}

// cloneConfig deep-copies the byte-slice fields so callers cannot mutate key
// material after Build.
func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	return out
}
