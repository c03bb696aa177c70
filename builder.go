package authgate

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"

	internalaudit "github.com/meridianlabs/authgate/internal/audit"
	internalmetrics "github.com/meridianlabs/authgate/internal/metrics"
	"github.com/meridianlabs/authgate/password"
	"github.com/meridianlabs/authgate/session"
	"github.com/meridianlabs/authgate/token"
	"github.com/meridianlabs/authgate/verification"
)

// Builder assembles an [Engine]. Obtain one from [New], chain the With*
// setters, and call Build exactly once.
type Builder struct {
	config Config
	redis  *redis.Client

	accounts      AccountStore
	sessionStore  session.Store
	codeStore     verification.PersistentStore
	subscriptions SubscriptionReader
	notifier      Notifier
	auditSink     AuditSink

	commonPasswords []string

	built bool
}

// New returns a Builder seeded with the default configuration.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the entire configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithAccounts sets the account store. Required.
func (b *Builder) WithAccounts(store AccountStore) *Builder {
	b.accounts = store
	return b
}

// WithSessions sets the session persistence backend. Required.
func (b *Builder) WithSessions(store session.Store) *Builder {
	b.sessionStore = store
	return b
}

// WithCodes sets the durable verification-code backend. Optional; without it
// every code issuance runs in degraded, memory-only mode.
func (b *Builder) WithCodes(store verification.PersistentStore) *Builder {
	b.codeStore = store
	return b
}

// WithSubscriptions sets the billing reader. Optional; without it the
// subscription login gate is skipped for all accounts.
func (b *Builder) WithSubscriptions(reader SubscriptionReader) *Builder {
	b.subscriptions = reader
	return b
}

// WithNotifier sets the email/SMS delivery hook. Optional; defaults to
// [NoOpNotifier].
func (b *Builder) WithNotifier(n Notifier) *Builder {
	b.notifier = n
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithRedis attaches a redis client used as the shared failed-attempt counter
// tier. Optional; without it the counter tier is per-process.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithCommonPasswords sets the denylist consulted by the password policy.
func (b *Builder) WithCommonPasswords(passwords []string) *Builder {
	b.commonPasswords = passwords
	return b
}

// WithMetricsEnabled toggles the in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// Build validates the configuration, wires the subsystems, and returns the
// Engine.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if b.accounts == nil {
		return nil, errors.New("account store required")
	}
	if b.sessionStore == nil {
		return nil, errors.New("session store required")
	}

	hasher, err := password.NewHasher(password.Config{
		Memory:      cfg.Password.Memory,
		Time:        cfg.Password.Time,
		Parallelism: cfg.Password.Parallelism,
		SaltLength:  cfg.Password.SaltLength,
		KeyLength:   cfg.Password.KeyLength,
	})
	if err != nil {
		return nil, err
	}

	var tokens *token.Manager
	if cfg.Token.AccessTTL > 0 {
		tokens, err = token.NewManager(token.Config{
			AccessTTL:     cfg.Token.AccessTTL,
			SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
			PrivateKey:    cfg.Token.PrivateKey,
			PublicKey:     cfg.Token.PublicKey,
			Issuer:        cfg.Token.Issuer,
			Leeway:        cfg.Token.Leeway,
		})
		if err != nil {
			return nil, err
		}
	}

	metrics := internalmetrics.New(internalmetrics.Config{Enabled: cfg.Metrics.Enabled})

	sink := b.auditSink
	if sink == nil {
		sink = internalaudit.NoOpSink{}
	}
	dispatcher := internalaudit.NewDispatcher(internalaudit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	notifier := b.notifier
	if notifier == nil {
		notifier = NoOpNotifier{}
	}

	var attempts attemptLimiter
	if b.redis != nil {
		attempts = newRedisAttemptLimiter(b.redis, cfg.Lockout.RedisPrefix, cfg.Lockout.AttemptWindow)
	} else {
		attempts = newMemoryAttemptLimiter(cfg.Lockout.AttemptWindow)
	}

	e := &Engine{
		config:        cfg,
		accounts:      b.accounts,
		subscriptions: b.subscriptions,
		notifier:      notifier,
		attempts:      attempts,
		hasher:        hasher,
		tokens:        tokens,
		audit:         dispatcher,
		metrics:       metrics,
		now:           time.Now,
	}

	if len(b.commonPasswords) > 0 {
		e.commonPasswords = make(map[string]struct{}, len(b.commonPasswords))
		for _, p := range b.commonPasswords {
			e.commonPasswords[p] = struct{}{}
		}
	}

	e.sessions = session.NewManager(b.sessionStore, session.Config{
		Expiry:           cfg.Session.Expiry,
		SuspiciousWindow: cfg.Session.SuspiciousWindow,
	})
	e.sessions.Alert = func(ctx context.Context, accountID, details string) {
		account, err := b.accounts.GetByID(ctx, accountID)
		if err != nil {
			log.Print("authgate: security alert lookup failed")
			return
		}
		if err := e.notifier.SendSecurityAlert(ctx, account.Email, details); err != nil {
			log.Print("authgate: security alert delivery failed")
		}
	}

	e.codes = verification.NewStore(b.codeStore, verification.Config{
		CodeLength: cfg.Verification.CodeLength,
		Audit: func(ctx context.Context, accountID string, purpose verification.Purpose, success bool, reason string) {
			if success {
				if reason == "degraded" {
					e.emitAudit(ctx, eventCodeDegraded, accountID, "", true, "", map[string]string{"purpose": purpose.String()})
					return
				}
				e.metricInc(MetricCodeRedeemed)
				e.emitAudit(ctx, eventCodeRedeemed, accountID, "", true, "", map[string]string{"purpose": purpose.String()})
				return
			}
			e.metricInc(MetricCodeRejected)
			e.emitAudit(ctx, eventCodeRejected, accountID, "", false, reason, map[string]string{"purpose": purpose.String()})
		},
		OnDegraded: func() {
			e.metricInc(MetricCodeDegraded)
		},
	})

	b.built = true
	return e, nil
}
