package authgate

import (
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_Validates(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestConfigValidate_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero max attempts", func(c *Config) { c.Lockout.MaxAttempts = 0 }, "MaxAttempts"},
		{"zero attempt window", func(c *Config) { c.Lockout.AttemptWindow = 0 }, "AttemptWindow"},
		{"zero lockout duration", func(c *Config) { c.Lockout.LockoutDuration = 0 }, "LockoutDuration"},
		{"zero max lockouts", func(c *Config) { c.Lockout.MaxLockouts = 0 }, "MaxLockouts"},
		{"zero session expiry", func(c *Config) { c.Session.Expiry = 0 }, "Expiry"},
		{"code too short", func(c *Config) { c.Verification.CodeLength = 3 }, "CodeLength"},
		{"code too long", func(c *Config) { c.Verification.CodeLength = 11 }, "CodeLength"},
		{"zero code ttl", func(c *Config) { c.Verification.CodeTTL = 0 }, "CodeTTL"},
		{"empty gated tier", func(c *Config) { c.Subscription.GatedTier = "" }, "GatedTier"},
		{"tokens without key", func(c *Config) { c.Token.AccessTTL = time.Minute }, "PrivateKey"},
		{"bad signing method", func(c *Config) {
			c.Token.AccessTTL = time.Minute
			c.Token.PrivateKey = []byte("k")
			c.Token.SigningMethod = "rsa"
		}, "SigningMethod"},
		{"audit without buffer", func(c *Config) { c.Audit.BufferSize = 0 }, "BufferSize"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := defaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("invalid config accepted")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestCloneConfig_DetachesKeyMaterial(t *testing.T) {
	cfg := defaultConfig()
	cfg.Token.PrivateKey = []byte("secret-key-bytes")

	clone := cloneConfig(cfg)
	cfg.Token.PrivateKey[0] = 'X'

	if clone.Token.PrivateKey[0] == 'X' {
		t.Fatal("clone shares key backing array with source")
	}
}

func TestBuilder_RequiresStores(t *testing.T) {
	if _, err := New().Build(); err == nil {
		t.Fatal("build without account store succeeded")
	}

	accounts := newMockAccounts()
	if _, err := New().WithAccounts(accounts).Build(); err == nil {
		t.Fatal("build without session store succeeded")
	}
}

func TestBuilder_SingleUse(t *testing.T) {
	builder := New().
		WithAccounts(newMockAccounts()).
		WithSessions(newMemSessionStore())

	engine, err := builder.Build()
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	t.Cleanup(engine.Close)

	if _, err := builder.Build(); err == nil {
		t.Fatal("second Build on one builder succeeded")
	}
}

func TestPolicySnapshot(t *testing.T) {
	env := newTestEnv(t, testConfig())

	policy := env.engine.Policy()
	if policy.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", policy.MaxAttempts)
	}
	if policy.MaxSessionsPerUser != 1 {
		t.Fatalf("MaxSessionsPerUser = %d, want 1", policy.MaxSessionsPerUser)
	}
	if !policy.SubscriptionGate {
		t.Fatal("subscription gate should be on with a reader attached")
	}
	if policy.SharedAttemptTier {
		t.Fatal("shared tier reported without redis")
	}
	if !policy.AccessTokens {
		t.Fatal("access tokens reported off")
	}
	if policy.GatedTier != "premium" {
		t.Fatalf("GatedTier = %s", policy.GatedTier)
	}
}
