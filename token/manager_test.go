package token

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func hs256Manager(t *testing.T, ttl time.Duration) *Manager {
	t.Helper()
	mgr, err := NewManager(Config{
		AccessTTL:     ttl,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "authgate-test",
		Leeway:        0,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	return mgr
}

func TestIssueParse_HS256(t *testing.T) {
	mgr := hs256Manager(t, 5*time.Minute)

	tok, err := mgr.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := mgr.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "authgate-test" {
		t.Fatalf("issuer = %s", claims.Issuer)
	}
}

func TestParse_RejectsForeignKey(t *testing.T) {
	mgr := hs256Manager(t, 5*time.Minute)

	other, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodHS256,
		PrivateKey:    []byte("ffffffffffffffffffffffffffffffff"),
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := other.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := mgr.Parse(tok); err == nil {
		t.Fatal("token signed with a foreign key accepted")
	}
}

func TestParse_RejectsExpired(t *testing.T) {
	mgr := hs256Manager(t, time.Millisecond)

	tok, err := mgr.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	time.Sleep(10 * time.Millisecond)

	if _, err := mgr.Parse(tok); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestParse_RejectsGarbage(t *testing.T) {
	mgr := hs256Manager(t, 5*time.Minute)

	for _, tok := range []string{"", "not.a.jwt", "eyJhbGciOiJub25lIn0.eyJ1aWQiOiJ1MSJ9."} {
		if _, err := mgr.Parse(tok); err == nil {
			t.Errorf("garbage token accepted: %q", tok)
		}
	}
}

func TestIssueParse_Ed25519(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	mgr, err := NewManager(Config{
		AccessTTL:     5 * time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Issuer:        "authgate-test",
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	tok, err := mgr.Issue("u1", "s1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := mgr.Parse(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UID != "u1" || claims.SID != "s1" {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestNewManager_ConfigValidation(t *testing.T) {
	cases := []Config{
		{AccessTTL: 0, SigningMethod: MethodHS256, PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256},
		{AccessTTL: time.Minute, SigningMethod: "rsa", PrivateKey: []byte("k")},
		{AccessTTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("k"), Leeway: 5 * time.Minute},
		{AccessTTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: []byte("short"), PublicKey: []byte("short")},
	}
	for _, cfg := range cases {
		if _, err := NewManager(cfg); err == nil {
			t.Errorf("invalid config accepted: %+v", cfg)
		}
	}
}
