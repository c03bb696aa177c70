// Package verification implements the single-use, purpose-scoped,
// time-boxed verification code store. Codes are written to two independent
// locations — an in-process map and the persistent store — and redemption is
// atomic with deletion so a valid code can never be redeemed twice.
package verification

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/meridianlabs/authgate/internal"
)

// Purpose scopes a code to the flow that issued it. A code of one purpose is
// never accepted for another.
type Purpose uint8

const (
	// PurposePasswordReset guards the password reset confirmation.
	PurposePasswordReset Purpose = iota
	// PurposePhoneUpdate guards phone number changes.
	PurposePhoneUpdate
	// PurposeRenewal guards the subscription renewal login challenge.
	PurposeRenewal
)

func (p Purpose) String() string {
	switch p {
	case PurposePasswordReset:
		return "password_reset"
	case PurposePhoneUpdate:
		return "phone_update"
	case PurposeRenewal:
		return "renewal_verification"
	default:
		return "unknown"
	}
}

var (
	// ErrCodeNotFound is returned when no code exists for the account+purpose,
	// including the replay of an already-redeemed code.
	ErrCodeNotFound = errors.New("verification code not found")
	// ErrCodeExpired is returned when the code's TTL has elapsed, regardless
	// of whether the presented code is otherwise correct.
	ErrCodeExpired = errors.New("verification code expired")
	// ErrCodeMismatch is returned when a code exists but the presented value
	// does not match.
	ErrCodeMismatch = errors.New("verification code mismatch")
)

// Redemption attempt reasons recorded through the audit hook.
const (
	ReasonSuccess  = "success"
	ReasonExpired  = "expired"
	ReasonMismatch = "mismatch"
	ReasonNotFound = "not_found"
)

// Record is one issued code. Code is the short numeric string itself; the
// persistent schema stores it verbatim and comparisons are constant-time.
type Record struct {
	AccountID string
	Code      string
	Purpose   Purpose
	ExpiresAt time.Time
}

// PersistentStore is the durable tier. Put replaces any existing record for
// the same account+purpose. DeleteMatching deletes only when the stored code
// equals code and reports whether a row was removed — the conditional delete
// is what keeps redemption single-use across processes.
type PersistentStore interface {
	Put(ctx context.Context, record Record) error
	Get(ctx context.Context, accountID string, purpose Purpose) (*Record, error)
	Delete(ctx context.Context, accountID string, purpose Purpose) error
	DeleteMatching(ctx context.Context, accountID string, purpose Purpose, code string) (bool, error)
}

// AuditFunc receives every redemption attempt with its outcome reason, and
// every degraded-mode issuance (reason "degraded", success=true).
type AuditFunc func(ctx context.Context, accountID string, purpose Purpose, success bool, reason string)

// Config tunes the store.
type Config struct {
	// CodeLength is the number of digits in an issued code.
	CodeLength int

	// Audit, when set, is called for every redemption attempt.
	Audit AuditFunc

	// OnDegraded, when set, is called each time issuance falls back to the
	// in-process tier because the persistent write failed.
	OnDegraded func()
}

type memKey struct {
	accountID string
	purpose   Purpose
}

// Store is the two-tier code store. The in-process map is the fast path and
// keeps issuance available when the persistent store is down; the persistent
// tier is the durable fallback consulted on memory misses.
type Store struct {
	mu         sync.Mutex
	mem        map[memKey]Record
	persistent PersistentStore

	cfg Config
	now func() time.Time
}

// NewStore creates a Store. persistent may be nil, in which case every
// issuance is memory-only (and flagged degraded).
func NewStore(persistent PersistentStore, cfg Config) *Store {
	if cfg.CodeLength <= 0 {
		cfg.CodeLength = 6
	}
	return &Store{
		mem:        make(map[memKey]Record),
		persistent: persistent,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Issue generates a fresh code for the account+purpose, replacing any prior
// unconsumed code of the same purpose, and writes it to both tiers as
// independent best-effort operations. A persistent-store failure degrades the
// issuance to memory-only; the caller is never blocked by store
// unavailability.
func (s *Store) Issue(ctx context.Context, accountID string, purpose Purpose, ttl time.Duration) (string, error) {
	code, err := internal.NewNumericCode(s.cfg.CodeLength)
	if err != nil {
		return "", err
	}

	record := Record{
		AccountID: accountID,
		Code:      code,
		Purpose:   purpose,
		ExpiresAt: s.now().Add(ttl),
	}

	s.mu.Lock()
	s.mem[memKey{accountID, purpose}] = record
	s.mu.Unlock()

	if s.persistent == nil {
		s.degraded(ctx, accountID, purpose)
		return code, nil
	}
	if err := s.persistent.Put(ctx, record); err != nil {
		s.degraded(ctx, accountID, purpose)
	}

	return code, nil
}

// Redeem consumes a code. The in-process entry is checked first; a memory
// miss or memory-expired entry falls back to the persistent tier with the
// same checks. Deletion happens in the same logical step as the match — two
// concurrent redemptions of one valid code yield exactly one success.
func (s *Store) Redeem(ctx context.Context, accountID, code string, purpose Purpose) error {
	key := memKey{accountID, purpose}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, inMem := s.mem[key]
	if inMem {
		if !record.ExpiresAt.After(s.now()) {
			// The memory tier has proof the code existed and aged out; the
			// persistent tier may still hold a fresher record.
			delete(s.mem, key)
			return s.redeemPersistent(ctx, accountID, code, purpose, true)
		}
		if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
			s.attempt(ctx, accountID, purpose, false, ReasonMismatch)
			return ErrCodeMismatch
		}

		delete(s.mem, key)
		if s.persistent != nil {
			// Mirror the consume into the durable tier; a failure here
			// cannot resurrect the code in this process.
			if _, err := s.persistent.DeleteMatching(ctx, accountID, purpose, code); err != nil {
				log.Print("authgate: verification code persistent delete failed after redemption")
			}
		}
		s.attempt(ctx, accountID, purpose, true, ReasonSuccess)
		return nil
	}

	return s.redeemPersistent(ctx, accountID, code, purpose, false)
}

// redeemPersistent is the durable-tier path, called with s.mu held so that
// concurrent redemptions in this process serialize. memExpired records that
// the in-process tier held an expired entry, which upgrades a durable miss
// from not-found to expired.
func (s *Store) redeemPersistent(ctx context.Context, accountID, code string, purpose Purpose, memExpired bool) error {
	if s.persistent == nil {
		return s.missOutcome(ctx, accountID, purpose, memExpired)
	}

	record, err := s.persistent.Get(ctx, accountID, purpose)
	if err != nil {
		return s.missOutcome(ctx, accountID, purpose, memExpired)
	}

	if !record.ExpiresAt.After(s.now()) {
		if derr := s.persistent.Delete(ctx, accountID, purpose); derr != nil {
			log.Print("authgate: expired verification code cleanup failed")
		}
		s.attempt(ctx, accountID, purpose, false, ReasonExpired)
		return ErrCodeExpired
	}

	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
		s.attempt(ctx, accountID, purpose, false, ReasonMismatch)
		return ErrCodeMismatch
	}

	deleted, err := s.persistent.DeleteMatching(ctx, accountID, purpose, code)
	if err != nil {
		s.attempt(ctx, accountID, purpose, false, ReasonNotFound)
		return ErrCodeNotFound
	}
	if !deleted {
		// Lost the race to another redeemer.
		s.attempt(ctx, accountID, purpose, false, ReasonNotFound)
		return ErrCodeNotFound
	}

	s.attempt(ctx, accountID, purpose, true, ReasonSuccess)
	return nil
}

func (s *Store) missOutcome(ctx context.Context, accountID string, purpose Purpose, memExpired bool) error {
	if memExpired {
		s.attempt(ctx, accountID, purpose, false, ReasonExpired)
		return ErrCodeExpired
	}
	s.attempt(ctx, accountID, purpose, false, ReasonNotFound)
	return ErrCodeNotFound
}

func (s *Store) attempt(ctx context.Context, accountID string, purpose Purpose, success bool, reason string) {
	if s.cfg.Audit != nil {
		s.cfg.Audit(ctx, accountID, purpose, success, reason)
	}
}

func (s *Store) degraded(ctx context.Context, accountID string, purpose Purpose) {
	log.Print("authgate: verification code issued in degraded mode (persistent write failed)")
	if s.cfg.OnDegraded != nil {
		s.cfg.OnDegraded()
	}
	if s.cfg.Audit != nil {
		s.cfg.Audit(ctx, accountID, purpose, true, "degraded")
	}
}
