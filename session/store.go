package session

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSessionNotFound is the lookup sentinel Store implementations must return.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionExpired is returned by Validate when the session TTL has elapsed
	// or the session is no longer active.
	ErrSessionExpired = errors.New("session expired")
	// ErrRefreshMismatch is returned when a presented refresh token does not
	// hash to the stored value.
	ErrRefreshMismatch = errors.New("refresh token mismatch")
	// ErrStoreUnavailable wraps persistent-store failures. Session commits are
	// fatal on this error: silently succeeding would break the single-session
	// invariant.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// Store is the persistence contract for sessions. Implementations back it
// with the relational store; misses return [ErrSessionNotFound] and
// infrastructure failures wrap [ErrStoreUnavailable].
type Store interface {
	Insert(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)

	// ListByAccount returns all sessions for the account, newest first.
	ListByAccount(ctx context.Context, accountID string) ([]*Session, error)

	SetStatus(ctx context.Context, id string, status Status) error

	// ExpireActive transitions every active session for the account to
	// expired, returning the number of rows changed. Called before Insert as
	// one logical unit: the ordering is the enforcement mechanism for the
	// single-active-session invariant.
	ExpireActive(ctx context.Context, accountID string) (int, error)

	// DeactivateAll marks every session for the account inactive regardless
	// of current status.
	DeactivateAll(ctx context.Context, accountID string) (int, error)

	// Touch updates LastActiveAt.
	Touch(ctx context.Context, id string, at time.Time) error

	// LatestExpired returns the most recently expired session for the
	// account, or [ErrSessionNotFound].
	LatestExpired(ctx context.Context, accountID string) (*Session, error)
}
