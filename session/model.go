// Package session implements the session lifecycle manager: creation under
// the single-active-session policy, cascading invalidation, concurrent-login
// detection, and the advisory suspicious-login monitor.
package session

import "time"

// Status is the lifecycle state of a session row.
type Status uint8

const (
	// StatusActive marks the at-most-one currently valid session per account.
	StatusActive Status = iota
	// StatusExpired marks sessions superseded by a newer login or past TTL.
	StatusExpired
	// StatusInactive marks sessions invalidated by logout or password change.
	StatusInactive
)

func (s Status) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusExpired:
		return "expired"
	case StatusInactive:
		return "inactive"
	default:
		return "unknown"
	}
}

// Session is a single authenticated binding of an account to a client.
// RefreshHash is the SHA-256 of the refresh secret; the raw secret is never
// stored.
type Session struct {
	ID        string
	AccountID string

	IPAddress   string
	UserAgent   string
	Fingerprint []byte

	RefreshHash [32]byte
	Status      Status

	CreatedAt    time.Time
	LastActiveAt time.Time
	ExpiresAt    time.Time
}
