// Package metrics provides lock-free counters for authgate observability.
//
// Counters are stored in cache-line-padded uint64 slots and incremented
// atomically. The write path is allocation-free. This package owns metric
// storage and snapshot creation only; it performs no I/O and must not import
// authgate or any sibling package.
package metrics

import "sync/atomic"

// MetricID identifies a single counter slot.
type MetricID int

const (
	MetricLoginSuccess MetricID = iota
	MetricLoginFailure
	MetricLoginLocked
	MetricLoginDisabled
	MetricAccountLockout
	MetricAccountDisabled
	MetricRenewalChallenge
	MetricSessionCreated
	MetricSessionInvalidated
	MetricSuspiciousLogin
	MetricCodeIssued
	MetricCodeRedeemed
	MetricCodeRejected
	MetricCodeDegraded
	MetricPasswordChange
	MetricRegistration

	MetricIDCount
)

// Config controls metric collection. When Enabled is false all operations
// are no-ops.
type Config struct {
	Enabled bool
}

type paddedCounter struct {
	value atomic.Uint64
	_     [56]byte
}

// Metrics holds one padded atomic counter per MetricID.
type Metrics struct {
	enabled  bool
	counters [MetricIDCount]paddedCounter
}

// Snapshot is a point-in-time copy of all counters.
type Snapshot struct {
	Counters map[MetricID]uint64
}

// New creates a Metrics instance configured by cfg.
func New(cfg Config) *Metrics {
	return &Metrics{enabled: cfg.Enabled}
}

// Inc increments the counter for id. Out-of-range IDs are ignored.
func (m *Metrics) Inc(id MetricID) {
	if m == nil || !m.enabled || id < 0 || id >= MetricIDCount {
		return
	}
	m.counters[id].value.Add(1)
}

// Get returns the current value of a single counter.
func (m *Metrics) Get(id MetricID) uint64 {
	if m == nil || id < 0 || id >= MetricIDCount {
		return 0
	}
	return m.counters[id].value.Load()
}

// Snapshot copies every counter into a fresh map.
func (m *Metrics) Snapshot() Snapshot {
	snap := Snapshot{Counters: make(map[MetricID]uint64, MetricIDCount)}
	if m == nil {
		return snap
	}
	for id := MetricID(0); id < MetricIDCount; id++ {
		snap.Counters[id] = m.counters[id].value.Load()
	}
	return snap
}
