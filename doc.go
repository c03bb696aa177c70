// Package authgate provides the credential authentication, session lifecycle,
// and verification-code subsystem of a consumer web application: escalating
// login lockout with permanent disablement, a single-active-session policy,
// purpose-scoped single-use verification codes, and a subscription gate that
// can redirect a login into an SMS renewal challenge.
//
// The package is designed for concurrent server workloads: Engine methods are
// safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// authgate is the public surface. It exposes [Engine], [Builder], [Config],
// the store and notifier interfaces, and value types. Flow-independent pieces
// live in sub-packages (session, verification, validate, password, token);
// audit dispatch and metrics storage live under internal/ and are never
// exported directly.
//
// # What this package must NOT do
//
//   - Render HTML, register HTTP routes, or parse requests (see
//     examples/http-minimal for a binding).
//   - Verify CAPTCHAs or deliver email/SMS — both are consumed as interfaces.
//   - Manage billing. Subscription state is read through
//     [SubscriptionReader], never written except to mark an expiry observed
//     during the login gate.
//
// # Failure contract
//
// Login gate outcomes are sentinel errors recovered locally and returned for
// presentation; they never escape as panics. Persistent-store failures during
// session creation or account-state commits abort the operation.
// Verification-code issuance degrades to the in-process tier when the
// persistent write fails. Notification delivery is fire-and-forget and only
// ever audited.
package authgate
