package authgate

import (
	"context"
	"log"

	internalaudit "github.com/meridianlabs/authgate/internal/audit"
)

// Audit event type names. Stable strings; downstream sinks key on them.
const (
	eventLoginSuccess     = "login_success"
	eventLoginFailure     = "login_failure"
	eventLoginLocked      = "login_locked"
	eventLoginDisabled    = "login_disabled"
	eventAccountLockout   = "account_lockout"
	eventAccountDisabled  = "account_disabled"
	eventRenewalChallenge = "renewal_challenge"
	eventRenewalComplete  = "renewal_complete"
	eventSessionCreated   = "session_created"
	eventSessionsRevoked  = "sessions_revoked"
	eventSuspiciousLogin  = "suspicious_login"
	eventCodeIssued       = "code_issued"
	eventCodeRedeemed     = "code_redeemed"
	eventCodeRejected     = "code_rejected"
	eventCodeDegraded     = "code_degraded"
	eventPasswordChanged  = "password_changed"
	eventPasswordReset    = "password_reset"
	eventPhoneUpdated     = "phone_updated"
	eventRegistration     = "registration"
	eventNotifyFailed     = "notification_failed"
)

func (e *Engine) emitAudit(ctx context.Context, eventType, accountID, sessionID string, success bool, errMsg string, metadata map[string]string) {
	if e == nil || e.audit == nil {
		return
	}
	e.audit.Emit(ctx, internalaudit.Event{
		Timestamp: e.now(),
		EventType: eventType,
		AccountID: accountID,
		SessionID: sessionID,
		IP:        clientIPFromContext(ctx),
		Success:   success,
		Error:     errMsg,
		Metadata:  metadata,
	})
}

// notify runs a delivery call and downgrades any failure to an audit entry
// and a log line. Notification failures never alter an authentication
// decision.
func (e *Engine) notify(ctx context.Context, accountID, kind string, fn func() error) {
	if err := fn(); err != nil {
		log.Print("authgate: " + kind + " notification failed")
		e.emitAudit(ctx, eventNotifyFailed, accountID, "", false, err.Error(), map[string]string{"kind": kind})
	}
}
