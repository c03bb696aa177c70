package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/meridianlabs/authgate/validate"
	"github.com/meridianlabs/authgate/verification"
)

// ChangePassword rotates the password of an authenticated account. The
// current password must verify, the new one must pass policy and differ from
// the current one, and every session is invalidated on success so all
// devices re-authenticate.
func (e *Engine) ChangePassword(ctx context.Context, accountID, current, newPassword, confirm string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	match, err := e.hasher.Verify(current, account.PasswordHash)
	if err != nil || !match {
		return ErrInvalidCredentials
	}

	if err := e.checkNewPassword(newPassword, confirm); err != nil {
		return err
	}
	if reused, err := e.hasher.Verify(newPassword, account.PasswordHash); err == nil && reused {
		return ErrPasswordReuse
	}

	if err := e.commitPassword(ctx, account, newPassword); err != nil {
		return err
	}

	e.emitAudit(ctx, eventPasswordChanged, account.ID, "", true, "", nil)
	return nil
}

// InitiatePasswordReset issues a reset code and delivers it to the account's
// email. Unknown and disabled accounts are silently ignored so this endpoint
// cannot be used to probe for registered addresses.
func (e *Engine) InitiatePasswordReset(ctx context.Context, email string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Disabled {
		return nil
	}

	code, err := e.codes.Issue(ctx, account.ID, verification.PurposePasswordReset, e.config.Verification.CodeTTL)
	if err != nil {
		return err
	}
	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, eventCodeIssued, account.ID, "", true, "",
		map[string]string{"purpose": verification.PurposePasswordReset.String()})
	e.notify(ctx, account.ID, "password_reset_code", func() error {
		return e.notifier.SendPasswordResetCode(ctx, account.Email, code)
	})

	return nil
}

// ResetPassword completes a reset flow by redeeming the emailed code. Policy
// is checked before redemption so a weak replacement does not consume the
// single-use code. A successful reset clears any active lockout: possession
// of the code is stronger proof of ownership than the lock is of abuse.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword, confirm string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	account, err := e.accounts.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Indistinguishable from a wrong code.
			return verification.ErrCodeNotFound
		}
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Disabled {
		return ErrAccountDisabled
	}

	if err := e.checkNewPassword(newPassword, confirm); err != nil {
		return err
	}

	if err := e.codes.Redeem(ctx, account.ID, code, verification.PurposePasswordReset); err != nil {
		return err
	}

	// The reuse check compares against the stored hash, so it must not run
	// until the code has proven ownership: answering it for an unredeemed
	// code would hand unauthenticated callers a password oracle outside the
	// lockout engine.
	if reused, err := e.hasher.Verify(newPassword, account.PasswordHash); err == nil && reused {
		return ErrPasswordReuse
	}

	if err := e.commitPassword(ctx, account, newPassword); err != nil {
		return err
	}

	state := SecurityState{LockoutCount: account.LockoutCount}
	if err := e.accounts.UpdateSecurityState(ctx, account.ID, state); err != nil {
		log.Print("authgate: lockout clear after reset failed")
	}
	if err := e.attempts.Reset(ctx, account.Email); err != nil {
		log.Print("authgate: attempt counter reset failed")
	}

	e.emitAudit(ctx, eventPasswordReset, account.ID, "", true, "", nil)
	return nil
}

// checkNewPassword applies the shared password policy plus the confirmation
// check.
func (e *Engine) checkNewPassword(newPassword, confirm string) error {
	if violations := validate.Password(newPassword, e.commonPasswords); len(violations) > 0 {
		msgs := make([]string, len(violations))
		for i, v := range violations {
			msgs[i] = v.Error()
		}
		return fmt.Errorf("%w: %s", ErrPasswordPolicy, strings.Join(msgs, "; "))
	}
	if newPassword != confirm {
		return fmt.Errorf("%w: confirm_password: must match password", ErrValidation)
	}
	return nil
}

// commitPassword writes the new hash and invalidates every session. The
// write is fatal on store failure; the invalidation is fatal too because a
// password change that leaves old sessions alive is not a completed change.
func (e *Engine) commitPassword(ctx context.Context, account *Account, newPassword string) error {
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	if err := e.accounts.UpdatePasswordHash(ctx, account.ID, hash); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	revoked, err := e.sessions.InvalidateAll(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	if revoked > 0 {
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, eventSessionsRevoked, account.ID, "", true, "", nil)
	}

	e.metricInc(MetricPasswordChange)
	e.notify(ctx, account.ID, "password_changed", func() error {
		return e.notifier.SendPasswordChangedNotice(ctx, account.Email, e.now())
	})

	return nil
}
