package authgate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/meridianlabs/authgate/validate"
	"github.com/meridianlabs/authgate/verification"
)

// Register creates a new account after full input validation. The returned
// account is unverified and carries no tier; tier assignment belongs to the
// billing system.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (*Account, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	phone, violations := validate.Run(ctx, validate.Inputs{
		Email:           req.Email,
		Username:        req.Username,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		HasConfirm:      true,
		Phone:           req.Phone,
		CommonPasswords: e.commonPasswords,
		PhoneInUse:      e.phoneInUse(""),
	})
	if len(violations) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrValidation, joinViolations(violations))
	}

	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:           uuid.NewString(),
		Email:        strings.ToLower(req.Email),
		Username:     req.Username,
		PasswordHash: hash,
		Phone:        phone,
		Active:       true,
	}
	if err := e.accounts.Create(ctx, account); err != nil {
		if errors.Is(err, ErrDuplicateAccount) {
			return nil, ErrDuplicateAccount
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.metricInc(MetricRegistration)
	e.emitAudit(ctx, eventRegistration, account.ID, "", true, "", nil)

	return account, nil
}

// Logout invalidates the session identified by the presented refresh token.
func (e *Engine) Logout(ctx context.Context, refreshToken string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	sess, err := e.sessions.Validate(ctx, refreshToken)
	if err != nil {
		return err
	}
	if err := e.sessions.Invalidate(ctx, sess.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	e.metricInc(MetricSessionInvalidated)
	e.emitAudit(ctx, eventSessionsRevoked, sess.AccountID, sess.ID, true, "", nil)
	return nil
}

// LogoutAll invalidates every session for the account.
func (e *Engine) LogoutAll(ctx context.Context, accountID string) error {
	if e == nil {
		return ErrEngineNotReady
	}

	revoked, err := e.sessions.InvalidateAll(ctx, accountID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	if revoked > 0 {
		e.metricInc(MetricSessionInvalidated)
		e.emitAudit(ctx, eventSessionsRevoked, accountID, "", true, "", nil)
	}
	return nil
}

// RequestPhoneUpdate delivers a verification code to a new phone number. The
// number is not written anywhere yet; [Engine.ConfirmPhoneUpdate] carries it
// again together with the code, which keeps the flow stateless across
// processes.
func (e *Engine) RequestPhoneUpdate(ctx context.Context, accountID, newPhone string) error {
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

	phone, err := e.checkPhoneAvailable(ctx, account.ID, newPhone)
	if err != nil {
		return err
	}

	code, err := e.codes.Issue(ctx, account.ID, verification.PurposePhoneUpdate, e.config.Verification.CodeTTL)
	if err != nil {
		return err
	}
	e.metricInc(MetricCodeIssued)
	e.emitAudit(ctx, eventCodeIssued, account.ID, "", true, "",
		map[string]string{"purpose": verification.PurposePhoneUpdate.String()})
	e.notify(ctx, account.ID, "phone_update_code", func() error {
		return e.notifier.SendVerificationCode(ctx, account.ID, phone, code)
	})

	return nil
}

// ConfirmPhoneUpdate redeems the code delivered to the new phone and commits
// the number to the account.
func (e *Engine) ConfirmPhoneUpdate(ctx context.Context, accountID, newPhone, code string) error {
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

	// Re-check: the number may have been claimed between request and confirm.
	phone, err := e.checkPhoneAvailable(ctx, account.ID, newPhone)
	if err != nil {
		return err
	}

	if err := e.codes.Redeem(ctx, account.ID, code, verification.PurposePhoneUpdate); err != nil {
		return err
	}

	if err := e.accounts.UpdatePhone(ctx, account.ID, phone); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.emitAudit(ctx, eventPhoneUpdated, account.ID, "", true, "", nil)
	return nil
}

// checkPhoneAvailable normalizes a phone number and rejects it when another
// account already holds it.
func (e *Engine) checkPhoneAvailable(ctx context.Context, accountID, rawPhone string) (string, error) {
	phone, err := validate.NormalizePhone(rawPhone)
	if err != nil {
		return "", fmt.Errorf("%w: phone: must be a valid phone number", ErrValidation)
	}

	inUse, err := e.phoneInUse(accountID)(ctx, phone)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if inUse {
		return "", ErrPhoneInUse
	}
	return phone, nil
}

// phoneInUse returns a lookup that reports whether a normalized phone number
// belongs to an account other than excludeID.
func (e *Engine) phoneInUse(excludeID string) func(ctx context.Context, phone string) (bool, error) {
	return func(ctx context.Context, phone string) (bool, error) {
		owner, err := e.accounts.GetByPhone(ctx, phone)
		if err != nil {
			if errors.Is(err, ErrAccountNotFound) {
				return false, nil
			}
			return false, err
		}
		return owner.ID != excludeID, nil
	}
}

func joinViolations(violations []error) string {
	msgs := make([]string, len(violations))
	for i, v := range violations {
		msgs[i] = v.Error()
	}
	return strings.Join(msgs, "; ")
}
