package authgate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"

	"github.com/meridianlabs/authgate/verification"
)

// Login runs a full login attempt through the ordered gate sequence:
// consent, lockout, credential, account status, subscription, session
// creation. The first failing gate decides the outcome; later gates are
// never consulted.
//
// A nil error with RenewalRequired set means the credentials were accepted
// but the account's subscription lapsed: no session exists yet and the
// caller must finish via [Engine.CompleteRenewalChallenge].
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	// Consent gate. Nothing is counted or audited against an account for
	// requests that never presented a usable attempt.
	if !req.CaptchaOK {
		return nil, ErrCaptchaFailed
	}
	if !req.TermsAccepted {
		return nil, ErrTermsNotAccepted
	}

	ip := req.ClientIP
	if ip == "" {
		ip = clientIPFromContext(ctx)
	}
	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = userAgentFromContext(ctx)
	}

	account, err := e.accounts.GetByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			// Unknown emails still feed the fast counter tier so probing a
			// nonexistent address is throttled like a real one.
			if _, err := e.attempts.Bump(ctx, req.Email); err != nil {
				log.Print("authgate: attempt counter bump failed")
			}
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, eventLoginFailure, "", "", false, "unknown email", nil)
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	// Lockout gate. The persisted row is the authority; the counter tier is
	// a pre-filter that can only add restriction.
	if account.Disabled {
		e.metricInc(MetricLoginDisabled)
		e.emitAudit(ctx, eventLoginDisabled, account.ID, "", false, ErrAccountDisabled.Error(), nil)
		return nil, ErrAccountDisabled
	}
	if account.LockedUntil != nil && account.LockedUntil.After(e.now()) {
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, eventLoginLocked, account.ID, "", false, ErrAccountLocked.Error(), nil)
		return nil, ErrAccountLocked
	}
	if tierCount, err := e.attempts.Count(ctx, req.Email); err != nil {
		log.Print("authgate: attempt counter read failed")
	} else if tierCount >= e.config.Lockout.MaxAttempts {
		// Another process may already hold this account locked; reject
		// before spending a hash verification.
		e.metricInc(MetricLoginLocked)
		e.emitAudit(ctx, eventLoginLocked, account.ID, "", false, ErrAccountLocked.Error(), map[string]string{"source": "counter_tier"})
		return nil, ErrAccountLocked
	}

	// Credential gate.
	match, err := e.hasher.Verify(req.Password, account.PasswordHash)
	if err != nil {
		log.Print("authgate: stored password hash unreadable")
		match = false
	}
	if !match {
		return nil, e.recordFailedAttempt(ctx, account, req.Email)
	}

	// Account status gate. Runs only after the credential succeeded so the
	// response does not leak state to password-guessing callers.
	if !account.Active {
		e.metricInc(MetricLoginDisabled)
		e.emitAudit(ctx, eventLoginDisabled, account.ID, "", false, "account inactive", nil)
		return nil, ErrAccountDisabled
	}
	if !account.Verified {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, ErrEmailNotVerified.Error(), nil)
		return nil, ErrEmailNotVerified
	}

	// Subscription gate.
	if result, err := e.subscriptionGate(ctx, account); err != nil {
		return nil, err
	} else if result != nil {
		return result, nil
	}

	return e.finishSuccessfulLogin(ctx, account, req.Password, ip, userAgent, req.Fingerprint)
}

// recordFailedAttempt counts a credential mismatch and applies the
// escalation ladder when the in-window count crosses the threshold. The
// caller always receives ErrInvalidCredentials: a lockout applied by this
// very attempt surfaces on the next one.
func (e *Engine) recordFailedAttempt(ctx context.Context, account *Account, email string) error {
	tierCount, err := e.attempts.Bump(ctx, email)
	if err != nil {
		log.Print("authgate: attempt counter bump failed")
		tierCount = 0
	}

	// The persisted counter resets only on success or lockout, so whichever
	// tier has seen more failures wins.
	count := account.FailedLoginAttempts + 1
	if tierCount > count {
		count = tierCount
	}

	if count < e.config.Lockout.MaxAttempts {
		state := SecurityState{
			FailedLoginAttempts: count,
			LockedUntil:         account.LockedUntil,
			LockoutCount:        account.LockoutCount,
		}
		if err := e.accounts.UpdateSecurityState(ctx, account.ID, state); err != nil {
			return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, ErrInvalidCredentials.Error(),
			map[string]string{"failed_attempts": strconv.Itoa(count)})
		return ErrInvalidCredentials
	}

	// Escalate. The counter restarts at zero so the next lockout requires a
	// full fresh run of failures.
	lockedUntil := e.now().Add(e.config.Lockout.LockoutDuration)
	lockoutCount := account.LockoutCount + 1
	state := SecurityState{
		FailedLoginAttempts: 0,
		LockedUntil:         &lockedUntil,
		LockoutCount:        lockoutCount,
		Disabled:            lockoutCount >= e.config.Lockout.MaxLockouts,
	}
	if err := e.accounts.UpdateSecurityState(ctx, account.ID, state); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if err := e.attempts.Reset(ctx, email); err != nil {
		log.Print("authgate: attempt counter reset failed")
	}

	e.metricInc(MetricLoginFailure)
	e.metricInc(MetricAccountLockout)
	e.emitAudit(ctx, eventAccountLockout, account.ID, "", false, "",
		map[string]string{"lockout_count": strconv.Itoa(lockoutCount)})

	if state.Disabled {
		e.metricInc(MetricAccountDisabled)
		e.emitAudit(ctx, eventAccountDisabled, account.ID, "", false, "", nil)
		e.notify(ctx, account.ID, "disabled", func() error {
			return e.notifier.SendDisabledNotice(ctx, account.Email)
		})
	} else {
		minutes := int(e.config.Lockout.LockoutDuration.Minutes())
		e.notify(ctx, account.ID, "lockout", func() error {
			return e.notifier.SendLockoutNotice(ctx, account.Email, minutes)
		})
	}

	return ErrInvalidCredentials
}

// subscriptionGate returns (nil, nil) when the login may proceed, a non-nil
// result when the attempt is redirected into a renewal challenge, or an
// error when the subscription blocks the login outright.
func (e *Engine) subscriptionGate(ctx context.Context, account *Account) (*LoginResult, error) {
	if e.subscriptions == nil || account.Tier != e.config.Subscription.GatedTier {
		return nil, nil
	}

	sub, err := e.subscriptions.Latest(ctx, account.ID)
	if err != nil {
		if errors.Is(err, ErrSubscriptionNotFound) {
			e.metricInc(MetricLoginFailure)
			e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, ErrSubscriptionRequired.Error(), nil)
			return nil, ErrSubscriptionRequired
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	switch sub.Status {
	case SubscriptionActive:
		if sub.EndDate.After(e.now()) {
			return nil, nil
		}
		// The billing row lagged behind its own end date; record the
		// transition before redirecting into renewal.
		if err := e.subscriptions.MarkExpired(ctx, sub.ID); err != nil {
			log.Print("authgate: subscription expiry transition failed")
		}
	case SubscriptionExpired:
		// Renewal path below.
	default:
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, ErrSubscriptionRequired.Error(),
			map[string]string{"subscription_status": string(sub.Status)})
		return nil, ErrSubscriptionRequired
	}

	if account.Phone == "" {
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, ErrSubscriptionExpiredNoContact.Error(), nil)
		return nil, ErrSubscriptionExpiredNoContact
	}

	code, err := e.codes.Issue(ctx, account.ID, verification.PurposeRenewal, e.config.Verification.CodeTTL)
	if err != nil {
		return nil, err
	}
	e.metricInc(MetricCodeIssued)
	e.metricInc(MetricRenewalChallenge)
	e.emitAudit(ctx, eventRenewalChallenge, account.ID, "", true, "", nil)
	e.notify(ctx, account.ID, "renewal_code", func() error {
		return e.notifier.SendVerificationCode(ctx, account.ID, account.Phone, code)
	})

	return &LoginResult{
		RenewalRequired: true,
		Challenge: &RenewalChallenge{
			AccountID: account.ID,
			Email:     account.Email,
			Phone:     account.Phone,
		},
	}, nil
}

// CompleteRenewalChallenge finishes a login that was interrupted by the
// subscription renewal gate. The code must be the one delivered for this
// account's pending challenge; redeeming it consumes it.
func (e *Engine) CompleteRenewalChallenge(ctx context.Context, accountID, code string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}

	account, err := e.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, ErrRenewalChallengeInvalid
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if account.Disabled {
		return nil, ErrAccountDisabled
	}
	if account.LockedUntil != nil && account.LockedUntil.After(e.now()) {
		return nil, ErrAccountLocked
	}

	if err := e.codes.Redeem(ctx, accountID, code, verification.PurposeRenewal); err != nil {
		if errors.Is(err, verification.ErrCodeNotFound) {
			return nil, ErrRenewalChallengeInvalid
		}
		return nil, err
	}

	e.emitAudit(ctx, eventRenewalComplete, account.ID, "", true, "", nil)

	return e.finishSuccessfulLogin(ctx, account,
		"", clientIPFromContext(ctx), userAgentFromContext(ctx), nil)
}

// finishSuccessfulLogin is the shared tail of every accepted login: counters
// reset, optional hash upgrade, prior-session invalidation plus creation,
// suspicious-login monitoring, token issuance. plaintext is empty on paths
// that never saw the password (renewal completion), which skips the upgrade.
func (e *Engine) finishSuccessfulLogin(ctx context.Context, account *Account, plaintext, ip, userAgent string, fingerprint []byte) (*LoginResult, error) {
	now := e.now()

	if err := e.attempts.Reset(ctx, account.Email); err != nil {
		log.Print("authgate: attempt counter reset failed")
	}
	// A failure here leaves stale failure counters behind, which is the
	// restrictive direction; the login itself proceeds.
	if err := e.accounts.RecordLogin(ctx, account.ID, now); err != nil {
		log.Print("authgate: login bookkeeping write failed")
	}

	if plaintext != "" && e.config.Password.UpgradeOnLogin {
		if upgrade, err := e.hasher.NeedsUpgrade(account.PasswordHash); err == nil && upgrade {
			if newHash, err := e.hasher.Hash(plaintext); err == nil {
				if err := e.accounts.UpdatePasswordHash(ctx, account.ID, newHash); err != nil {
					log.Print("authgate: password hash upgrade write failed")
				}
			}
		}
	}

	sess, refreshToken, err := e.sessions.Create(ctx, account.ID, ip, userAgent, fingerprint)
	if err != nil {
		e.emitAudit(ctx, eventLoginFailure, account.ID, "", false, err.Error(), nil)
		return nil, fmt.Errorf("%w: %v", ErrSessionCreationFailed, err)
	}
	e.metricInc(MetricSessionCreated)
	e.emitAudit(ctx, eventSessionCreated, account.ID, sess.ID, true, "", nil)

	if flagged, err := e.sessions.MonitorSuspiciousLogin(ctx, account.ID, ip, fingerprint); err != nil {
		log.Print("authgate: suspicious login check failed")
	} else if flagged {
		e.metricInc(MetricSuspiciousLogin)
		e.emitAudit(ctx, eventSuspiciousLogin, account.ID, sess.ID, true, "", nil)
	}

	var accessToken string
	if e.tokens != nil {
		accessToken, err = e.tokens.Issue(account.ID, sess.ID)
		if err != nil {
			return nil, err
		}
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, eventLoginSuccess, account.ID, sess.ID, true, "", nil)

	return &LoginResult{
		Session:      sess,
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
