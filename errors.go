package authgate

import "errors"

var (
	// ErrCaptchaFailed is returned when the caller-supplied CAPTCHA check was false.
	ErrCaptchaFailed = errors.New("captcha verification failed")
	// ErrTermsNotAccepted is returned when the terms-of-service consent was false.
	ErrTermsNotAccepted = errors.New("terms of service not accepted")
	// ErrInvalidCredentials is returned for unknown emails and password mismatches alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while a time-boxed lockout is in effect.
	ErrAccountLocked = errors.New("account locked")
	// ErrAccountDisabled is returned once an account has been permanently disabled.
	ErrAccountDisabled = errors.New("account disabled")
	// ErrEmailNotVerified is returned when credentials are valid but the email is unverified.
	ErrEmailNotVerified = errors.New("email not verified")
	// ErrSubscriptionRequired is returned when the gated tier has no subscription on record.
	ErrSubscriptionRequired = errors.New("subscription required")
	// ErrSubscriptionExpiredNoContact is returned when the subscription is expired and no
	// phone is on file to deliver a renewal challenge.
	ErrSubscriptionExpiredNoContact = errors.New("subscription expired and no contact phone on file")
	// ErrRenewalChallengeInvalid is returned when completing a renewal challenge for an
	// account that has no pending challenge context.
	ErrRenewalChallengeInvalid = errors.New("renewal challenge invalid")
	// ErrAccountNotFound is the lookup sentinel implementations of [AccountStore] must return.
	ErrAccountNotFound = errors.New("account not found")
	// ErrDuplicateAccount is returned when registration collides on email, username, or phone.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrSubscriptionNotFound is the lookup sentinel implementations of [SubscriptionReader] must return.
	ErrSubscriptionNotFound = errors.New("subscription not found")
	// ErrPasswordPolicy is returned when a new password fails the shared policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrPasswordReuse is returned when the new password equals the current one.
	ErrPasswordReuse = errors.New("new password must be different from current password")
	// ErrValidation wraps the full violation list returned by registration input checks.
	ErrValidation = errors.New("input validation failed")
	// ErrPhoneInUse is returned when a phone number already belongs to another account.
	ErrPhoneInUse = errors.New("phone number already in use")
	// ErrSessionCreationFailed is returned when the session commit on login fails.
	ErrSessionCreationFailed = errors.New("session creation failed")
	// ErrSessionInvalidationFailed is returned when cascading invalidation fails.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrStoreUnavailable is returned when a persistent-store call fails or times out
	// in a position where silent success would violate a lockout or session invariant.
	ErrStoreUnavailable = errors.New("persistent store unavailable")
	// ErrEngineNotReady is returned when a method is called on an unbuilt engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)
