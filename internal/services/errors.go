package services

import "errors"

// Authentication failures surfaced to callers. Anything not in this list
// is a transient infrastructure failure and must not be shown verbatim.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAccountSuspended   = errors.New("account suspended")

	ErrEmailTaken = errors.New("an account with this email already exists")
	ErrSlugTaken  = errors.New("this workspace URL is already taken")

	ErrInvalidResetToken = errors.New("invalid reset token")
	ErrResetTokenExpired = errors.New("reset token expired")

	ErrMFASessionExpired       = errors.New("mfa session expired")
	ErrMFASetupExpired         = errors.New("mfa setup session expired")
	ErrInvalidVerificationCode = errors.New("invalid verification code")
	// ErrInvalidMFASession marks a consistency anomaly: a live challenge
	// pointing at a user with no usable MFA configuration.
	ErrInvalidMFASession = errors.New("invalid mfa session")

	ErrMFAAlreadyEnabled = errors.New("mfa is already enabled")
	ErrMFANotEnabled     = errors.New("mfa is not enabled")
)

// IsAuthError reports whether err is one of the caller-visible
// authentication failures above.
func IsAuthError(err error) bool {
	for _, known := range []error{
		ErrInvalidCredentials,
		ErrAccountSuspended,
		ErrEmailTaken,
		ErrSlugTaken,
		ErrInvalidResetToken,
		ErrResetTokenExpired,
		ErrMFASessionExpired,
		ErrMFASetupExpired,
		ErrInvalidVerificationCode,
		ErrInvalidMFASession,
		ErrMFAAlreadyEnabled,
		ErrMFANotEnabled,
	} {
		if errors.Is(err, known) {
			return true
		}
	}
	return false
}
