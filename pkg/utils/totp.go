package utils

import (
	"crypto/subtle"
	"encoding/base32"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

var totpEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// TOTPProvisioningURI builds the otpauth:// URI an authenticator app scans
// during enrollment.
func TOTPProvisioningURI(issuer, account string, secret []byte) (string, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      issuer,
		AccountName: account,
		Secret:      secret,
	})
	if err != nil {
		return "", fmt.Errorf("building provisioning uri: %w", err)
	}
	return key.URL(), nil
}

// VerifyTOTPCode checks a 6-digit code against the raw secret, tolerating
// one 30-second step of clock skew in either direction. On success it
// returns the time step the code matched, so callers can persist it and
// reject a replay of the same code within its window.
func VerifyTOTPCode(code string, secret []byte, at time.Time) (bool, int64) {
	encoded := totpEncoding.EncodeToString(secret)
	step := at.Unix() / totpPeriod

	matched := false
	matchedStep := int64(0)
	for _, offset := range []int64{0, -1, 1} {
		candidate := step + offset
		expected, err := totp.GenerateCode(encoded, time.Unix(candidate*totpPeriod, 0))
		if err != nil {
			return false, 0
		}
		// Compare every window to keep timing independent of which
		// step (if any) matches.
		if subtle.ConstantTimeCompare([]byte(code), []byte(expected)) == 1 && !matched {
			matched = true
			matchedStep = candidate
		}
	}
	return matched, matchedStep
}

// GenerateTOTPCode derives the code for the secret at the given time.
// Used by enrollment tests and verification tooling.
func GenerateTOTPCode(secret []byte, at time.Time) (string, error) {
	return totp.GenerateCode(totpEncoding.EncodeToString(secret), at)
}
