package utils

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Alphabet for backup codes. 32 characters with the easily confused
// I, O, 0 and 1 removed, so a byte modulo the length has no bias.
const backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const (
	secureTokenBytes = 32
	mfaSecretBytes   = 20
	backupCodeLength = 8
)

// GenerateSecureToken returns a 64-character hex token backed by 32 bytes
// of CSPRNG output. Used for session ids, password reset tokens and MFA
// challenge handles.
func GenerateSecureToken() (string, error) {
	b := make([]byte, secureTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateMFASecret returns 20 raw random bytes, the standard TOTP shared
// secret length.
func GenerateMFASecret() ([]byte, error) {
	b := make([]byte, mfaSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("reading random bytes: %w", err)
	}
	return b, nil
}

// GenerateBackupCode returns one 8-character uppercase single-use code.
func GenerateBackupCode() (string, error) {
	b := make([]byte, backupCodeLength)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	code := make([]byte, backupCodeLength)
	for i, v := range b {
		code[i] = backupCodeAlphabet[int(v)%len(backupCodeAlphabet)]
	}
	return string(code), nil
}

// GenerateBackupCodes returns count distinct-by-chance backup codes.
func GenerateBackupCodes(count int) ([]string, error) {
	codes := make([]string, 0, count)
	for i := 0; i < count; i++ {
		code, err := GenerateBackupCode()
		if err != nil {
			return nil, err
		}
		codes = append(codes, code)
	}
	return codes, nil
}
