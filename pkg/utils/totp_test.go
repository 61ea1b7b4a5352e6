package utils

import (
	"strings"
	"testing"
	"time"
)

func totpSecret(t *testing.T) []byte {
	t.Helper()
	secret, err := GenerateMFASecret()
	if err != nil {
		t.Fatalf("generating secret: %v", err)
	}
	return secret
}

func TestVerifyTOTPCodeAcceptsAdjacentWindows(t *testing.T) {
	secret := totpSecret(t)
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	for _, offset := range []time.Duration{-30 * time.Second, 0, 30 * time.Second} {
		code, err := GenerateTOTPCode(secret, now.Add(offset))
		if err != nil {
			t.Fatalf("generating code: %v", err)
		}
		ok, _ := VerifyTOTPCode(code, secret, now)
		if !ok {
			t.Errorf("expected code at offset %v to verify", offset)
		}
	}
}

func TestVerifyTOTPCodeRejectsDistantWindows(t *testing.T) {
	secret := totpSecret(t)
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	code, err := GenerateTOTPCode(secret, now.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	if ok, _ := VerifyTOTPCode(code, secret, now); ok {
		t.Error("expected code two minutes ahead to be rejected")
	}
}

func TestVerifyTOTPCodeRejectsGarbage(t *testing.T) {
	secret := totpSecret(t)
	now := time.Now()

	for _, code := range []string{"", "abc", "12345", "0000000000"} {
		if ok, _ := VerifyTOTPCode(code, secret, now); ok {
			t.Errorf("expected %q to be rejected", code)
		}
	}
}

func TestVerifyTOTPCodeStepIncreasesOverTime(t *testing.T) {
	secret := totpSecret(t)
	now := time.Date(2025, 6, 1, 12, 0, 15, 0, time.UTC)

	early, err := GenerateTOTPCode(secret, now)
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}
	late, err := GenerateTOTPCode(secret, now.Add(30*time.Second))
	if err != nil {
		t.Fatalf("generating code: %v", err)
	}

	okEarly, stepEarly := VerifyTOTPCode(early, secret, now)
	okLate, stepLate := VerifyTOTPCode(late, secret, now)
	if !okEarly || !okLate {
		t.Fatal("expected both codes to verify")
	}
	if stepLate <= stepEarly {
		t.Errorf("expected later step %d to exceed earlier step %d", stepLate, stepEarly)
	}
}

func TestTOTPProvisioningURI(t *testing.T) {
	secret := totpSecret(t)

	uri, err := TOTPProvisioningURI("Sitework", "ada@example.com", secret)
	if err != nil {
		t.Fatalf("building uri: %v", err)
	}
	if !strings.HasPrefix(uri, "otpauth://totp/") {
		t.Errorf("unexpected scheme in %q", uri)
	}
	if !strings.Contains(uri, "Sitework") {
		t.Errorf("expected issuer in %q", uri)
	}
	if !strings.Contains(uri, "ada%40example.com") && !strings.Contains(uri, "ada@example.com") {
		t.Errorf("expected account in %q", uri)
	}
}
