package utils

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	ConfigurePasswordHashing(1024, 1, 1)

	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hashing failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$") {
		t.Errorf("unexpected hash format %q", hash)
	}

	if !CheckPassword("correct horse battery staple", hash) {
		t.Error("expected correct password to verify")
	}
	if CheckPassword("wrong password", hash) {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("", hash) {
		t.Error("expected empty password to fail")
	}
}

func TestHashPasswordSaltsAreUnique(t *testing.T) {
	ConfigurePasswordHashing(1024, 1, 1)

	first, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hashing failed: %v", err)
	}
	second, err := HashPassword("same input")
	if err != nil {
		t.Fatalf("hashing failed: %v", err)
	}
	if first == second {
		t.Error("expected distinct hashes for the same password")
	}
}

func TestCheckPasswordUsesParametersFromHash(t *testing.T) {
	ConfigurePasswordHashing(2048, 2, 1)
	hash, err := HashPassword("portable")
	if err != nil {
		t.Fatalf("hashing failed: %v", err)
	}

	// Verification must not depend on the currently configured cost.
	ConfigurePasswordHashing(1024, 1, 1)
	if !CheckPassword("portable", hash) {
		t.Error("expected hash created under old parameters to verify")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	cases := []string{
		"",
		"not-a-hash",
		"$argon2id$v=19$m=1024,t=1,p=1$onlysalt",
		"$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=bad,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
	}
	for _, hash := range cases {
		if CheckPassword("anything", hash) {
			t.Errorf("expected malformed hash %q to fail verification", hash)
		}
	}
}
