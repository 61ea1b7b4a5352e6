package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id cost parameters. Defaults follow the OWASP low-memory
// recommendation (19 MiB, t=2, p=1). The parameters are embedded in each
// encoded hash, so existing hashes remain verifiable after a change here.
var (
	argonMemory      uint32 = 19456
	argonTime        uint32 = 2
	argonParallelism uint8  = 1
)

const (
	argonSaltLen = 16
	argonKeyLen  = 32
)

// ConfigurePasswordHashing overrides the argon2id cost parameters used for
// newly created hashes. Zero values leave the current setting unchanged.
func ConfigurePasswordHashing(memoryKiB, timeCost uint32, parallelism uint8) {
	if memoryKiB > 0 {
		argonMemory = memoryKiB
	}
	if timeCost > 0 {
		argonTime = timeCost
	}
	if parallelism > 0 {
		argonParallelism = parallelism
	}
}

// HashPassword derives an argon2id hash of the plaintext and returns it in
// the standard PHC string format.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonParallelism, argonKeyLen)

	encoded := fmt.Sprintf(
		"$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		argonMemory,
		argonTime,
		argonParallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
	return encoded, nil
}

// CheckPassword reports whether the plaintext matches the encoded argon2id
// hash. Cost parameters are read from the hash itself. A malformed hash is
// treated as a mismatch; the comparison itself is constant time.
func CheckPassword(password, encoded string) bool {
	memory, timeCost, parallelism, salt, key, err := decodeArgonHash(encoded)
	if err != nil {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, timeCost, memory, parallelism, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1
}

func decodeArgonHash(encoded string) (memory, timeCost uint32, parallelism uint8, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}

	var version int
	if _, err = fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, errors.New("unsupported argon2 version")
	}

	var par uint32
	if _, err = fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &timeCost, &par); err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}
	if memory == 0 || timeCost == 0 || par == 0 || par > 255 {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return 0, 0, 0, nil, nil, errors.New("malformed argon2id hash")
	}

	return memory, timeCost, uint8(par), salt, key, nil
}
