// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"github.com/samber/oops"
	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2 parameters. Changing any of them invalidates every stored hash.
const (
	pbkdf2Iterations = 100000
	pbkdf2SaltLen    = 16
	pbkdf2KeyLen     = 32
)

// PasswordHasher provides password hashing and verification.
type PasswordHasher interface {
	// Hash produces an encoded salted hash of the password.
	Hash(password string) (string, error)

	// Verify reports whether password matches encoded. Malformed input
	// never errors; it simply does not match.
	Verify(password, encoded string) bool
}

// PBKDF2Hasher implements PasswordHasher using PBKDF2-HMAC-SHA256.
//
// The encoding is standard padded base64 of salt (16 bytes) followed by the
// derived key (32 bytes).
type PBKDF2Hasher struct {
	iterations int
}

// NewPBKDF2Hasher creates a hasher with the production iteration count.
func NewPBKDF2Hasher() *PBKDF2Hasher {
	return &PBKDF2Hasher{iterations: pbkdf2Iterations}
}

// NewPBKDF2HasherWithIterations creates a hasher with a custom iteration
// count. Hashes it produces do not verify under NewPBKDF2Hasher; use it only
// where stored hashes never leave the process, such as tests.
func NewPBKDF2HasherWithIterations(iterations int) *PBKDF2Hasher {
	if iterations <= 0 {
		iterations = pbkdf2Iterations
	}
	return &PBKDF2Hasher{iterations: iterations}
}

// Hash produces a PBKDF2 hash of the password with a fresh random salt.
func (h *PBKDF2Hasher) Hash(password string) (string, error) {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return h.encode(password, salt), nil
}

// Verify checks if the password matches the encoded hash.
func (h *PBKDF2Hasher) Verify(password, encoded string) bool {
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(decoded) <= pbkdf2SaltLen {
		return false
	}

	salt, stored := decoded[:pbkdf2SaltLen], decoded[pbkdf2SaltLen:]
	key := pbkdf2.Key([]byte(password), salt, h.iterations, pbkdf2KeyLen, sha256.New)

	return subtle.ConstantTimeCompare(key, stored) == 1
}

func (h *PBKDF2Hasher) encode(password string, salt []byte) string {
	key := pbkdf2.Key([]byte(password), salt, h.iterations, pbkdf2KeyLen, sha256.New)

	buf := make([]byte, 0, len(salt)+len(key))
	buf = append(buf, salt...)
	buf = append(buf, key...)
	return base64.StdEncoding.EncodeToString(buf)
}
