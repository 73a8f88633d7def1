// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/google/uuid"
	"github.com/samber/oops"
	"golang.org/x/crypto/argon2"
)

// Password hashing schemes.
const (
	SchemeArgon2id = "argon2id"
	// SchemeSHA256 is one SHA-256 pass over salt ":" password.
	// It is kept to verify records written before argon2id became the default.
	SchemeSHA256 = "sha256"
)

// OWASP-recommended argon2id parameters.
const (
	argon2Time    = 1         // iterations
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4         // parallelism
	argon2KeyLen  = 32        // output length in bytes
)

// MinPasswordLength is the shortest accepted password, in characters.
const MinPasswordLength = 8

// ErrEmptyPassword is returned when attempting to hash an empty password.
var ErrEmptyPassword = oops.Code("AUTH_EMPTY_PASSWORD").Errorf("password cannot be empty")

// PasswordHasher derives a digest from a password and a per-user salt.
type PasswordHasher interface {
	// Scheme names the algorithm, stored alongside the digest.
	Scheme() string

	// Hash returns the lowercase hex digest of password under salt.
	Hash(password, salt string) (string, error)

	// Verify recomputes the digest and compares it in constant time.
	// Returns (true, nil) on match, (false, nil) on mismatch.
	Verify(password, salt, digest string) (bool, error)
}

// NewHasher returns the hasher for a scheme name.
func NewHasher(scheme string) (PasswordHasher, error) {
	switch scheme {
	case SchemeArgon2id, "":
		return NewArgon2idHasher(), nil
	case SchemeSHA256:
		return NewSHA256Hasher(), nil
	default:
		return nil, oops.Code("AUTH_UNKNOWN_SCHEME").With("scheme", scheme).Errorf("unknown password scheme %q", scheme)
	}
}

// GenerateSalt returns a fresh random salt.
func GenerateSalt() (string, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return "", oops.Code("AUTH_SALT_FAILED").Wrap(err)
	}
	return id.String(), nil
}

// Argon2idHasher implements PasswordHasher using argon2id.
type Argon2idHasher struct{}

// NewArgon2idHasher creates a new Argon2idHasher.
func NewArgon2idHasher() *Argon2idHasher {
	return &Argon2idHasher{}
}

// Scheme implements PasswordHasher.
func (h *Argon2idHasher) Scheme() string { return SchemeArgon2id }

// Hash implements PasswordHasher.
func (h *Argon2idHasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	if salt == "" {
		return "", oops.Code("AUTH_EMPTY_SALT").Errorf("salt cannot be empty")
	}
	key := argon2.IDKey([]byte(password), []byte(salt), argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return hex.EncodeToString(key), nil
}

// Verify implements PasswordHasher.
func (h *Argon2idHasher) Verify(password, salt, digest string) (bool, error) {
	return verifyWith(h, password, salt, digest)
}

// SHA256Hasher implements PasswordHasher with a single SHA-256 pass.
// It is not a memory-hard KDF.
type SHA256Hasher struct{}

// NewSHA256Hasher creates a new SHA256Hasher.
func NewSHA256Hasher() *SHA256Hasher {
	return &SHA256Hasher{}
}

// Scheme implements PasswordHasher.
func (h *SHA256Hasher) Scheme() string { return SchemeSHA256 }

// Hash implements PasswordHasher.
func (h *SHA256Hasher) Hash(password, salt string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}
	sum := sha256.Sum256([]byte(salt + ":" + password))
	return hex.EncodeToString(sum[:]), nil
}

// Verify implements PasswordHasher.
func (h *SHA256Hasher) Verify(password, salt, digest string) (bool, error) {
	return verifyWith(h, password, salt, digest)
}

func verifyWith(h PasswordHasher, password, salt, digest string) (bool, error) {
	if digest == "" {
		return false, oops.Code("AUTH_INVALID_HASH").Errorf("stored digest is empty")
	}
	if password == "" {
		return false, nil
	}
	computed, err := h.Hash(password, salt)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(digest)) == 1, nil
}
