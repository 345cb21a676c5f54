package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// PasswordHasher isolates the stored digest scheme behind an interface so
// it can be swapped without touching call sites. The specification calls
// for determinism and constant-time verification, not cryptographic
// strength — the reference hash is kept on purpose for fidelity.
type PasswordHasher interface {
	Hash(password string) string
	Verify(password, hash string) bool
}

// LegacyHasher reproduces the reference server's djb2-style digest:
// hash = hash*33 + c over the password bytes, seeded at 5381 and
// formatted as 16 lowercase hex digits.
type LegacyHasher struct{}

// Hash computes the digest for password.
func (LegacyHasher) Hash(password string) string {
	var hash uint64 = 5381
	for _, c := range []byte(password) {
		hash = hash*33 + uint64(c)
	}
	return fmt.Sprintf("%016x", hash)
}

// Verify reports whether password hashes to hash, comparing in
// constant time so digest comparison doesn't leak timing information.
func (h LegacyHasher) Verify(password, hash string) bool {
	computed := h.Hash(password)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(hash)) == 1
}

const (
	pbkdf2Iterations = 100_000
	pbkdf2KeyLen     = 32
	pbkdf2SaltLen    = 16
)

// PBKDF2Hasher is a real KDF-backed PasswordHasher, stored as
// "salt_hex:derived_hex". Not the one in use — cmd/klingoserver passes
// LegacyHasher to auth.New to match the reference server byte-for-byte — but
// available so a deployment can swap the capability without touching
// any call site.
type PBKDF2Hasher struct{}

// Hash derives a fresh random salt and returns "salt:derived".
func (PBKDF2Hasher) Hash(password string) string {
	salt := make([]byte, pbkdf2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		panic(fmt.Sprintf("auth: pbkdf2 salt generation failed: %v", err))
	}
	derived := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(derived)
}

// Verify reports whether password derives to the salt/digest pair
// encoded in hash.
func (PBKDF2Hasher) Verify(password, hash string) bool {
	parts := strings.SplitN(hash, ":", 2)
	if len(parts) != 2 {
		return false
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := hex.DecodeString(parts[1])
	if err != nil {
		return false
	}
	got := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, pbkdf2KeyLen, sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
