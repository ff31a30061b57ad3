// Package auth holds the password hashing, session token and per-request
// authorization primitives shared by the services and HTTP layers.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	DefaultHashIterations = 1000
	hashKeyLength         = sha256.Size
)

// Hasher derives the stored form of a password with PBKDF2-HMAC-SHA256.
// The salt is application-wide, so equal passwords produce equal hashes.
type Hasher struct {
	salt       []byte
	iterations int
}

func NewHasher(salt []byte, iterations int) *Hasher {
	if iterations < 1 {
		iterations = DefaultHashIterations
	}
	return &Hasher{
		salt:       append([]byte(nil), salt...),
		iterations: iterations,
	}
}

// Hash returns the upper-case hex PBKDF2 digest of plain.
func (h *Hasher) Hash(plain string) string {
	key := pbkdf2.Key([]byte(plain), h.salt, h.iterations, hashKeyLength, sha256.New)
	return strings.ToUpper(hex.EncodeToString(key))
}

// Matches reports whether plain hashes to stored.
func (h *Hasher) Matches(plain, stored string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(plain)), []byte(stored)) == 1
}
