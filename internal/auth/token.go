package auth

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultTokenTTL = 24 * time.Hour

// TokenGenerator issues opaque session tokens and their expiry.
type TokenGenerator struct {
	hasher *Hasher
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenGenerator(hasher *Hasher, ttl time.Duration, now func() time.Time) *TokenGenerator {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	if now == nil {
		now = time.Now
	}
	return &TokenGenerator{hasher: hasher, ttl: ttl, now: now}
}

// NewToken hashes a random UUID into a 64 character hex token.
func (g *TokenGenerator) NewToken() string {
	seed := strings.ReplaceAll(uuid.NewString(), "-", "")
	return g.hasher.Hash(seed)
}

// ExpiryOf returns issuedAt plus the token lifetime as epoch seconds.
func (g *TokenGenerator) ExpiryOf(issuedAt time.Time) int64 {
	return issuedAt.Add(g.ttl).Unix()
}

// Now is the clock the generator was built with.
func (g *TokenGenerator) Now() time.Time {
	return g.now()
}
