// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package token signs and verifies the compact HS256 tokens carried in the
// session and admin cookies.
//
// A Codec is bound to one secret and one audience. The session and admin
// trust domains share the signing scheme but use separate audiences, so a
// token minted for one domain never verifies in the other.
//
// Verification failures are deliberately opaque: a bad signature, an expired
// token, a malformed segment, and a foreign audience all yield ErrInvalid.
package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Audiences for the two trust domains.
const (
	AudienceSession = "portico:session"
	AudienceAdmin   = "portico:admin"
)

// MinSecretLength is the minimum accepted signing secret size in bytes.
const MinSecretLength = 32

// ErrInvalid is returned for every verification failure.
var ErrInvalid = errors.New("invalid token")

// Claims is the token payload. The claim set is closed: claims other than
// the registered ones and the fields below are dropped on Verify.
type Claims struct {
	jwt.RegisteredClaims
	Username string `json:"username,omitempty"`
	Role     string `json:"role,omitempty"`
	PublicID string `json:"publicId,omitempty"`
}

// Codec issues and verifies tokens for a single audience.
type Codec struct {
	secret   []byte
	audience string
	now      func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the time source used for iat/exp stamping and expiry
// checks.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

// NewCodec creates a Codec for the given audience.
func NewCodec(secret []byte, audience string, opts ...Option) (*Codec, error) {
	if len(secret) < MinSecretLength {
		return nil, oops.Code("TOKEN_SECRET_TOO_SHORT").
			With("min", MinSecretLength).
			Errorf("token secret must be at least %d bytes", MinSecretLength)
	}
	if audience == "" {
		return nil, oops.Code("TOKEN_AUDIENCE_REQUIRED").Errorf("token audience is required")
	}

	c := &Codec{
		secret:   append([]byte(nil), secret...),
		audience: audience,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Sign stamps the claims with issued-at and expiry, then signs them.
// The caller's claims value is not modified.
func (c *Codec) Sign(claims Claims, ttl time.Duration) (string, error) {
	if ttl < 0 {
		return "", oops.Code("TOKEN_INVALID_TTL").With("ttl", ttl.String()).Errorf("ttl cannot be negative")
	}

	now := c.now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	claims.Audience = jwt.ClaimStrings{c.audience}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims).SignedString(c.secret)
	if err != nil {
		return "", oops.Code("TOKEN_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Verify checks the signature, algorithm, audience and expiry of a token and
// returns its claims. Any failure returns ErrInvalid.
func (c *Codec) Verify(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrInvalid
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(c.audience),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Audience returns the audience this codec issues for.
func (c *Codec) Audience() string {
	return c.audience
}
