// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package captcha implements a stateless human-verification challenge.
//
// The server keeps nothing: Issue returns the display text, the issue time
// and an HMAC over both, and the client echoes all three back with its
// answer. Check recomputes the HMAC and enforces a freshness window. A
// challenge can be answered repeatedly until it expires.
package captcha

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"
)

// Alphabet holds 32 symbols: digits 2-9 and the uppercase letters without I
// and O.
const Alphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// Challenge text length bounds.
const (
	MinLength = 4
	MaxLength = 5
)

// FreshnessWindow is how long an issued challenge stays answerable.
const FreshnessWindow = 2 * time.Minute

// Millis is a Unix timestamp in milliseconds. It decodes from either a JSON
// number or a numeric string, since clients echo it back verbatim.
type Millis int64

// UnmarshalJSON implements json.Unmarshaler.
func (m *Millis) UnmarshalJSON(data []byte) error {
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return oops.Code("CAPTCHA_INVALID_TIMESTAMP").Wrap(err)
		}
		n = json.Number(s)
	}
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil {
		return oops.Code("CAPTCHA_INVALID_TIMESTAMP").Wrap(err)
	}
	*m = Millis(v)
	return nil
}

// Challenge is the triple handed to the client.
type Challenge struct {
	DisplayText string `json:"displayText"`
	IssuedAt    Millis `json:"issuedAt"`
	Signature   string `json:"signature"`
}

// Protocol issues and checks challenges under one secret.
type Protocol struct {
	secret []byte
	now    func() time.Time
	random io.Reader
}

// Option configures a Protocol.
type Option func(*Protocol)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Protocol) {
		p.now = now
	}
}

// WithRandom overrides the randomness source used for display text.
func WithRandom(r io.Reader) Option {
	return func(p *Protocol) {
		p.random = r
	}
}

// New creates a Protocol.
func New(secret []byte, opts ...Option) (*Protocol, error) {
	if len(secret) == 0 {
		return nil, oops.Code("CAPTCHA_SECRET_REQUIRED").Errorf("captcha secret is required")
	}
	p := &Protocol{
		secret: append([]byte(nil), secret...),
		now:    time.Now,
		random: rand.Reader,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Issue creates a fresh challenge.
func (p *Protocol) Issue() (Challenge, error) {
	// One byte picks the length, the rest pick symbols. 32 symbols divide 256
	// evenly, so masking keeps the draw uniform.
	buf := make([]byte, 1+MaxLength)
	if _, err := io.ReadFull(p.random, buf); err != nil {
		return Challenge{}, oops.Code("CAPTCHA_RANDOM_FAILED").Wrap(err)
	}

	length := MinLength + int(buf[0]&1)
	text := make([]byte, length)
	for i := range text {
		text[i] = Alphabet[buf[1+i]&31]
	}

	issuedAt := Millis(p.now().UnixMilli())
	sig, err := p.sign(string(text), issuedAt)
	if err != nil {
		return Challenge{}, err
	}

	return Challenge{
		DisplayText: string(text),
		IssuedAt:    issuedAt,
		Signature:   sig,
	}, nil
}

// Check reports whether answer solves the echoed challenge: the challenge is
// no older than FreshnessWindow, its signature matches, and the answer equals
// the display text ignoring case.
func (p *Protocol) Check(answer string, c Challenge) bool {
	if answer == "" || c.DisplayText == "" || c.Signature == "" {
		return false
	}
	if p.now().UnixMilli()-int64(c.IssuedAt) > FreshnessWindow.Milliseconds() {
		return false
	}

	sig, err := base64.RawURLEncoding.DecodeString(c.Signature)
	if err != nil {
		return false
	}
	if err := jwt.SigningMethodHS256.Verify(signingInput(c.DisplayText, c.IssuedAt), sig, p.secret); err != nil {
		return false
	}

	return strings.ToUpper(answer) == strings.ToUpper(c.DisplayText)
}

func (p *Protocol) sign(text string, issuedAt Millis) (string, error) {
	sig, err := jwt.SigningMethodHS256.Sign(signingInput(text, issuedAt), p.secret)
	if err != nil {
		return "", oops.Code("CAPTCHA_SIGN_FAILED").Wrap(err)
	}
	return base64.RawURLEncoding.EncodeToString(sig), nil
}

func signingInput(text string, issuedAt Millis) string {
	return text + "|" + strconv.FormatInt(int64(issuedAt), 10)
}
