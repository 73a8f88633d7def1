// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package captcha_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portico/portico/internal/captcha"
)

var secret = []byte("captcha-test-secret")

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newProtocol(t *testing.T, clock *fakeClock, opts ...captcha.Option) *captcha.Protocol {
	t.Helper()
	p, err := captcha.New(secret, append([]captcha.Option{captcha.WithClock(clock.Now)}, opts...)...)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresSecret(t *testing.T) {
	_, err := captcha.New(nil)
	require.Error(t, err)
}

func TestAlphabet(t *testing.T) {
	assert.Len(t, captcha.Alphabet, 32)
	for _, confusable := range []string{"0", "1", "I", "O"} {
		assert.NotContains(t, captcha.Alphabet, confusable)
	}
}

func TestIssue(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_123)}
	p := newProtocol(t, clock)

	seen := map[int]bool{}
	for range 200 {
		c, err := p.Issue()
		require.NoError(t, err)

		assert.GreaterOrEqual(t, len(c.DisplayText), captcha.MinLength)
		assert.LessOrEqual(t, len(c.DisplayText), captcha.MaxLength)
		for _, r := range c.DisplayText {
			assert.True(t, strings.ContainsRune(captcha.Alphabet, r), "unexpected symbol %q", r)
		}
		assert.Equal(t, captcha.Millis(1_700_000_000_123), c.IssuedAt)
		assert.NotEmpty(t, c.Signature)
		seen[len(c.DisplayText)] = true
	}
	assert.True(t, seen[4] && seen[5], "both lengths should occur")
}

func TestIssue_DeterministicWithFixedRandom(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	// length byte odd -> 5 symbols; indexes 0..4
	p := newProtocol(t, clock, captcha.WithRandom(bytes.NewReader([]byte{1, 0, 1, 2, 3, 31})))

	c, err := p.Issue()
	require.NoError(t, err)
	assert.Equal(t, "ABCD9", c.DisplayText)
}

func TestCheck(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	p := newProtocol(t, clock)

	c, err := p.Issue()
	require.NoError(t, err)

	t.Run("correct answer accepted", func(t *testing.T) {
		assert.True(t, p.Check(c.DisplayText, c))
	})

	t.Run("answer is case-insensitive", func(t *testing.T) {
		assert.True(t, p.Check(strings.ToLower(c.DisplayText), c))
	})

	t.Run("wrong answer rejected", func(t *testing.T) {
		assert.False(t, p.Check(c.DisplayText+"X", c))
	})

	t.Run("empty answer rejected", func(t *testing.T) {
		assert.False(t, p.Check("", c))
	})

	t.Run("replay within window accepted", func(t *testing.T) {
		assert.True(t, p.Check(c.DisplayText, c))
		assert.True(t, p.Check(c.DisplayText, c))
	})
}

func TestCheck_Freshness(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	p := newProtocol(t, clock)

	c, err := p.Issue()
	require.NoError(t, err)

	clock.Advance(captcha.FreshnessWindow)
	assert.True(t, p.Check(c.DisplayText, c), "exactly at the window edge is still fresh")

	clock.Advance(time.Millisecond)
	assert.False(t, p.Check(c.DisplayText, c), "one millisecond past the window is stale")
}

func TestCheck_Tamper(t *testing.T) {
	clock := &fakeClock{t: time.UnixMilli(1_700_000_000_000)}
	p := newProtocol(t, clock)

	c, err := p.Issue()
	require.NoError(t, err)

	t.Run("altered display text", func(t *testing.T) {
		altered := c
		altered.DisplayText = "ZZZZ"
		assert.False(t, p.Check("ZZZZ", altered))
	})

	t.Run("altered issue time", func(t *testing.T) {
		altered := c
		altered.IssuedAt = c.IssuedAt + 60_000
		assert.False(t, p.Check(c.DisplayText, altered))
	})

	t.Run("garbage signature", func(t *testing.T) {
		altered := c
		altered.Signature = "not base64 !!"
		assert.False(t, p.Check(c.DisplayText, altered))
	})

	t.Run("signature from another secret", func(t *testing.T) {
		other, err := captcha.New([]byte("another-secret"), captcha.WithClock(clock.Now))
		require.NoError(t, err)
		foreign, err := other.Issue()
		require.NoError(t, err)
		assert.False(t, p.Check(foreign.DisplayText, foreign))
	})
}

func TestMillis_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    captcha.Millis
		wantErr bool
	}{
		{name: "number", input: `1700000000000`, want: 1_700_000_000_000},
		{name: "numeric string", input: `"1700000000000"`, want: 1_700_000_000_000},
		{name: "non numeric string", input: `"soon"`, wantErr: true},
		{name: "fraction", input: `1.5`, wantErr: true},
		{name: "object", input: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m captcha.Millis
			err := json.Unmarshal([]byte(tt.input), &m)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m)
		})
	}
}
