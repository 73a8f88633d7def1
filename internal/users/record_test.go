// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package users_test

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portico/portico/internal/users"
	"github.com/portico/portico/pkg/errutil"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{"valid simple", "alice", false},
		{"valid mixed case", "Alice", false},
		{"valid with digits and underscore", "bob_42", false},
		{"valid minimum length", "abc", false},
		{"valid maximum length", "a" + strings.Repeat("b", users.MaxUsernameLength-1), false},
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"too short", "ab", true},
		{"too long", strings.Repeat("a", users.MaxUsernameLength+1), true},
		{"starts with digit", "1alice", true},
		{"starts with underscore", "_alice", true},
		{"contains hyphen", "al-ice", true},
		{"contains space", "al ice", true},
		{"contains colon", "user:x", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := users.ValidateUsername(tt.username)
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "USER_INVALID_USERNAME")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.FixedZone("X", 3600))
	rec, err := users.NewRecord("Alice", "01234567", "salt", "hash", "argon2id", now)
	require.NoError(t, err)

	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "alice", rec.Username)
	assert.Equal(t, "01234567", rec.PublicID)
	assert.Equal(t, users.RoleUser, rec.Role)
	assert.Equal(t, users.PlanFree, rec.Plan)
	assert.Equal(t, users.PlanFree.Features(), rec.Features)
	assert.Nil(t, rec.ActivatedAt)
	assert.Equal(t, time.UTC, rec.CreatedAt.Location())
	assert.True(t, rec.CreatedAt.Equal(now))
}

func TestNewRecord_Invalid(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name                           string
		username, publicID, salt, hash string
		code                           string
	}{
		{"bad username", "1x", "01234567", "s", "h", "USER_INVALID_USERNAME"},
		{"missing public id", "alice", "", "s", "h", "USER_INVALID_PUBLIC_ID"},
		{"missing salt", "alice", "01234567", "", "h", "USER_INVALID_CREDENTIALS"},
		{"missing hash", "alice", "01234567", "s", "", "USER_INVALID_CREDENTIALS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := users.NewRecord(tt.username, tt.publicID, tt.salt, tt.hash, "argon2id", now)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestRecord_SetPlan(t *testing.T) {
	rec, err := users.NewRecord("alice", "01234567", "s", "h", "argon2id", time.Now())
	require.NoError(t, err)

	at := time.Date(2026, 5, 5, 0, 0, 0, 0, time.UTC)
	rec.SetPlan(users.PlanPro, at)

	assert.Equal(t, users.PlanPro, rec.Plan)
	assert.Equal(t, users.Features{DNSRecords: 15, WireguardConfigs: 3, Support: "priority", Priority: "high"}, rec.Features)
	require.NotNil(t, rec.ActivatedAt)
	assert.True(t, rec.ActivatedAt.Equal(at))
}

func TestKey(t *testing.T) {
	assert.Equal(t, "user:alice", users.Key("Alice"))
	assert.Equal(t, "user:alice", users.Key(" ALICE "))
}
