// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package users defines the durable user record and its repository on top of
// the key-value store.
package users

import (
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Role is a user's authorization role.
type Role string

// Roles.
const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Username validation constraints.
const (
	MinUsernameLength = 3
	MaxUsernameLength = 30
)

// usernameRegex matches usernames that:
// - Start with a letter (a-z, A-Z)
// - Contain only letters, numbers, and underscores
var usernameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// Record is a user account as persisted in the store.
type Record struct {
	// Version is the store's optimistic-concurrency version. Not serialized.
	Version int64 `json:"-"`

	ID           string     `json:"id"`
	PublicID     string     `json:"publicId"`
	Username     string     `json:"username"`
	Salt         string     `json:"salt"`
	PasswordHash string     `json:"passHash"`
	HashScheme   string     `json:"hashScheme"`
	Role         Role       `json:"role"`
	Plan         Plan       `json:"plan"`
	Features     Features   `json:"planFeatures"`
	CreatedAt    time.Time  `json:"createdAt"`
	ActivatedAt  *time.Time `json:"activatedAt"`
}

// NewRecord creates a validated free-plan user record. The username is
// normalized to lowercase.
func NewRecord(username, publicID, salt, passwordHash, hashScheme string, now time.Time) (*Record, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if publicID == "" {
		return nil, oops.Code("USER_INVALID_PUBLIC_ID").Errorf("public id cannot be empty")
	}
	if salt == "" || passwordHash == "" || hashScheme == "" {
		return nil, oops.Code("USER_INVALID_CREDENTIALS").Errorf("salt, hash and scheme are required")
	}

	return &Record{
		ID:           ulid.Make().String(),
		PublicID:     publicID,
		Username:     NormalizeUsername(username),
		Salt:         salt,
		PasswordHash: passwordHash,
		HashScheme:   hashScheme,
		Role:         RoleUser,
		Plan:         PlanFree,
		Features:     PlanFree.Features(),
		CreatedAt:    now.UTC(),
	}, nil
}

// SetPlan moves the record to plan, replacing the feature table and stamping
// the activation time.
func (r *Record) SetPlan(plan Plan, now time.Time) {
	at := now.UTC()
	r.Plan = plan
	r.Features = plan.Features()
	r.ActivatedAt = &at
}

// NormalizeUsername returns the canonical store form of a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername validates a username against rules.
// Username requirements:
// - Length: MinUsernameLength to MaxUsernameLength characters
// - Must start with a letter
// - Can contain only letters (a-z, A-Z), numbers (0-9), and underscores (_)
func ValidateUsername(username string) error {
	username = strings.TrimSpace(username)
	if username == "" {
		return oops.Code("USER_INVALID_USERNAME").Errorf("username cannot be empty")
	}
	if len(username) < MinUsernameLength {
		return oops.Code("USER_INVALID_USERNAME").
			With("min", MinUsernameLength).
			Errorf("username must be at least %d characters", MinUsernameLength)
	}
	if len(username) > MaxUsernameLength {
		return oops.Code("USER_INVALID_USERNAME").
			With("max", MaxUsernameLength).
			Errorf("username must be at most %d characters", MaxUsernameLength)
	}
	if !usernameRegex.MatchString(username) {
		return oops.Code("USER_INVALID_USERNAME").
			Errorf("username must start with a letter and contain only letters, numbers, and underscores")
	}
	return nil
}
