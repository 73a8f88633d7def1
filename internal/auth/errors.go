// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package auth

import "github.com/samber/oops"

// Error codes for the typed failures of the authentication flow.
const (
	CodeInvalidInput     = "AUTH_INVALID_INPUT"
	CodeInvalidChallenge = "AUTH_INVALID_CHALLENGE"
	CodeUserNotFound     = "AUTH_USER_NOT_FOUND"
	CodeUnauthorized     = "AUTH_UNAUTHORIZED"
	CodeUsernameTaken    = "AUTH_USERNAME_TAKEN"
)

// Public messages shown to clients.
const (
	msgInvalidCredentials = "invalid username or password"
	msgInvalidChallenge   = "invalid or expired challenge"
	msgUserNotFound       = "user not found"
	msgWrongPassword      = "incorrect password"
	msgUnauthorized       = "unauthorized"
	msgUsernameTaken      = "username already exists"
	msgPasswordTooShort   = "password must be at least 8 characters"
)

func failure(code, public, format string, args ...any) error {
	return oops.Code(code).Public(public).Errorf(format, args...)
}

func invalidInput(public, format string, args ...any) error {
	return failure(CodeInvalidInput, public, format, args...)
}

func unauthorized(format string, args ...any) error {
	return failure(CodeUnauthorized, msgUnauthorized, format, args...)
}
