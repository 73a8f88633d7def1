// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package auth implements registration, login and session resolution.
//
// There is no server-side session table. A session is a signed token held
// in a cookie, and every request re-derives the caller's identity from it.
// Durable state lives only in the user record, read through
// users.Repository.
//
// Typed failures carry one of the Code* error codes and a public message;
// anything else is an internal fault.
//
// Password digests are produced by a PasswordHasher. Records remember the
// scheme that hashed them, so older sha256 digests keep verifying and are
// rehashed with the configured scheme on the next successful login.
package auth
