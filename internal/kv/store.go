// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package kv provides the key-value store that holds user records.
//
// Values are opaque byte blobs. Every entry carries a version that increases
// on each write, which callers use for optimistic concurrency through
// CompareAndSwap.
package kv

import (
	"context"
	"errors"
)

// Store errors.
var (
	ErrNotFound = errors.New("kv: key not found")
	ErrExists   = errors.New("kv: key already exists")
	ErrConflict = errors.New("kv: version conflict")
)

// Entry is a stored value and its version.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Store is a string-keyed blob store with list-by-prefix.
type Store interface {
	// Get returns the entry at key or ErrNotFound.
	Get(ctx context.Context, key string) (*Entry, error)

	// Put writes value unconditionally and returns the new version.
	Put(ctx context.Context, key string, value []byte) (int64, error)

	// Create writes value only if key is absent. Returns ErrExists otherwise.
	Create(ctx context.Context, key string, value []byte) (int64, error)

	// CompareAndSwap replaces value only if the stored version equals version.
	// Returns ErrNotFound for a missing key and ErrConflict for a stale version.
	CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error)

	// List returns the keys starting with prefix in ascending order.
	List(ctx context.Context, prefix string) ([]string, error)

	// Ping reports whether the backing store is reachable.
	Ping(ctx context.Context) error
}
