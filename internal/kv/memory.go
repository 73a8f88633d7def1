// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package kv

import (
	"bytes"
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/samber/oops"
)

var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Contents are lost on exit.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

// Get returns a copy of the entry at key.
func (s *MemoryStore) Get(ctx context.Context, key string) (*Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("KV_GET_FAILED").With("key", key).Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, oops.Code("KV_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	e.Value = bytes.Clone(e.Value)
	return &e, nil
}

// Put writes value at key.
func (s *MemoryStore) Put(ctx context.Context, key string, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("KV_PUT_FAILED").With("key", key).Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	version := s.entries[key].Version + 1
	s.entries[key] = Entry{Key: key, Value: bytes.Clone(value), Version: version}
	return version, nil
}

// Create writes value at key if it is absent.
func (s *MemoryStore) Create(ctx context.Context, key string, value []byte) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("KV_CREATE_FAILED").With("key", key).Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[key]; ok {
		return 0, oops.Code("KV_EXISTS").With("key", key).Wrap(ErrExists)
	}
	s.entries[key] = Entry{Key: key, Value: bytes.Clone(value), Version: 1}
	return 1, nil
}

// CompareAndSwap replaces the value at key when version matches.
func (s *MemoryStore) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, oops.Code("KV_CAS_FAILED").With("key", key).Wrap(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.entries[key]
	if !ok {
		return 0, oops.Code("KV_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if cur.Version != version {
		return 0, oops.Code("KV_CONFLICT").
			With("key", key).
			With("expected", version).
			With("actual", cur.Version).
			Wrap(ErrConflict)
	}
	next := version + 1
	s.entries[key] = Entry{Key: key, Value: bytes.Clone(value), Version: next}
	return next, nil
}

// List returns the sorted keys with the given prefix.
func (s *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, oops.Code("KV_LIST_FAILED").With("prefix", prefix).Wrap(err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Ping always succeeds unless ctx is done.
func (s *MemoryStore) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return oops.Code("KV_PING_FAILED").Wrap(err)
	}
	return nil
}
