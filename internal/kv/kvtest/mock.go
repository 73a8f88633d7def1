// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package kvtest provides a testify mock of kv.Store.
package kvtest

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/portico/portico/internal/kv"
)

// Store is a mock kv.Store.
type Store struct {
	mock.Mock
}

var _ kv.Store = (*Store)(nil)

// Get implements kv.Store.
func (m *Store) Get(ctx context.Context, key string) (*kv.Entry, error) {
	args := m.Called(ctx, key)
	e, _ := args.Get(0).(*kv.Entry)
	return e, args.Error(1)
}

// Put implements kv.Store.
func (m *Store) Put(ctx context.Context, key string, value []byte) (int64, error) {
	args := m.Called(ctx, key, value)
	return args.Get(0).(int64), args.Error(1)
}

// Create implements kv.Store.
func (m *Store) Create(ctx context.Context, key string, value []byte) (int64, error) {
	args := m.Called(ctx, key, value)
	return args.Get(0).(int64), args.Error(1)
}

// CompareAndSwap implements kv.Store.
func (m *Store) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	args := m.Called(ctx, key, value, version)
	return args.Get(0).(int64), args.Error(1)
}

// List implements kv.Store.
func (m *Store) List(ctx context.Context, prefix string) ([]string, error) {
	args := m.Called(ctx, prefix)
	keys, _ := args.Get(0).([]string)
	return keys, args.Error(1)
}

// Ping implements kv.Store.
func (m *Store) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
