// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package kv_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/portico/portico/internal/kv"
)

func TestMemoryStore_GetMissing(t *testing.T) {
	s := kv.NewMemoryStore()
	_, err := s.Get(context.Background(), "user:nobody")
	assert.ErrorIs(t, err, kv.ErrNotFound)
}

func TestMemoryStore_PutGet(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()

	v1, err := s.Put(ctx, "user:alice", []byte(`{"a":1}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1)

	v2, err := s.Put(ctx, "user:alice", []byte(`{"a":2}`))
	require.NoError(t, err)
	assert.Equal(t, int64(2), v2)

	e, err := s.Get(ctx, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, "user:alice", e.Key)
	assert.Equal(t, []byte(`{"a":2}`), e.Value)
	assert.Equal(t, int64(2), e.Version)
}

func TestMemoryStore_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()
	buf := []byte("original")
	_, err := s.Put(ctx, "k", buf)
	require.NoError(t, err)
	buf[0] = 'X'

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(e.Value))

	e.Value[0] = 'Y'
	again, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "original", string(again.Value))
}

func TestMemoryStore_Create(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()

	v, err := s.Create(ctx, "user:alice", []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	_, err = s.Create(ctx, "user:alice", []byte("second"))
	assert.ErrorIs(t, err, kv.ErrExists)

	e, err := s.Get(ctx, "user:alice")
	require.NoError(t, err)
	assert.Equal(t, "first", string(e.Value))
}

func TestMemoryStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()

	_, err := s.CompareAndSwap(ctx, "missing", []byte("x"), 1)
	assert.ErrorIs(t, err, kv.ErrNotFound)

	_, err = s.Create(ctx, "k", []byte("v1"))
	require.NoError(t, err)

	next, err := s.CompareAndSwap(ctx, "k", []byte("v2"), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), next)

	_, err = s.CompareAndSwap(ctx, "k", []byte("stale"), 1)
	assert.ErrorIs(t, err, kv.ErrConflict)

	e, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", string(e.Value))
}

func TestMemoryStore_CompareAndSwapSingleWinner(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()
	_, err := s.Create(ctx, "k", []byte("v1"))
	require.NoError(t, err)

	const writers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for i := range writers {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := s.CompareAndSwap(ctx, "k", []byte(fmt.Sprint(i)), 1)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, kv.ErrConflict):
				conflicts++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, writers-1, conflicts)
}

func TestMemoryStore_List(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemoryStore()
	for _, k := range []string{"user:bob", "user:alice", "session:x", "userx"} {
		_, err := s.Put(ctx, k, []byte("{}"))
		require.NoError(t, err)
	}

	keys, err := s.List(ctx, "user:")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:alice", "user:bob"}, keys)

	keys, err = s.List(ctx, "nothing:")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestMemoryStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := kv.NewMemoryStore()

	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Put(ctx, "k", nil)
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.List(ctx, "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, s.Ping(ctx), context.Canceled)
	assert.NoError(t, s.Ping(context.Background()))
}
