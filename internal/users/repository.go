// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package users

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/portico/portico/internal/kv"
)

// KeyPrefix namespaces user records in the store.
const KeyPrefix = "user:"

// Repository errors.
var (
	ErrNotFound = errors.New("user not found")
	ErrExists   = errors.New("user already exists")
)

// Default optimistic-concurrency retry policy for Mutate.
const (
	DefaultMaxRetries   = 5
	DefaultRetryBackoff = 10 * time.Millisecond
)

// Key returns the store key for username.
func Key(username string) string {
	return KeyPrefix + NormalizeUsername(username)
}

// Repository reads and writes user records in a kv.Store.
type Repository struct {
	store      kv.Store
	maxRetries uint64
	backoff    time.Duration
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithRetry sets how many times Mutate retries a version conflict and the
// pause between attempts.
func WithRetry(maxRetries uint64, backoff time.Duration) RepositoryOption {
	return func(r *Repository) {
		r.maxRetries = maxRetries
		r.backoff = backoff
	}
}

// NewRepository creates a repository over store.
func NewRepository(store kv.Store, opts ...RepositoryOption) *Repository {
	r := &Repository{
		store:      store,
		maxRetries: DefaultMaxRetries,
		backoff:    DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get loads the record for username.
func (r *Repository) Get(ctx context.Context, username string) (*Record, error) {
	key := Key(username)
	entry, err := r.store.Get(ctx, key)
	if errors.Is(err, kv.ErrNotFound) {
		return nil, oops.Code("USER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("USER_GET_FAILED").With("username", username).Wrap(err)
	}

	rec, err := Decode(entry.Value)
	if err != nil {
		return nil, oops.With("username", username).Wrap(err)
	}
	rec.Version = entry.Version
	return rec, nil
}

// Create stores a new record. It fails with ErrExists when the username is
// already taken, even under concurrent registration.
func (r *Repository) Create(ctx context.Context, rec *Record) error {
	data, err := Encode(rec)
	if err != nil {
		return err
	}
	version, err := r.store.Create(ctx, Key(rec.Username), data)
	if errors.Is(err, kv.ErrExists) {
		return oops.Code("USER_EXISTS").With("username", rec.Username).Wrap(ErrExists)
	}
	if err != nil {
		return oops.Code("USER_CREATE_FAILED").With("username", rec.Username).Wrap(err)
	}
	rec.Version = version
	return nil
}

// Mutate applies fn to the current record and writes it back with
// compare-and-swap, rereading and retrying on version conflicts. An error
// from fn aborts without writing and is returned unchanged.
func (r *Repository) Mutate(ctx context.Context, username string, fn func(*Record) error) (*Record, error) {
	var result *Record
	backoff := retry.WithMaxRetries(r.maxRetries, retry.NewConstant(r.backoff))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := r.Get(ctx, username)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
		data, err := Encode(rec)
		if err != nil {
			return err
		}
		version, err := r.store.CompareAndSwap(ctx, Key(username), data, rec.Version)
		if errors.Is(err, kv.ErrConflict) {
			return retry.RetryableError(err)
		}
		if errors.Is(err, kv.ErrNotFound) {
			return oops.Code("USER_NOT_FOUND").With("username", username).Wrap(ErrNotFound)
		}
		if err != nil {
			return oops.Code("USER_UPDATE_FAILED").With("username", username).Wrap(err)
		}
		rec.Version = version
		result = rec
		return nil
	})
	if err != nil {
		if errors.Is(err, kv.ErrConflict) {
			return nil, oops.Code("USER_UPDATE_CONFLICT").
				With("username", username).
				With("retries", r.maxRetries).
				Wrap(err)
		}
		return nil, err
	}
	return result, nil
}

// Count returns the number of stored user records.
func (r *Repository) Count(ctx context.Context) (int, error) {
	keys, err := r.store.List(ctx, KeyPrefix)
	if err != nil {
		return 0, oops.Code("USER_COUNT_FAILED").Wrap(err)
	}
	return len(keys), nil
}

// Ping reports whether the backing store is reachable.
func (r *Repository) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
