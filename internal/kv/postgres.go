// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package kv

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// poolIface is the subset of pgxpool.Pool used by PostgresStore.
type poolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

var _ Store = (*PostgresStore)(nil)

// PostgresStore implements Store on the kv_entries table.
type PostgresStore struct {
	pool poolIface
}

// NewPostgresStore connects to dsn. Run the Migrator before first use.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, oops.Code("KV_CONNECT_FAILED").With("operation", "create pool").Wrap(err)
	}
	return &PostgresStore{pool: pool}, nil
}

// newPostgresStoreWithPool creates a store over an existing pool.
func newPostgresStoreWithPool(pool poolIface) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Get returns the entry at key.
func (s *PostgresStore) Get(ctx context.Context, key string) (*Entry, error) {
	e := &Entry{Key: key}
	err := s.pool.QueryRow(ctx,
		`SELECT value, version FROM kv_entries WHERE key = $1`, key,
	).Scan(&e.Value, &e.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("KV_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("KV_GET_FAILED").With("key", key).Wrap(err)
	}
	return e, nil
}

// Put upserts value at key.
func (s *PostgresStore) Put(ctx context.Context, key string, value []byte) (int64, error) {
	var version int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO kv_entries (key, value, version) VALUES ($1, $2, 1)
		 ON CONFLICT (key) DO UPDATE
		 SET value = EXCLUDED.value, version = kv_entries.version + 1, updated_at = now()
		 RETURNING version`,
		key, value,
	).Scan(&version)
	if err != nil {
		return 0, oops.Code("KV_PUT_FAILED").With("key", key).Wrap(err)
	}
	return version, nil
}

// Create inserts value at key, failing with ErrExists on a duplicate.
func (s *PostgresStore) Create(ctx context.Context, key string, value []byte) (int64, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO kv_entries (key, value, version) VALUES ($1, $2, 1)`,
		key, value,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return 0, oops.Code("KV_EXISTS").With("key", key).Wrap(ErrExists)
		}
		return 0, oops.Code("KV_CREATE_FAILED").With("key", key).Wrap(err)
	}
	return 1, nil
}

// CompareAndSwap updates key when its version still equals version.
func (s *PostgresStore) CompareAndSwap(ctx context.Context, key string, value []byte, version int64) (int64, error) {
	var next int64
	err := s.pool.QueryRow(ctx,
		`UPDATE kv_entries SET value = $2, version = version + 1, updated_at = now()
		 WHERE key = $1 AND version = $3
		 RETURNING version`,
		key, value, version,
	).Scan(&next)
	if err == nil {
		return next, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("KV_CAS_FAILED").With("key", key).Wrap(err)
	}

	// No row updated: either the key is gone or the version moved.
	var current int64
	err = s.pool.QueryRow(ctx, `SELECT version FROM kv_entries WHERE key = $1`, key).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, oops.Code("KV_NOT_FOUND").With("key", key).Wrap(ErrNotFound)
	}
	if err != nil {
		return 0, oops.Code("KV_CAS_FAILED").With("key", key).Wrap(err)
	}
	return 0, oops.Code("KV_CONFLICT").
		With("key", key).
		With("expected", version).
		With("actual", current).
		Wrap(ErrConflict)
}

// List returns keys starting with prefix.
func (s *PostgresStore) List(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT key FROM kv_entries WHERE key LIKE $1 ESCAPE '\' ORDER BY key`,
		likePrefix(prefix),
	)
	if err != nil {
		return nil, oops.Code("KV_LIST_FAILED").With("prefix", prefix).Wrap(err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, oops.Code("KV_LIST_FAILED").With("prefix", prefix).Wrap(err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("KV_LIST_FAILED").With("prefix", prefix).Wrap(err)
	}
	return keys, nil
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return oops.Code("KV_PING_FAILED").Wrap(err)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix turns a literal prefix into a LIKE pattern.
func likePrefix(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
