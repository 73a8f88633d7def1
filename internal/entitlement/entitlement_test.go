// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package entitlement_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/portico/portico/internal/auth"
	"github.com/portico/portico/internal/entitlement"
	"github.com/portico/portico/internal/kv"
	"github.com/portico/portico/internal/kv/kvtest"
	"github.com/portico/portico/internal/users"
	"github.com/portico/portico/pkg/errutil"
)

var testCodes = entitlement.Codes{Normal: "nrm1", Pro: "PRO2", ProMax: "max3"}

// tokenAuth treats the token as a username.
type tokenAuth struct {
	repo *users.Repository
}

func (a tokenAuth) Authenticate(ctx context.Context, tok string) (*users.Record, error) {
	if tok == "" {
		return nil, errors.New("no session")
	}
	return a.repo.Get(ctx, tok)
}

type fixture struct {
	svc  *entitlement.Service
	repo *users.Repository
	now  time.Time
}

func newFixture(t *testing.T, store kv.Store, codes entitlement.Codes) *fixture {
	t.Helper()
	repo := users.NewRepository(store, users.WithRetry(1, time.Millisecond))
	now := time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)
	svc, err := entitlement.NewService(tokenAuth{repo: repo}, repo, codes,
		entitlement.WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, now: now}
}

func (f *fixture) seed(t *testing.T, username string, plan users.Plan) {
	t.Helper()
	rec, err := users.NewRecord(username, "00000001", "salt", "hash", "sha256", f.now)
	require.NoError(t, err)
	if plan != users.PlanFree {
		rec.SetPlan(plan, f.now.Add(-time.Hour))
	}
	require.NoError(t, f.repo.Create(context.Background(), rec))
}

func TestNewService_Validation(t *testing.T) {
	repo := users.NewRepository(kv.NewMemoryStore())

	_, err := entitlement.NewService(nil, repo, testCodes)
	errutil.AssertErrorCode(t, err, "ENTITLEMENT_INVALID_SERVICE")

	_, err = entitlement.NewService(tokenAuth{repo: repo}, repo, entitlement.Codes{Pro: "TOOLONG"})
	errutil.AssertErrorCode(t, err, "ENTITLEMENT_INVALID_SERVICE")

	_, err = entitlement.NewService(tokenAuth{repo: repo}, repo, entitlement.Codes{})
	assert.NoError(t, err, "all tiers disabled is allowed")
}

func TestActivate_Escalates(t *testing.T) {
	tests := []struct {
		name string
		code string
		want users.Plan
	}{
		{"normal", "NRM1", users.PlanNormal},
		{"pro", "PRO2", users.PlanPro},
		{"promax", "MAX3", users.PlanProMax},
		{"lowercase input", "pro2", users.PlanPro},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, kv.NewMemoryStore(), testCodes)
			f.seed(t, "alice", users.PlanFree)

			act, err := f.svc.Activate(context.Background(), "alice", tt.code)
			require.NoError(t, err)
			assert.Equal(t, tt.want, act.Plan)
			assert.Equal(t, tt.want.Features(), act.Features)
			assert.True(t, act.ActivatedAt.Equal(f.now))

			rec, err := f.repo.Get(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.want, rec.Plan)
			assert.Equal(t, tt.want.Features(), rec.Features)
			require.NotNil(t, rec.ActivatedAt)
		})
	}
}

func TestActivate_InvalidCode(t *testing.T) {
	tests := []struct {
		name string
		code string
	}{
		{"unknown", "ZZZZ"},
		{"empty", ""},
		{"too short", "PRO"},
		{"too long", "PRO22"},
		{"surrounding space", " max3 "},
		{"trailing space", "PRO2 "},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, kv.NewMemoryStore(), testCodes)
			f.seed(t, "alice", users.PlanFree)

			_, err := f.svc.Activate(context.Background(), "alice", tt.code)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, entitlement.CodeInvalidCode)

			rec, err := f.repo.Get(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, users.PlanFree, rec.Plan, "plan unchanged")
			assert.Nil(t, rec.ActivatedAt)
		})
	}
}

func TestActivate_DisabledTierNeverMatches(t *testing.T) {
	f := newFixture(t, kv.NewMemoryStore(), entitlement.Codes{Pro: "PRO2"})
	f.seed(t, "alice", users.PlanFree)

	_, err := f.svc.Activate(context.Background(), "alice", "    ")
	errutil.AssertErrorCode(t, err, entitlement.CodeInvalidCode)
}

func TestActivate_OnlyUpgrades(t *testing.T) {
	tests := []struct {
		name    string
		current users.Plan
		code    string
	}{
		{"same tier", users.PlanPro, "PRO2"},
		{"lower tier", users.PlanProMax, "NRM1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, kv.NewMemoryStore(), testCodes)
			f.seed(t, "alice", tt.current)

			_, err := f.svc.Activate(context.Background(), "alice", tt.code)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, entitlement.CodeNotUpgrade)

			rec, err := f.repo.Get(context.Background(), "alice")
			require.NoError(t, err)
			assert.Equal(t, tt.current, rec.Plan)
		})
	}
}

func TestActivate_CodesAreReusable(t *testing.T) {
	f := newFixture(t, kv.NewMemoryStore(), testCodes)
	f.seed(t, "alice", users.PlanFree)
	f.seed(t, "bob", users.PlanFree)

	for _, u := range []string{"alice", "bob"} {
		act, err := f.svc.Activate(context.Background(), u, "PRO2")
		require.NoError(t, err, u)
		assert.Equal(t, users.PlanPro, act.Plan)
	}
}

func TestActivate_Unauthenticated(t *testing.T) {
	f := newFixture(t, kv.NewMemoryStore(), testCodes)
	_, err := f.svc.Activate(context.Background(), "", "PRO2")
	require.Error(t, err)
}

func TestActivate_RecordVanished(t *testing.T) {
	rec, err := users.NewRecord("alice", "00000001", "salt", "hash", "sha256", time.Now())
	require.NoError(t, err)
	blob, err := users.Encode(rec)
	require.NoError(t, err)

	store := &kvtest.Store{}
	store.On("Get", mock.Anything, "user:alice").Return(&kv.Entry{Key: "user:alice", Value: blob, Version: 1}, nil).Once()
	store.On("Get", mock.Anything, "user:alice").Return(nil, kv.ErrNotFound).Once()
	f := newFixture(t, store, testCodes)

	_, err = f.svc.Activate(context.Background(), "alice", "PRO2")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, auth.CodeUnauthorized)
}

func TestActivate_StoreFailure(t *testing.T) {
	rec, err := users.NewRecord("alice", "00000001", "salt", "hash", "sha256", time.Now())
	require.NoError(t, err)
	blob, err := users.Encode(rec)
	require.NoError(t, err)

	store := &kvtest.Store{}
	store.On("Get", mock.Anything, "user:alice").Return(&kv.Entry{Key: "user:alice", Value: blob, Version: 1}, nil)
	store.On("CompareAndSwap", mock.Anything, "user:alice", mock.Anything, int64(1)).Return(int64(0), errors.New("disk full"))
	f := newFixture(t, store, testCodes)

	_, err = f.svc.Activate(context.Background(), "alice", "PRO2")
	require.Error(t, err)
	assert.NotEqual(t, entitlement.CodeInvalidCode, errutil.Code(err))
	assert.NotEqual(t, entitlement.CodeNotUpgrade, errutil.Code(err))
}
