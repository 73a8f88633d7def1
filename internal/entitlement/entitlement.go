// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

// Package entitlement upgrades a user's plan when they redeem an activation
// code.
//
// Codes are shared per-tier secrets configured once per deployment. They are
// not consumed, so one code can upgrade any number of accounts. A plan only
// ever moves up: redeeming a code for the current or a lower tier fails.
package entitlement

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/samber/oops"

	"github.com/portico/portico/internal/auth"
	"github.com/portico/portico/internal/users"
	"github.com/portico/portico/pkg/errutil"
)

// CodeLength is the exact length of an activation code.
const CodeLength = 4

// Error codes.
const (
	CodeInvalidCode = "ENTITLEMENT_INVALID_CODE"
	CodeNotUpgrade  = "ENTITLEMENT_NOT_UPGRADE"
)

// Codes holds the configured activation code for each paid tier. An empty
// code disables its tier.
type Codes struct {
	Normal string
	Pro    string
	ProMax string
}

// Activation is the result of a successful redemption.
type Activation struct {
	Username    string
	Plan        users.Plan
	Features    users.Features
	ActivatedAt time.Time
}

// Authenticator resolves a session token to its stored user record.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*users.Record, error)
}

// EventRecorder receives the outcome of each activation.
type EventRecorder interface {
	RecordAuthEvent(operation, outcome string)
}

type tierCode struct {
	plan users.Plan
	code string
}

// Service redeems activation codes.
type Service struct {
	auth   Authenticator
	users  *users.Repository
	tiers  []tierCode
	now    func() time.Time
	logger *slog.Logger
	events EventRecorder
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the activation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithEventRecorder reports activation outcomes to r.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// NewService creates a Service. Configured codes are uppercased and must be
// CodeLength characters.
func NewService(authn Authenticator, repo *users.Repository, codes Codes, opts ...Option) (*Service, error) {
	if authn == nil || repo == nil {
		return nil, oops.Code("ENTITLEMENT_INVALID_SERVICE").Errorf("authenticator and repository are required")
	}

	s := &Service{
		auth:   authn,
		users:  repo,
		now:    time.Now,
		logger: slog.Default(),
	}
	// Lowest tier first; the first matching code wins.
	for _, tc := range []tierCode{
		{users.PlanNormal, codes.Normal},
		{users.PlanPro, codes.Pro},
		{users.PlanProMax, codes.ProMax},
	} {
		code := NormalizeCode(tc.code)
		if code == "" {
			continue
		}
		if utf8.RuneCountInString(code) != CodeLength {
			return nil, oops.Code("ENTITLEMENT_INVALID_SERVICE").
				With("plan", tc.plan).
				Errorf("activation code must be %d characters", CodeLength)
		}
		s.tiers = append(s.tiers, tierCode{plan: tc.plan, code: code})
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// NormalizeCode returns the canonical form of an activation code. Only case
// is folded; surrounding whitespace counts toward the length.
func NormalizeCode(code string) string {
	return strings.ToUpper(code)
}

// Activate redeems code for the user holding sessionToken and moves them to
// the matching tier, replacing their feature table.
func (s *Service) Activate(ctx context.Context, sessionToken, code string) (act *Activation, err error) {
	defer func() { s.record(err) }()

	rec, err := s.auth.Authenticate(ctx, sessionToken)
	if err != nil {
		return nil, err
	}

	plan, ok := s.match(code)
	if !ok {
		return nil, oops.Code(CodeInvalidCode).
			Public("invalid activation code").
			With("username", rec.Username).
			Errorf("activation code rejected")
	}

	now := s.now()
	updated, err := s.users.Mutate(ctx, rec.Username, func(r *users.Record) error {
		if !plan.Above(r.Plan) {
			return oops.Code(CodeNotUpgrade).
				Public("plan is already at or above this tier").
				With("current", r.Plan).
				With("requested", plan).
				Errorf("activation would not upgrade the plan")
		}
		r.SetPlan(plan, now)
		return nil
	})
	if errors.Is(err, users.ErrNotFound) {
		return nil, oops.Code(auth.CodeUnauthorized).
			Public("unauthorized").
			With("username", rec.Username).
			Errorf("session user no longer exists")
	}
	if err != nil {
		if errutil.Code(err) == CodeNotUpgrade {
			return nil, err
		}
		return nil, oops.Code("ENTITLEMENT_ACTIVATE_FAILED").With("username", rec.Username).Wrap(err)
	}

	s.logger.InfoContext(ctx, "plan activated", "username", updated.Username, "plan", updated.Plan)
	return &Activation{
		Username:    updated.Username,
		Plan:        updated.Plan,
		Features:    updated.Features,
		ActivatedAt: *updated.ActivatedAt,
	}, nil
}

// match returns the tier whose code equals candidate.
func (s *Service) match(candidate string) (users.Plan, bool) {
	candidate = NormalizeCode(candidate)
	if utf8.RuneCountInString(candidate) != CodeLength {
		return "", false
	}
	for _, tc := range s.tiers {
		if subtle.ConstantTimeCompare([]byte(candidate), []byte(tc.code)) == 1 {
			return tc.plan, true
		}
	}
	return "", false
}

func (s *Service) record(err error) {
	if s.events == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		if outcome = errutil.Code(err); outcome == "" {
			outcome = "error"
		}
	}
	s.events.RecordAuthEvent("activate", outcome)
}
