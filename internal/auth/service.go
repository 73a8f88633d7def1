// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/portico/portico/internal/captcha"
	"github.com/portico/portico/internal/token"
	"github.com/portico/portico/internal/users"
	"github.com/portico/portico/pkg/errutil"
)

// DefaultSessionTTL is the lifetime of a session token.
const DefaultSessionTTL = 7 * 24 * time.Hour

// Store states reported by AdminStatus.
const (
	StoreConnected    = "connected"
	StoreDisconnected = "disconnected"
)

// Config holds the tunables of the authentication flow.
type Config struct {
	// SessionTTL is the token lifetime for both trust domains.
	SessionTTL time.Duration
	// AdminUsername and AdminPassword are the fixed admin credentials. Admin
	// login is disabled unless both are set.
	AdminUsername string
	AdminPassword string
}

// Deps are the collaborators of a Service.
type Deps struct {
	Users      *users.Repository
	Sessions   *token.Codec
	Admin      *token.Codec
	Challenges *captcha.Protocol
	Hasher     PasswordHasher
}

// EventRecorder receives the outcome of each operation.
type EventRecorder interface {
	RecordAuthEvent(operation, outcome string)
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithEventRecorder reports operation outcomes to r.
func WithEventRecorder(r EventRecorder) Option {
	return func(s *Service) { s.events = r }
}

// Service runs the authentication flows.
type Service struct {
	users      *users.Repository
	sessions   *token.Codec
	admin      *token.Codec
	challenges *captcha.Protocol
	hasher     PasswordHasher
	cfg        Config
	now        func() time.Time
	logger     *slog.Logger
	events     EventRecorder
}

// NewService creates a Service, validating that every dependency is present.
func NewService(deps Deps, cfg Config, opts ...Option) (*Service, error) {
	switch {
	case deps.Users == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("user repository is required")
	case deps.Sessions == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("session codec is required")
	case deps.Admin == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("admin codec is required")
	case deps.Challenges == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("challenge protocol is required")
	case deps.Hasher == nil:
		return nil, oops.Code("AUTH_INVALID_SERVICE").Errorf("password hasher is required")
	}
	if deps.Sessions.Audience() == deps.Admin.Audience() {
		return nil, oops.Code("AUTH_INVALID_SERVICE").
			With("audience", deps.Sessions.Audience()).
			Errorf("session and admin codecs must use different audiences")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = DefaultSessionTTL
	}

	s := &Service{
		users:      deps.Users,
		sessions:   deps.Sessions,
		admin:      deps.Admin,
		challenges: deps.Challenges,
		hasher:     deps.Hasher,
		cfg:        cfg,
		now:        time.Now,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RegisterInput is a registration request with its challenge response.
type RegisterInput struct {
	Username  string
	Password  string
	Answer    string
	Challenge captcha.Challenge
}

// Session is a freshly issued session token and the identity it carries.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Username  string
	PublicID  string
	Role      users.Role
	Plan      users.Plan
}

// Identity is the caller as resolved from a session token.
type Identity struct {
	Guest bool
	// Degraded is set when the record could not be read and the identity
	// was rebuilt from token claims alone.
	Degraded    bool
	ID          string
	Username    string
	PublicID    string
	Role        users.Role
	Plan        users.Plan
	Features    *users.Features
	CreatedAt   *time.Time
	ActivatedAt *time.Time
}

// AdminStatus summarizes service health for the admin console.
type AdminStatus struct {
	Authed          bool
	Store           string
	AdminConfigured bool
	UserCount       int
}

// Challenge issues a new registration challenge.
func (s *Service) Challenge() (captcha.Challenge, error) {
	c, err := s.challenges.Issue()
	if err != nil {
		return captcha.Challenge{}, oops.Code("AUTH_CHALLENGE_FAILED").Wrap(err)
	}
	return c, nil
}

// Register creates a free-plan account and opens a session for it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (sess *Session, err error) {
	defer func() { s.record("register", err) }()

	username := strings.TrimSpace(in.Username)
	if username == "" || utf8.RuneCountInString(in.Password) < MinPasswordLength {
		return nil, invalidInput(msgInvalidCredentials, "username missing or password shorter than %d", MinPasswordLength)
	}
	if verr := users.ValidateUsername(username); verr != nil {
		return nil, oops.Code(CodeInvalidInput).
			Public("username must be 3-30 letters, digits or underscores and start with a letter").
			With("username", username).
			Errorf("invalid username: %v", verr)
	}
	if !s.challenges.Check(in.Answer, in.Challenge) {
		return nil, failure(CodeInvalidChallenge, msgInvalidChallenge, "challenge rejected")
	}

	salt, err := GenerateSalt()
	if err != nil {
		return nil, err
	}
	digest, err := s.hasher.Hash(in.Password, salt)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "hash password").Wrap(err)
	}
	publicID, err := users.NewPublicID()
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "generate public id").Wrap(err)
	}
	rec, err := users.NewRecord(username, publicID, salt, digest, s.hasher.Scheme(), s.now())
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "build record").Wrap(err)
	}

	if err := s.users.Create(ctx, rec); err != nil {
		if errors.Is(err, users.ErrExists) {
			return nil, failure(CodeUsernameTaken, msgUsernameTaken, "username %q already registered", rec.Username)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").With("operation", "store record").Wrap(err)
	}

	s.logger.InfoContext(ctx, "user registered", "username", rec.Username, "public_id", rec.PublicID)
	return s.issueSession(rec)
}

// Login checks a username and password and opens a session.
// Unknown users fail with CodeUserNotFound and wrong passwords with
// CodeUnauthorized.
func (s *Service) Login(ctx context.Context, username, password string) (sess *Session, err error) {
	defer func() { s.record("login", err) }()

	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, invalidInput(msgInvalidCredentials, "username and password are required")
	}

	rec, err := s.users.Get(ctx, username)
	if errors.Is(err, users.ErrNotFound) {
		return nil, failure(CodeUserNotFound, msgUserNotFound, "no user %q", users.NormalizeUsername(username))
	}
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "get user").Wrap(err)
	}

	ok, err := s.verifyPassword(rec, password)
	if err != nil {
		return nil, oops.Code("AUTH_LOGIN_FAILED").With("operation", "verify password").Wrap(err)
	}
	if !ok {
		return nil, failure(CodeUnauthorized, msgWrongPassword, "password mismatch for %q", rec.Username)
	}

	if rec.HashScheme != s.hasher.Scheme() {
		s.upgradeHash(ctx, rec.Username, password)
	}

	s.logger.InfoContext(ctx, "user logged in", "username", rec.Username)
	return s.issueSession(rec)
}

// Logout ends a session. Tokens are stateless, so this only records the
// event; the caller clears the cookie. It never fails.
func (s *Service) Logout(ctx context.Context, tokenString string) {
	if claims, err := s.sessions.Verify(tokenString); err == nil {
		s.logger.InfoContext(ctx, "user logged out", "username", claims.Username)
	}
	s.record("logout", nil)
}

// WhoAmI resolves a session token to the caller's current identity. A
// missing or invalid token yields a guest. When the record cannot be read
// the identity is rebuilt from the token claims and marked degraded.
func (s *Service) WhoAmI(ctx context.Context, tokenString string) *Identity {
	claims, err := s.sessions.Verify(tokenString)
	if err != nil {
		return &Identity{Guest: true}
	}

	rec, err := s.users.Get(ctx, claims.Username)
	if err == nil && rec.ID == claims.Subject {
		return identityFromRecord(rec)
	}
	if err == nil {
		// Same username, different account: the token predates a re-registration.
		return &Identity{Guest: true}
	}

	s.logger.WarnContext(ctx, "serving identity from token claims",
		"username", claims.Username,
		"code", errutil.Code(err),
		"error", err)
	return &Identity{
		Degraded: true,
		ID:       claims.Subject,
		Username: claims.Username,
		PublicID: claims.PublicID,
		Role:     users.Role(claims.Role),
	}
}

// Authenticate resolves a session token to the stored record. Unlike
// WhoAmI it requires the record to exist.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*users.Record, error) {
	claims, err := s.sessions.Verify(tokenString)
	if err != nil {
		return nil, unauthorized("session token rejected")
	}
	rec, err := s.users.Get(ctx, claims.Username)
	if errors.Is(err, users.ErrNotFound) {
		return nil, unauthorized("session user %q no longer exists", claims.Username)
	}
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_LOOKUP_FAILED").With("username", claims.Username).Wrap(err)
	}
	if rec.ID != claims.Subject {
		return nil, unauthorized("session subject does not match user %q", rec.Username)
	}
	return rec, nil
}

// ChangePassword replaces the password of the session's user after checking
// the current one. A fresh salt is drawn and the configured scheme is used.
func (s *Service) ChangePassword(ctx context.Context, tokenString, current, next string) (err error) {
	defer func() { s.record("change_password", err) }()

	if current == "" || next == "" {
		return invalidInput("current and new passwords are required", "password fields missing")
	}
	if utf8.RuneCountInString(next) < MinPasswordLength {
		return invalidInput(msgPasswordTooShort, "new password shorter than %d", MinPasswordLength)
	}

	rec, err := s.Authenticate(ctx, tokenString)
	if err != nil {
		return err
	}

	_, err = s.users.Mutate(ctx, rec.Username, func(r *users.Record) error {
		ok, verr := s.verifyPassword(r, current)
		if verr != nil {
			return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("operation", "verify password").Wrap(verr)
		}
		if !ok {
			return failure(CodeUnauthorized, "current password is incorrect", "current password mismatch for %q", r.Username)
		}
		return s.setPassword(r, next)
	})
	if errors.Is(err, users.ErrNotFound) {
		return unauthorized("session user %q no longer exists", rec.Username)
	}
	if err != nil {
		if errutil.Code(err) == CodeUnauthorized {
			return err
		}
		return oops.Code("AUTH_PASSWORD_CHANGE_FAILED").With("username", rec.Username).Wrap(err)
	}

	s.logger.InfoContext(ctx, "password changed", "username", rec.Username)
	return nil
}

// AdminLogin checks the fixed admin credentials and opens an admin session.
func (s *Service) AdminLogin(ctx context.Context, username, password string) (sess *Session, err error) {
	defer func() { s.record("admin_login", err) }()

	if username == "" || password == "" {
		return nil, invalidInput(msgInvalidCredentials, "admin username and password are required")
	}
	if !s.AdminConfigured() {
		return nil, unauthorized("admin credentials are not configured")
	}

	userOK := constantTimeEqual(username, s.cfg.AdminUsername)
	passOK := constantTimeEqual(password, s.cfg.AdminPassword)
	if !userOK || !passOK {
		s.logger.WarnContext(ctx, "admin login rejected")
		return nil, failure(CodeUnauthorized, msgInvalidCredentials, "admin credentials mismatch")
	}

	expires := s.now().Add(s.cfg.SessionTTL)
	signed, err := s.admin.Sign(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: "admin"},
		Username:         username,
		Role:             string(users.RoleAdmin),
	}, s.cfg.SessionTTL)
	if err != nil {
		return nil, oops.Code("AUTH_ADMIN_LOGIN_FAILED").Wrap(err)
	}

	s.logger.InfoContext(ctx, "admin logged in")
	return &Session{Token: signed, ExpiresAt: expires, Username: username, Role: users.RoleAdmin}, nil
}

// IsAdmin reports whether tokenString is a valid admin session.
func (s *Service) IsAdmin(tokenString string) bool {
	claims, err := s.admin.Verify(tokenString)
	return err == nil && claims.Role == string(users.RoleAdmin)
}

// AdminConfigured reports whether admin login is enabled.
func (s *Service) AdminConfigured() bool {
	return s.cfg.AdminUsername != "" && s.cfg.AdminPassword != ""
}

// AdminStatus reports store reachability and the user count. It never
// fails; an unreachable store is reported as disconnected.
func (s *Service) AdminStatus(ctx context.Context, adminToken string) AdminStatus {
	status := AdminStatus{
		Authed:          s.IsAdmin(adminToken),
		Store:           StoreDisconnected,
		AdminConfigured: s.AdminConfigured(),
	}
	n, err := s.users.Count(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "user count unavailable", "error", err)
		return status
	}
	status.Store = StoreConnected
	status.UserCount = n
	return status
}

func (s *Service) issueSession(rec *users.Record) (*Session, error) {
	expires := s.now().Add(s.cfg.SessionTTL)
	signed, err := s.sessions.Sign(token.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: rec.ID},
		Username:         rec.Username,
		Role:             string(rec.Role),
		PublicID:         rec.PublicID,
	}, s.cfg.SessionTTL)
	if err != nil {
		return nil, oops.Code("AUTH_SESSION_ISSUE_FAILED").With("username", rec.Username).Wrap(err)
	}
	return &Session{
		Token:     signed,
		ExpiresAt: expires,
		Username:  rec.Username,
		PublicID:  rec.PublicID,
		Role:      rec.Role,
		Plan:      rec.Plan,
	}, nil
}

func (s *Service) verifyPassword(rec *users.Record, password string) (bool, error) {
	hasher, err := NewHasher(rec.HashScheme)
	if err != nil {
		return false, err
	}
	return hasher.Verify(password, rec.Salt, rec.PasswordHash)
}

func (s *Service) setPassword(rec *users.Record, password string) error {
	salt, err := GenerateSalt()
	if err != nil {
		return err
	}
	digest, err := s.hasher.Hash(password, salt)
	if err != nil {
		return err
	}
	rec.Salt = salt
	rec.PasswordHash = digest
	rec.HashScheme = s.hasher.Scheme()
	return nil
}

// upgradeHash rehashes a record with the configured scheme. Failures are
// logged and otherwise ignored.
func (s *Service) upgradeHash(ctx context.Context, username, password string) {
	_, err := s.users.Mutate(ctx, username, func(r *users.Record) error {
		if r.HashScheme == s.hasher.Scheme() {
			return nil
		}
		return s.setPassword(r, password)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "password hash upgrade failed",
			"username", username,
			"scheme", s.hasher.Scheme(),
			"error", err)
		return
	}
	s.logger.InfoContext(ctx, "password hash upgraded", "username", username, "scheme", s.hasher.Scheme())
}

func (s *Service) record(operation string, err error) {
	if s.events == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = errutil.Code(err)
		if outcome == "" {
			outcome = "error"
		}
	}
	s.events.RecordAuthEvent(operation, outcome)
}

func identityFromRecord(rec *users.Record) *Identity {
	features := rec.Features
	created := rec.CreatedAt
	return &Identity{
		ID:          rec.ID,
		Username:    rec.Username,
		PublicID:    rec.PublicID,
		Role:        rec.Role,
		Plan:        rec.Plan,
		Features:    &features,
		CreatedAt:   &created,
		ActivatedAt: rec.ActivatedAt,
	}
}

// constantTimeEqual compares digests so neither length nor content leaks
// through timing.
func constantTimeEqual(a, b string) bool {
	ha := sha256.Sum256([]byte(a))
	hb := sha256.Sum256([]byte(b))
	return subtle.ConstantTimeCompare(ha[:], hb[:]) == 1
}
