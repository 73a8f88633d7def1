// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/portico/portico/internal/auth"
	"github.com/portico/portico/internal/captcha"
	"github.com/portico/portico/internal/entitlement"
	"github.com/portico/portico/internal/users"
)

// AuthService is the authentication flow the handlers drive.
type AuthService interface {
	Challenge() (captcha.Challenge, error)
	Register(ctx context.Context, in auth.RegisterInput) (*auth.Session, error)
	Login(ctx context.Context, username, password string) (*auth.Session, error)
	Logout(ctx context.Context, token string)
	WhoAmI(ctx context.Context, token string) *auth.Identity
	ChangePassword(ctx context.Context, token, current, next string) error
	AdminLogin(ctx context.Context, username, password string) (*auth.Session, error)
	AdminStatus(ctx context.Context, adminToken string) auth.AdminStatus
}

// Activator redeems activation codes.
type Activator interface {
	Activate(ctx context.Context, sessionToken, code string) (*entitlement.Activation, error)
}

type handlers struct {
	auth    AuthService
	plans   Activator
	cookies CookiePolicy
	logger  *slog.Logger
}

type okResponse struct {
	OK bool `json:"ok"`
}

type registerResponse struct {
	OK       bool   `json:"ok"`
	Username string `json:"username"`
	PublicID string `json:"publicId"`
}

type loginResponse struct {
	OK       bool       `json:"ok"`
	Username string     `json:"username"`
	PublicID string     `json:"publicId"`
	Plan     users.Plan `json:"plan"`
}

type identityResponse struct {
	Guest       bool            `json:"guest"`
	Degraded    bool            `json:"degraded,omitempty"`
	Username    string          `json:"username,omitempty"`
	PublicID    string          `json:"publicId,omitempty"`
	Role        users.Role      `json:"role,omitempty"`
	Plan        users.Plan      `json:"plan,omitempty"`
	Features    *users.Features `json:"features,omitempty"`
	CreatedAt   *time.Time      `json:"createdAt,omitempty"`
	ActivatedAt *time.Time      `json:"activatedAt,omitempty"`
}

type activateResponse struct {
	OK          bool           `json:"ok"`
	Plan        users.Plan     `json:"plan"`
	Features    users.Features `json:"features"`
	ActivatedAt time.Time      `json:"activatedAt"`
}

type adminStatusResponse struct {
	Authed          bool   `json:"authed"`
	Store           string `json:"store"`
	AdminConfigured bool   `json:"adminConfigured"`
	UserCount       int    `json:"userCount"`
	Service         string `json:"service"`
}

func (h *handlers) challenge(w http.ResponseWriter, r *http.Request) {
	c, err := h.auth.Challenge()
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, c)
}

func (h *handlers) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	sess, err := h.auth.Register(r.Context(), auth.RegisterInput{
		Username:  req.Username,
		Password:  req.Password,
		Answer:    req.Answer,
		Challenge: req.challenge(),
	})
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	h.cookies.set(w, SessionCookie, sess.Token)
	writeJSON(w, http.StatusOK, registerResponse{OK: true, Username: sess.Username, PublicID: sess.PublicID})
}

func (h *handlers) login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	sess, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	h.cookies.set(w, SessionCookie, sess.Token)
	writeJSON(w, http.StatusOK, loginResponse{
		OK:       true,
		Username: sess.Username,
		PublicID: sess.PublicID,
		Plan:     sess.Plan,
	})
}

func (h *handlers) logout(w http.ResponseWriter, r *http.Request) {
	h.auth.Logout(r.Context(), cookieValue(r, SessionCookie))
	h.cookies.clear(w, SessionCookie)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handlers) me(w http.ResponseWriter, r *http.Request) {
	id := h.auth.WhoAmI(r.Context(), cookieValue(r, SessionCookie))
	w.Header().Set("Cache-Control", "no-store")
	if id.Guest {
		writeJSON(w, http.StatusOK, identityResponse{Guest: true})
		return
	}
	writeJSON(w, http.StatusOK, identityResponse{
		Degraded:    id.Degraded,
		Username:    id.Username,
		PublicID:    id.PublicID,
		Role:        id.Role,
		Plan:        id.Plan,
		Features:    id.Features,
		CreatedAt:   id.CreatedAt,
		ActivatedAt: id.ActivatedAt,
	})
}

func (h *handlers) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	act, err := h.plans.Activate(r.Context(), cookieValue(r, SessionCookie), req.ActivationCode)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, activateResponse{
		OK:          true,
		Plan:        act.Plan,
		Features:    act.Features,
		ActivatedAt: act.ActivatedAt,
	})
}

func (h *handlers) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	err := h.auth.ChangePassword(r.Context(), cookieValue(r, SessionCookie), req.CurrentPassword, req.NewPassword)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handlers) adminLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decode(w, r, &req); err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	sess, err := h.auth.AdminLogin(r.Context(), req.Username, req.Password)
	if err != nil {
		writeError(r.Context(), w, h.logger, err)
		return
	}
	h.cookies.set(w, AdminCookie, sess.Token)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handlers) adminLogout(w http.ResponseWriter, _ *http.Request) {
	h.cookies.clear(w, AdminCookie)
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (h *handlers) adminStatus(w http.ResponseWriter, r *http.Request) {
	st := h.auth.AdminStatus(r.Context(), cookieValue(r, AdminCookie))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, adminStatusResponse{
		Authed:          st.Authed,
		Store:           st.Store,
		AdminConfigured: st.AdminConfigured,
		UserCount:       st.UserCount,
		Service:         "active",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	//nolint:errcheck // client may have gone away
	json.NewEncoder(w).Encode(v)
}
