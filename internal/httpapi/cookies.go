// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Portico Contributors

package httpapi

import (
	"net/http"
	"time"
)

// Cookie names for the two trust domains.
const (
	SessionCookie = "session"
	AdminCookie   = "admin_session"
)

// CookiePolicy shapes the cookies carrying signed tokens. MaxAge is
// independent of the token lifetime; a cookie that outlives its token
// simply fails verification.
type CookiePolicy struct {
	MaxAge time.Duration
	Secure bool
}

func (p CookiePolicy) set(w http.ResponseWriter, name, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   int(p.MaxAge / time.Second),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clear expires the cookie immediately (Max-Age=0 on the wire).
func (p CookiePolicy) clear(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   p.Secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// cookieValue returns the named cookie's value or "".
func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}
