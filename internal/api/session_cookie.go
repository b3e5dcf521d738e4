package api

import (
	"net/http"
	"strings"
	"time"
)

// SessionCookieName carries the login token for browser clients that do not
// send an Authorization header.
const SessionCookieName = "podcasts_session"

// SessionCookie controls the attributes of the login cookie. The zero value
// is usable: SameSite=Strict, Secure only for HTTPS requests.
type SessionCookie struct {
	SameSite http.SameSite
	// AlwaysSecure sets Secure even for plain HTTP requests, for deployments
	// behind a proxy that does not forward the scheme.
	AlwaysSecure bool
}

func (c SessionCookie) build(r *http.Request, value string, expires time.Time, maxAge int) *http.Cookie {
	sameSite := c.SameSite
	if sameSite == 0 {
		sameSite = http.SameSiteStrictMode
	}
	return &http.Cookie{
		Name:     SessionCookieName,
		Value:    value,
		Path:     "/",
		Expires:  expires.UTC(),
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.AlwaysSecure || requestIsHTTPS(r),
		SameSite: sameSite,
	}
}

// issue stores token until expires. Nothing is written for an empty token.
func (c SessionCookie) issue(w http.ResponseWriter, r *http.Request, token string, expires time.Time) {
	if token == "" {
		return
	}
	maxAge := int(time.Until(expires) / time.Second)
	if maxAge <= 0 {
		// MaxAge 0 would mean "no Max-Age attribute", keeping a dead cookie.
		maxAge = -1
	}
	http.SetCookie(w, c.build(r, token, expires, maxAge))
}

func (c SessionCookie) clear(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, c.build(r, "", time.Unix(0, 0), -1))
}

// requestIsHTTPS trusts the first X-Forwarded-Proto hop, set by the
// closest proxy.
func requestIsHTTPS(r *http.Request) bool {
	switch {
	case r == nil:
		return false
	case r.TLS != nil:
		return true
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.EqualFold(strings.TrimSpace(first), "https")
	}
	return r.URL != nil && strings.EqualFold(r.URL.Scheme, "https")
}
