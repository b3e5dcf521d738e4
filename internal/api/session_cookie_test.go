package api

import (
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSessionCookieIssue(t *testing.T) {
	tests := []struct {
		name       string
		cookie     SessionCookie
		prepare    func(*http.Request)
		wantSecure bool
		wantSite   http.SameSite
	}{
		{
			name:     "plain http",
			wantSite: http.SameSiteStrictMode,
		},
		{
			name:       "tls",
			prepare:    func(r *http.Request) { r.TLS = &tls.ConnectionState{} },
			wantSecure: true,
			wantSite:   http.SameSiteStrictMode,
		},
		{
			name:       "forwarded https",
			prepare:    func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "https, http") },
			wantSecure: true,
			wantSite:   http.SameSiteStrictMode,
		},
		{
			name:     "forwarded by an https hop behind http",
			prepare:  func(r *http.Request) { r.Header.Set("X-Forwarded-Proto", "http, https") },
			wantSite: http.SameSiteStrictMode,
		},
		{
			name:       "always secure and lax",
			cookie:     SessionCookie{SameSite: http.SameSiteLaxMode, AlwaysSecure: true},
			wantSecure: true,
			wantSite:   http.SameSiteLaxMode,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
			if tc.prepare != nil {
				tc.prepare(req)
			}
			rec := httptest.NewRecorder()
			tc.cookie.issue(rec, req, "token", time.Now().Add(time.Hour))

			cookie := findCookie(t, rec.Result().Cookies(), SessionCookieName)
			if cookie.Secure != tc.wantSecure {
				t.Fatalf("expected Secure=%v, got %v", tc.wantSecure, cookie.Secure)
			}
			if cookie.SameSite != tc.wantSite {
				t.Fatalf("expected SameSite %v, got %v", tc.wantSite, cookie.SameSite)
			}
			if !cookie.HttpOnly || cookie.Path != "/" {
				t.Fatalf("expected an HttpOnly cookie on /, got %+v", cookie)
			}
			if cookie.MaxAge <= 0 || cookie.MaxAge > 3600 {
				t.Fatalf("expected MaxAge within the hour, got %d", cookie.MaxAge)
			}
		})
	}
}

func TestSessionCookieIssueSkipsEmptyToken(t *testing.T) {
	rec := httptest.NewRecorder()
	SessionCookie{}.issue(rec, httptest.NewRequest(http.MethodPost, "/", nil), "", time.Now().Add(time.Hour))
	if len(rec.Result().Cookies()) != 0 {
		t.Fatal("expected no cookie for an empty token")
	}
}

func TestSessionCookieClear(t *testing.T) {
	rec := httptest.NewRecorder()
	SessionCookie{AlwaysSecure: true}.clear(rec, httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))

	cookie := findCookie(t, rec.Result().Cookies(), SessionCookieName)
	if cookie.MaxAge >= 0 || cookie.Value != "" {
		t.Fatalf("expected an expired empty cookie, got %+v", cookie)
	}
	if !cookie.Secure {
		t.Fatal("expected AlwaysSecure to apply when clearing")
	}
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, cookie := range cookies {
		if cookie.Name == name {
			return cookie
		}
	}
	t.Fatalf("cookie %q not found", name)
	return nil
}
