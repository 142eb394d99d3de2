package middleware

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/tastybites/storefront/pkg/logger"
)

type sessionKeyType struct{}

// SessionConfig controls how the storefront session ID is carried.
type SessionConfig struct {
	CookieName string
	Header     string
	MaxAge     time.Duration
	Secure     bool
}

// DefaultSessionConfig returns the cookie and header names used by the storefront.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CookieName: "cart_session",
		Header:     "X-Session-ID",
		MaxAge:     30 * 24 * time.Hour,
	}
}

var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{8,64}$`)

// Session resolves the browser session ID from the cookie or header, minting
// a new one when neither carries a well-formed value. The ID is echoed back in
// both the cookie and the response header.
func Session(cfg SessionConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := ""
			if c, err := r.Cookie(cfg.CookieName); err == nil && sessionIDPattern.MatchString(c.Value) {
				id = c.Value
			} else if h := r.Header.Get(cfg.Header); sessionIDPattern.MatchString(h) {
				id = h
			}
			if id == "" {
				id = uuid.NewString()
			}

			http.SetCookie(w, &http.Cookie{
				Name:     cfg.CookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   int(cfg.MaxAge.Seconds()),
				HttpOnly: true,
				Secure:   cfg.Secure,
				SameSite: http.SameSiteLaxMode,
			})
			w.Header().Set(cfg.Header, id)

			ctx := context.WithValue(r.Context(), sessionKeyType{}, id)
			ctx = logger.WithSessionID(ctx, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionIDFromContext returns the session ID resolved by Session.
func SessionIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(sessionKeyType{}).(string); ok {
		return id
	}
	return ""
}
