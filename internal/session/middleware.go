package session

import (
	"context"
	"net/http"
	"time"
)

type contextKey int

const sessionKey contextKey = iota

// FromContext extracts the session from the request context.
func FromContext(ctx context.Context) *Session {
	if s, ok := ctx.Value(sessionKey).(*Session); ok {
		return s
	}
	return nil
}

// WithSession stores s in ctx.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, sessionKey, s)
}

// Middleware attaches the caller's session, issuing a cookie for new ones.
func Middleware(m *Manager, cookieName string, maxAge time.Duration, isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if c, err := r.Cookie(cookieName); err == nil {
				id = c.Value
			}

			s, created := m.GetOrCreate(id)
			if created || id != s.ID {
				http.SetCookie(w, &http.Cookie{
					Name:     cookieName,
					Value:    s.ID,
					Path:     "/",
					MaxAge:   int(maxAge.Seconds()),
					HttpOnly: true,
					SameSite: http.SameSiteLaxMode,
					Secure:   !isDev,
				})
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), s)))
		})
	}
}
