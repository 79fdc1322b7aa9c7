package httpserver

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ahmedelshiha/NextAccounting229/internal/jwt"
)

const sessionCookie = "session_token"

var errNoToken = errors.New("no session token")

type principalKey struct{}

func principalFrom(ctx context.Context) jwt.Principal {
	p, _ := ctx.Value(principalKey{}).(jwt.Principal)
	return p
}

// tokenFrom checks the Authorization header, then the token query parameter
// (EventSource cannot set headers), then the session cookie.
func tokenFrom(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return h[7:], nil
		}
		return h, nil
	}
	if t := r.URL.Query().Get("token"); t != "" {
		return t, nil
	}
	if c, err := r.Cookie(sessionCookie); err == nil && c.Value != "" {
		return c.Value, nil
	}
	return "", errNoToken
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok, err := tokenFrom(r)
		if err == nil {
			var p jwt.Principal
			if p, err = s.validator().Verify(tok); err == nil {
				next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
				return
			}
		}
		s.log.Debug("unauthorized", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusUnauthorized, "Unauthorized")
	})
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role := principalFrom(r.Context()).Role
			for _, want := range roles {
				if strings.EqualFold(role, want) {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, "Forbidden")
		})
	}
}
