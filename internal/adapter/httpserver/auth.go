package httpserver

import (
	"context"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pitchpractice/pitchpractice/internal/domain"
)

type identityKey struct{}

// IdentityMiddleware resolves the caller identity once per request. A valid
// Bearer token yields an authenticated user id; otherwise the caller is
// anonymous and identified by the X-Session-Id header. An invalid token is
// rejected rather than silently downgraded to anonymous.
func (s *Server) IdentityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := domain.Identity{SessionID: r.Header.Get("X-Session-Id")}
		if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			token := strings.TrimPrefix(auth, "Bearer ")
			userID, err := s.verifyToken(token)
			if err != nil {
				writeError(w, r, err, nil)
				return
			}
			id.UserID = &userID
		}
		ctx := context.WithValue(r.Context(), identityKey{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// verifyToken validates an HS256 JWT from the hosted auth provider and
// returns its subject.
func (s *Server) verifyToken(token string) (string, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if s.Cfg.AuthIssuer != "" {
		opts = append(opts, jwt.WithIssuer(s.Cfg.AuthIssuer))
	}
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.Cfg.AuthJWTSecret), nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return "", domain.ErrUnauthenticated
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", domain.ErrUnauthenticated
	}
	return sub, nil
}

// IdentityFrom returns the identity resolved by IdentityMiddleware.
func IdentityFrom(r *http.Request) domain.Identity {
	if v := r.Context().Value(identityKey{}); v != nil {
		if id, ok := v.(domain.Identity); ok {
			return id
		}
	}
	return domain.Identity{}
}
