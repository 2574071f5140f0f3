package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ChannovDenis/dobro20-sub000/internal/auth"
)

// RoleChecker looks up user roles.
type RoleChecker interface {
	HasRole(ctx context.Context, userID uuid.UUID, role string) (bool, error)
}

// AuthMiddleware identifies callers by bearer token or anonymous session header.
type AuthMiddleware struct {
	verifier auth.Verifier
	roles    RoleChecker
	logger   zerolog.Logger
}

// NewAuthMiddleware creates a new auth middleware. verifier may be nil, in
// which case only session headers are accepted.
func NewAuthMiddleware(verifier auth.Verifier, roles RoleChecker, logger zerolog.Logger) *AuthMiddleware {
	return &AuthMiddleware{verifier: verifier, roles: roles, logger: logger}
}

// bearerToken extracts the token from an Authorization: Bearer header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(h[7:])
}

// RequireCaller accepts a verified bearer token or a well-formed session
// header, and rejects everything else with 401.
func (m *AuthMiddleware) RequireCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := &auth.Identity{}
		if sid := r.Header.Get(auth.SessionHeader); auth.ValidSessionID(sid) {
			id.SessionID = sid
		}

		if token := bearerToken(r); token != "" && m.verifier != nil {
			user, err := m.verifier.Verify(r.Context(), token)
			switch {
			case err == nil:
				id.User = user
			case errors.Is(err, auth.ErrAnonToken):
				// The publishable key is sent as a bearer by anonymous clients.
			default:
				m.logger.Debug().Err(err).Msg("bearer verification failed")
			}
		}

		if id.User == nil && id.SessionID == "" {
			m.logger.Warn().
				Str("type", "security").
				Str("event", "auth_failed").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("request without valid bearer or session")
			jsonError(w, http.StatusUnauthorized, "authorization required")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

// RequireRole only lets verified users holding role through. It must run
// after RequireCaller.
func (m *AuthMiddleware) RequireRole(role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			if id == nil || id.User == nil {
				jsonError(w, http.StatusUnauthorized, "sign-in required")
				return
			}
			ok, err := m.roles.HasRole(r.Context(), id.User.ID, role)
			if err != nil {
				m.logger.Error().Err(err).Str("role", role).Msg("role lookup failed")
				jsonError(w, http.StatusInternalServerError, "database error")
				return
			}
			if !ok {
				m.logger.Warn().
					Str("type", "security").
					Str("event", "forbidden").
					Str("user_id", id.User.ID.String()).
					Str("role", role).
					Str("endpoint", r.URL.Path).
					Msg("missing role")
				jsonError(w, http.StatusForbidden, "forbidden")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
