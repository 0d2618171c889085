package httpapi

import (
	"context"
	"net/http"
	"strings"

	"marketflow/auth"
)

type ctxKey int

const (
	ctxKeyUserID ctxKey = iota
	ctxKeyRole
)

// TokenVerifier checks a bearer token and returns the actor it names.
type TokenVerifier interface {
	VerifyToken(token string) (string, auth.Role, error)
}

// requireAuth rejects requests without a valid bearer token and stashes the
// actor identity in the request context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, role, err := s.verifier.VerifyToken(strings.TrimSpace(token))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyUserID, userID)
		ctx = context.WithValue(ctx, ctxKeyRole, role)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// actorFrom reads the identity requireAuth placed in the context.
func actorFrom(ctx context.Context) (string, auth.Role) {
	userID, _ := ctx.Value(ctxKeyUserID).(string)
	role, ok := ctx.Value(ctxKeyRole).(auth.Role)
	if !ok {
		role = auth.RoleMember
	}
	return userID, role
}
