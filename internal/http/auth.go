package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/Imaginaryverse/spending-habits/internal/auth"
	applog "github.com/Imaginaryverse/spending-habits/internal/log"
)

type userIDKey struct{}

// TokenValidator checks bearer tokens.
type TokenValidator interface {
	Validate(token string) (*auth.Claims, error)
}

// requireAuth rejects requests without a valid bearer token and stores the
// caller's user ID in the context.
func requireAuth(tokens TokenValidator, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			UnauthorizedError(auth.ErrMissingToken.Error()).Write(w)
			return
		}

		claims, err := tokens.Validate(strings.TrimSpace(token))
		if err != nil {
			applog.FromContext(r.Context()).WithComponent(applog.ComponentAuth).
				WarnContext(r.Context(), "Rejected bearer token", applog.FieldError, err)
			UnauthorizedError(auth.ErrInvalidToken.Error()).Write(w)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey{}, claims.UserID)
		ctx = applog.NewContext(ctx, applog.FromContext(ctx).With(applog.FieldUserID, claims.UserID))
		next(w, r.WithContext(ctx))
	}
}

// userID returns the authenticated caller. Only valid behind requireAuth.
func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey{}).(string)
	return id
}
