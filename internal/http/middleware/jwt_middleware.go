package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/diagnosis/hanguk-bookings/internal/domain"
	"github.com/diagnosis/hanguk-bookings/internal/http/response"
	"github.com/diagnosis/hanguk-bookings/pkg/logger"
)

type ctxKey string

const (
	ctxAdmin ctxKey = "admin"
	ctxToken ctxKey = "token"
)

// Authenticator resolves a bearer token to an active admin.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*domain.Admin, error)
}

// RequireAdmin rejects requests without a valid, unrevoked session token.
func RequireAdmin(auth Authenticator, wr response.Writer) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				response.Unauthorized(w, "Access denied. No token provided.")
				return
			}

			admin, err := auth.Authenticate(r.Context(), raw)
			if err != nil {
				var authErr *domain.AuthError
				if errors.As(err, &authErr) {
					response.Unauthorized(w, authErr.Message)
					return
				}
				wr.Internal(w, r, "Authentication failed.", err)
				return
			}

			ctx := context.WithValue(r.Context(), ctxAdmin, admin)
			ctx = context.WithValue(ctx, ctxToken, raw)
			ctx = context.WithValue(ctx, logger.AdminIDKey, admin.ID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	authz := r.Header.Get("Authorization")
	if !strings.HasPrefix(authz, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authz, "Bearer "))
}

// Admin returns the authenticated admin, or nil outside RequireAdmin.
func Admin(r *http.Request) *domain.Admin {
	a, _ := r.Context().Value(ctxAdmin).(*domain.Admin)
	return a
}

// Token returns the raw session token of the authenticated request.
func Token(r *http.Request) string {
	t, _ := r.Context().Value(ctxToken).(string)
	return t
}
