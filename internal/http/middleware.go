package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
	"go.uber.org/zap"
)

type ctxKey string

const (
	ctxUserIDKey   ctxKey = "user_id"
	ctxUserRoleKey ctxKey = "user_role"
)

const RoleAdmin = "admin"

var errUnexpectedSigningMethod = errors.New("unexpected signing method")

// AuthMiddleware validates an HS256 bearer token and stores its sub and role
// claims on the request context. Requests without an Authorization header pass
// through anonymously; a header carrying an invalid token is rejected.
func AuthMiddleware(secret []byte, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if authz == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authz, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
				return
			}

			token, err := jwt.Parse(strings.TrimSpace(parts[1]), func(t *jwt.Token) (interface{}, error) {
				if t.Method != jwt.SigningMethodHS256 {
					return nil, errUnexpectedSigningMethod
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				log.Debug("rejected bearer token", zap.Error(err))
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondError(w, http.StatusUnauthorized, "unauthorized", "invalid token")
				return
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				respondError(w, http.StatusUnauthorized, "unauthorized", "token has no subject")
				return
			}
			role, _ := claims["role"].(string)

			ctx := context.WithValue(r.Context(), ctxUserIDKey, sub)
			ctx = context.WithValue(ctx, ctxUserRoleKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects callers whose token does not carry the admin role.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if getUserIDFromContext(r.Context()) == "" {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing user authentication")
			return
		}
		if role, _ := r.Context().Value(ctxUserRoleKey).(string); role != RoleAdmin {
			respondError(w, http.StatusForbidden, "forbidden", "admin role required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func getUserIDFromContext(ctx context.Context) string {
	if userID, ok := ctx.Value(ctxUserIDKey).(string); ok {
		return userID
	}
	return ""
}
