package middleware

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/foyerhq/foyer/internal/model"
	"github.com/foyerhq/foyer/internal/service"
)

type contextKeyAuth string

// AuthPrincipalKey is the context key for the authenticated principal.
const AuthPrincipalKey contextKeyAuth = "auth_principal"

// Principal is the authenticated identity making the request.
type Principal struct {
	Type        string // "session" or "api_key"
	KeyID       string // set for api_key principals
	Permissions []string
	IsAdmin     bool
}

// Authenticate resolves the request's credentials and attaches a Principal
// to the context. Two credential types are accepted:
//
//  1. An API key in the X-API-Key header (external integrations)
//  2. A bearer value in the Authorization header: an admin session token,
//     or the raw admin password until the first login has happened
//
// When the API-key header is present it alone decides the outcome; a bad
// key is rejected even if a valid bearer token rides along. Only a request
// with no API-key header falls through to bearer inspection. Any
// authenticated principal passes this middleware; use RequireAdmin on top
// for admin-only routes.
func Authenticate(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var principal *Principal

			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				key, err := authSvc.LookupAPIKey(r.Context(), apiKey)
				if err != nil {
					writeAuthError(w, http.StatusUnauthorized, "invalid API key")
					return
				}
				principal = &Principal{
					Type:        "api_key",
					KeyID:       key.ID,
					Permissions: key.Permissions,
					IsAdmin:     key.HasPermission(model.PermissionAdmin),
				}
			}

			if principal == nil {
				if bearer := BearerToken(r); bearer != "" {
					if err := authSvc.ValidateBearer(r.Context(), bearer); err != nil {
						writeAuthError(w, http.StatusUnauthorized, "invalid or expired credentials")
						return
					}
					principal = &Principal{Type: "session", IsAdmin: true}
				}
			}

			if principal == nil {
				writeAuthError(w, http.StatusUnauthorized,
					"authentication required: provide an X-API-Key header or a bearer token")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin enforces admin-level access. It must run after Authenticate.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal := GetPrincipal(r.Context())
			if principal == nil || !principal.IsAdmin {
				writeAuthError(w, http.StatusForbidden, "admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GetPrincipal extracts the authenticated principal from the context, or
// nil for an unauthenticated request.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// BearerToken returns the Authorization header's bearer value, or "".
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Manually constructed JSON avoids an import cycle with the handler
	// package. Messages here are static strings, so no escaping is needed.
	w.Write([]byte(`{"error":{"code":` + strconv.Itoa(status) + `,"message":"` + message + `"}}`))
}
