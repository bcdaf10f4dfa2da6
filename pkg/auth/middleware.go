package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
)

// Middleware validates JWT tokens on every request. Requests without a
// valid token receive 401 Unauthorized; validated claims are stored in
// the request context for ClaimsFromContext.
func Middleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "Missing Authorization header", http.StatusUnauthorized)
				return
			}

			tokenString := extractToken(authHeader)
			if tokenString == "" {
				writeAuthError(w, "Invalid Authorization format, expected: Bearer <token>", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				writeAuthError(w, fmt.Sprintf("Invalid token: %s", err.Error()), http.StatusUnauthorized)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// MiddlewareWithExclusions skips authentication for the listed paths.
// Used for health checks and metrics endpoints.
func MiddlewareWithExclusions(validator TokenValidator, excludedPaths []string) func(http.Handler) http.Handler {
	excludeSet := make(map[string]bool, len(excludedPaths))
	for _, path := range excludedPaths {
		excludeSet[path] = true
	}

	return func(next http.Handler) http.Handler {
		authed := Middleware(validator)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if excludeSet[r.URL.Path] || excludeSet[strings.TrimSuffix(r.URL.Path, "/")] {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// OptionalMiddleware validates tokens when present but allows anonymous
// requests through. An invalid token is still rejected, so a caller
// cannot downgrade to anonymous by sending garbage.
func OptionalMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			tokenString := extractToken(authHeader)
			if tokenString == "" {
				writeAuthError(w, "Invalid Authorization format", http.StatusUnauthorized)
				return
			}

			claims, err := validator.ValidateToken(r.Context(), tokenString)
			if err != nil {
				writeAuthError(w, fmt.Sprintf("Invalid token: %s", err.Error()), http.StatusUnauthorized)
				return
			}

			ctx := ContextWithClaims(r.Context(), claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole requires the authenticated user to hold one of the given
// roles. Must run after Middleware in the chain.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if claims == nil {
				writeAuthError(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			if !claims.HasAnyRole(roles...) {
				writeAuthError(w, "Forbidden: insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// extractToken pulls the token out of an Authorization header. Accepts
// "Bearer <token>" and a raw token.
func extractToken(authHeader string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}

func writeAuthError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
