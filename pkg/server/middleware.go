package server

import (
	"net/http"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/reins-ai/reins/pkg/config"
)

// chiRoutePattern returns the matched route pattern, e.g.
// "/v1/runs/{id}", so metrics are labeled per route instead of per URL.
// Only populated after routing, which is why the observability middleware
// reads it when the request returns.
func chiRoutePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		return rctx.RoutePattern()
	}
	return ""
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}

// corsMiddleware applies the configured CORS policy. A nil or empty
// config falls back to permissive defaults for development.
func corsMiddleware(cors *config.CORSConfig) func(http.Handler) http.Handler {
	allowMethods := "GET, POST, OPTIONS"
	allowHeaders := "Content-Type, Authorization"
	origins := []string{"*"}
	if cors != nil {
		if len(cors.AllowedOrigins) > 0 {
			origins = cors.AllowedOrigins
		}
		if len(cors.AllowedMethods) > 0 {
			allowMethods = strings.Join(cors.AllowedMethods, ", ")
		}
		if len(cors.AllowedHeaders) > 0 {
			allowHeaders = strings.Join(cors.AllowedHeaders, ", ")
		}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin != "" {
				for _, allowed := range origins {
					if allowed == "*" || allowed == origin {
						w.Header().Set("Access-Control-Allow-Origin", allowed)
						break
					}
				}
			}
			w.Header().Set("Access-Control-Allow-Methods", allowMethods)
			w.Header().Set("Access-Control-Allow-Headers", allowHeaders)

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
