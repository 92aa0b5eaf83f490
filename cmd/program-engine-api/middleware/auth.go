// Package middleware provides HTTP middleware for the Program Engine API.
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
)

// Context keys for request-scoped values.
type contextKey string

const (
	// OperatorKey is the context key for the authenticated operator.
	OperatorKey contextKey = "operator"
)

// DevOperator is the operator recorded when authentication is disabled.
const DevOperator = "dev"

// AuthConfig holds authentication configuration.
type AuthConfig struct {
	Enabled bool
	// APIKeys are accepted bearer tokens. An entry of the form
	// "operator:key" names the operator recorded for that key.
	APIKeys []string
}

type apiKey struct {
	operator string
	key      string
}

func parseKeys(entries []string) []apiKey {
	keys := make([]apiKey, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if op, key, ok := strings.Cut(e, ":"); ok && op != "" && key != "" {
			keys = append(keys, apiKey{operator: op, key: key})
			continue
		}
		keys = append(keys, apiKey{operator: "api", key: e})
	}
	return keys
}

// Auth returns an authentication middleware.
func Auth(cfg AuthConfig) func(http.Handler) http.Handler {
	keys := parseKeys(cfg.APIKeys)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled {
				operator := r.Header.Get("X-Operator")
				if operator == "" {
					operator = DevOperator
				}
				next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operator)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, http.StatusUnauthorized, "missing authorization header")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				writeAuthError(w, http.StatusUnauthorized, "invalid authorization header format")
				return
			}

			operator, ok := lookupKey(keys, strings.TrimSpace(parts[1]))
			if !ok {
				writeAuthError(w, http.StatusUnauthorized, "invalid api key")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithOperator(r.Context(), operator)))
		})
	}
}

func lookupKey(keys []apiKey, token string) (string, bool) {
	for _, k := range keys {
		if subtle.ConstantTimeCompare([]byte(k.key), []byte(token)) == 1 {
			return k.operator, true
		}
	}
	return "", false
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + message + `"}`))
}

// WithOperator stores the operator in ctx.
func WithOperator(ctx context.Context, operator string) context.Context {
	return context.WithValue(ctx, OperatorKey, operator)
}

// OperatorFromContext extracts the operator from context.
func OperatorFromContext(ctx context.Context) string {
	if v := ctx.Value(OperatorKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// CORS returns CORS middleware for browser clients.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			for _, o := range allowedOrigins {
				if o == "*" || o == origin {
					allowed = true
					break
				}
			}

			if allowed && origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-File-Name, X-Operator")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// Handle preflight
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
