package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const OperatorIDKey contextKey = "operator_id"

// Claims identify the operator behind an admin request.
type Claims struct {
	OperatorID string `json:"operator_id"`
	jwt.RegisteredClaims
}

// RequireAuth guards the admin endpoints with an HMAC-signed bearer token.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeAuthError(w, "missing authorization header", "auth_required")
				return
			}

			if !strings.HasPrefix(authHeader, "Bearer ") {
				writeAuthError(w, "invalid authorization scheme", "auth_invalid_scheme")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method")
				}
				return []byte(jwtSecret), nil
			})

			if err != nil || !token.Valid {
				writeAuthError(w, "invalid token", "auth_invalid")
				return
			}

			ctx := context.WithValue(r.Context(), OperatorIDKey, claims.OperatorID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetOperatorID returns the authenticated operator from the context.
func GetOperatorID(ctx context.Context) (string, bool) {
	operatorID, ok := ctx.Value(OperatorIDKey).(string)
	return operatorID, ok
}

func writeAuthError(w http.ResponseWriter, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{
		"error": msg,
		"code":  code,
	})
}
