package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type contextKey string

const userIDKey contextKey = "userID"

// DevUserHeader carries the acting user when dev headers are enabled.
const DevUserHeader = "X-User-ID"

var ErrInvalidToken = errors.New("invalid token")

// JWTConfig holds JWT configuration
type JWTConfig struct {
	SecretKey    string
	AllowDevUser bool
	Issuer       string
}

// NewJWTConfig creates a new JWT config
func NewJWTConfig(secretKey string, allowDevUser bool) *JWTConfig {
	if secretKey == "" {
		secretKey = "default-secret-key-change-in-production"
	}
	return &JWTConfig{SecretKey: secretKey, AllowDevUser: allowDevUser, Issuer: "bountyexpo"}
}

// Middleware resolves the acting user from a bearer token (or the dev header)
// and stores it on the request context. Requests without credentials pass
// through anonymously; RequireUser rejects them where an actor is needed.
func (c *JWTConfig) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.AllowDevUser {
			if userID := strings.TrimSpace(r.Header.Get(DevUserHeader)); userID != "" {
				next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
				return
			}
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			next.ServeHTTP(w, r)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header", http.StatusUnauthorized)
			return
		}

		userID, err := c.ParseToken(parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
	})
}

// RequireUser rejects anonymous requests.
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetUserID(r.Context()) == "" {
			http.Error(w, "Authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ParseToken validates an HMAC-signed token and returns its subject.
func (c *JWTConfig) ParseToken(tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(c.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// IssueToken signs a token for userID valid for ttl.
func (c *JWTConfig) IssueToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    c.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.SecretKey))
}

// WithUserID returns a context carrying the acting user.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID extracts user ID from context
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDKey).(string); ok {
		return userID
	}
	return ""
}
