package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// Token roles.
const (
	RoleAdmin  = "admin"
	RoleTenant = "tenant"
)

const tokenIssuer = "callbunker"

type claimsContextKey struct{}

// Claims are the JWT claims for admin and tenant self-service tokens.
// TenantID is set only for tenant tokens.
type Claims struct {
	Role     string `json:"role"`
	TenantID int64  `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// GenerateAdminToken issues a token for an operator account.
func GenerateAdminToken(secret []byte, userID int64, username string, ttl time.Duration) (string, time.Time, error) {
	return generateToken(secret, Claims{Role: RoleAdmin}, strconv.FormatInt(userID, 10), username, ttl)
}

// GenerateTenantToken issues a self-service token scoped to one tenant.
func GenerateTenantToken(secret []byte, tenantID int64, ttl time.Duration) (string, time.Time, error) {
	id := strconv.FormatInt(tenantID, 10)
	return generateToken(secret, Claims{Role: RoleTenant, TenantID: tenantID}, id, "tenant:"+id, ttl)
}

func generateToken(secret []byte, claims Claims, id, subject string, ttl time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(ttl)

	claims.RegisteredClaims = jwt.RegisteredClaims{
		ID:        id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		Issuer:    tokenIssuer,
		Subject:   subject,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseToken validates a signed token and returns its claims.
func ParseToken(secret []byte, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Issuer != tokenIssuer {
		return nil, errors.New("unexpected token issuer")
	}
	if claims.Role == RoleTenant && claims.TenantID <= 0 {
		return nil, errors.New("tenant token without tenant id")
	}
	return claims, nil
}

// RequireRole returns middleware that accepts bearer tokens carrying one
// of roles and stores the claims in the request context.
func RequireRole(secret []byte, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeJSONError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			scheme, tokenString, ok := strings.Cut(authHeader, " ")
			if !ok || !strings.EqualFold(scheme, "bearer") {
				writeJSONError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims, err := ParseToken(secret, strings.TrimSpace(tokenString))
			if err != nil {
				slog.Debug("api auth: invalid jwt", "error", err)
				writeJSONError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			if !slices.Contains(roles, claims.Role) {
				writeJSONError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the claims stored by RequireRole, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsContextKey{}).(*Claims)
	return c
}
