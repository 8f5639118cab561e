package api

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAdmin is the only role allowed to trigger jobs by hand.
const RoleAdmin = "admin"

// AuthorizationError rejects a manual-trigger caller. It is answered
// immediately and never recorded as a job failure.
type AuthorizationError struct {
	Status int // http.StatusUnauthorized or http.StatusForbidden
	Reason string
}

func (e *AuthorizationError) Error() string {
	return fmt.Sprintf("authorization: %s", e.Reason)
}

func unauthenticated(reason string) error {
	return &AuthorizationError{Status: http.StatusUnauthorized, Reason: reason}
}

func forbidden(reason string) error {
	return &AuthorizationError{Status: http.StatusForbidden, Reason: reason}
}

// Identity is the caller as established by an Authorizer.
type Identity struct {
	UserID string
	Role   string
}

// Authorizer establishes who is calling. Role checks happen in RequireRole.
type Authorizer interface {
	Authorize(r *http.Request) (Identity, error)
}

// GatewayHeaders trusts the identity headers the API gateway forwards after
// it has authenticated the user.
type GatewayHeaders struct{}

func (GatewayHeaders) Authorize(r *http.Request) (Identity, error) {
	userID := r.Header.Get("x-user-id")
	if userID == "" {
		return Identity{}, unauthenticated("missing x-user-id header")
	}
	return Identity{UserID: userID, Role: strings.ToLower(r.Header.Get("x-user-role"))}, nil
}

// AdminClaims is the token payload accepted by JWTBearer.
type AdminClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

// JWTBearer validates an HS256 bearer token signed with a shared secret.
type JWTBearer struct {
	Secret []byte
}

func (a JWTBearer) Authorize(r *http.Request) (Identity, error) {
	raw, ok := bearerToken(r)
	if !ok {
		return Identity{}, unauthenticated("missing bearer token")
	}
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return a.Secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, unauthenticated("invalid token")
	}
	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	return Identity{UserID: userID, Role: strings.ToLower(claims.Role)}, nil
}

func bearerToken(r *http.Request) (string, bool) {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return strings.TrimSpace(auth[len(prefix):]), true
}

// RequireRole rejects callers the Authorizer cannot identify (401) or whose
// role differs from role (403).
func RequireRole(a Authorizer, role string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := a.Authorize(r)
			if err == nil && id.Role != role {
				err = forbidden(fmt.Sprintf("role %q may not perform this action", id.Role))
			}
			if err != nil {
				status := http.StatusUnauthorized
				var ae *AuthorizationError
				if errors.As(err, &ae) {
					status = ae.Status
				}
				jsonError(w, err.Error(), status)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CronSecret guards the trigger endpoint with a static bearer secret. An
// empty secret leaves the endpoint open.
func CronSecret(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				jsonError(w, "invalid or missing bearer token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
