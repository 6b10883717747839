package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RoleStaff  = "staff"
	RoleDoctor = "doctor"
)

type identityContextKey struct{}

// Identity is the authenticated caller resolved from the bearer token.
type Identity struct {
	UserID string
	Role   string
	Name   string
}

// Authenticator verifies HMAC-signed bearer tokens carrying a role claim.
type Authenticator struct {
	secret []byte
}

func NewAuthenticator(secret string) *Authenticator {
	return &Authenticator{secret: []byte(secret)}
}

// Middleware rejects requests without a valid token unless the endpoint is
// public. Role checks are per-handler; this only establishes identity.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		token := BearerToken(r)
		if token == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		identity, err := a.Verify(token)
		if err != nil {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid bearer token")
			return
		}
		ctx := context.WithValue(r.Context(), identityContextKey{}, identity)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Verify parses and validates a token, returning the caller identity.
func (a *Authenticator) Verify(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %q", t.Method.Alg())
		}
		return a.secret, nil
	})
	if err != nil {
		return Identity{}, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}

	identity := Identity{}
	if sub, ok := claims["sub"].(string); ok {
		identity.UserID = sub
	}
	if role, ok := claims["role"].(string); ok {
		identity.Role = role
	}
	if name, ok := claims["name"].(string); ok {
		identity.Name = name
	}
	if identity.UserID == "" || identity.Role == "" {
		return Identity{}, jwt.ErrTokenInvalidClaims
	}
	return identity, nil
}

// VerifyToken reports whether a token is valid, discarding the identity.
// Satisfies realtime.TokenVerifier.
func (a *Authenticator) VerifyToken(token string) error {
	_, err := a.Verify(token)
	return err
}

func identityFromContext(ctx context.Context) (Identity, bool) {
	value := ctx.Value(identityContextKey{})
	if value == nil {
		return Identity{}, false
	}
	identity, ok := value.(Identity)
	return identity, ok
}

// requireRole writes the error response itself when the caller is missing or
// holds a different role. Always passes when the handler runs without an
// authenticator.
func (h *Handler) requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if h.auth == nil {
		return true
	}
	identity, ok := identityFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return false
	}
	if identity.Role != role {
		writeError(w, requestIDFromRequest(r), http.StatusForbidden, "forbidden", "insufficient role")
		return false
	}
	return true
}

// BearerToken extracts the token from the Authorization header, falling back
// to the access_token query parameter for transports that cannot set headers.
func BearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Fields(header)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
	}
	return strings.TrimSpace(r.URL.Query().Get("access_token"))
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics":
		return true
	default:
		return r.Method == http.MethodOptions
	}
}
