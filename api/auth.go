/*
auth.go - Caller identity

PURPOSE:
  Every operation acts on behalf of a caller principal. The Identity
  middleware resolves it once per request and stores it in the context.

RESOLUTION ORDER:
  1. JWT secret configured: the subject of an HS256 bearer token. A present
     but invalid token is rejected with 401; no token means anonymous.
  2. No secret: the X-Principal header (development and tests).
  3. Otherwise the anonymous principal.

SEE ALSO:
  - insurance/types.go: AnonymousPrincipal
*/
package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/warp/insurance-engine/insurance"
)

// PrincipalHeader carries the caller when no JWT secret is configured.
const PrincipalHeader = "X-Principal"

type principalKey struct{}

// Claims are the token claims; the subject is the principal.
type Claims struct {
	jwt.RegisteredClaims
}

// IssueToken signs a token for principal, valid for ttl.
func IssueToken(secret []byte, principal insurance.Principal, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   string(principal),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken returns the principal of a valid token.
func ParseToken(secret []byte, token string) (insurance.Principal, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}
	if claims.Subject == "" {
		return "", errors.New("token has no subject")
	}
	return insurance.Principal(claims.Subject), nil
}

// Identity resolves the caller of each request.
func Identity(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := insurance.AnonymousPrincipal

			if len(secret) > 0 {
				if token, ok := bearerToken(r); ok {
					p, err := ParseToken(secret, token)
					if err != nil {
						writeError(w, http.StatusUnauthorized, "Invalid token", err)
						return
					}
					caller = p
				}
			} else if h := strings.TrimSpace(r.Header.Get(PrincipalHeader)); h != "" {
				caller = insurance.Principal(h)
			}

			ctx := context.WithValue(r.Context(), principalKey{}, caller)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerFrom returns the caller stored by Identity, or the anonymous principal.
func CallerFrom(ctx context.Context) insurance.Principal {
	if p, ok := ctx.Value(principalKey{}).(insurance.Principal); ok {
		return p
	}
	return insurance.AnonymousPrincipal
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if len(h) < 7 || !strings.EqualFold(h[:7], "bearer ") {
		return "", false
	}
	token := strings.TrimSpace(h[7:])
	return token, token != ""
}
