/*
Package auth
File: identity.go
Description:
    Verification of upstream identity tokens (HS256 JWTs), plus minting of the
    same tokens for local play.
*/

package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

// Identity is what the upstream identity provider vouches for.
type Identity struct {
	Provider    string // Sign-in method, e.g. "google.com"
	Subject     string // Provider-scoped account id
	Email       string
	DisplayName string
	PhotoURL    string
}

// IdentityVerifier checks an upstream ID token.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (Identity, error)
}

type identityClaims struct {
	Email    string `json:"email,omitempty"`
	Name     string `json:"name,omitempty"`
	Picture  string `json:"picture,omitempty"`
	Provider string `json:"sign_in_provider,omitempty"`
	jwt.RegisteredClaims
}

// JWTVerifier verifies HS256 ID tokens minted by a trusted identity service.
type JWTVerifier struct {
	secret   []byte
	issuer   string
	audience string
	now      func() time.Time
}

// NewJWTVerifier returns a verifier for tokens signed with secret.
func NewJWTVerifier(secret, issuer, audience string) *JWTVerifier {
	return &JWTVerifier{
		secret:   []byte(strings.TrimSpace(secret)),
		issuer:   issuer,
		audience: audience,
		now:      time.Now,
	}
}

// Verify parses idToken and returns the identity it asserts.
func (v *JWTVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	if err := ctx.Err(); err != nil {
		return Identity{}, contextError(err)
	}
	if len(v.secret) == 0 {
		return Identity{}, newError(CodeDomainConfigRequired, errors.New("identity secret not configured"))
	}

	var claims identityClaims
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	_, err := jwt.ParseWithClaims(idToken, &claims, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return Identity{}, newError(CodeUnauthorizedDomain, err)
	case err != nil:
		return Identity{}, newError(CodeInvalidCredential, err)
	}

	if claims.Subject == "" {
		return Identity{}, newError(CodeInvalidCredential, ErrNoCredential)
	}
	return Identity{
		Provider:    claims.Provider,
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
		PhotoURL:    claims.Picture,
	}, nil
}

// MintIdentityToken signs an ID token the way the identity service does.
// It is used by the token command for local play and by tests.
func MintIdentityToken(secret, issuer, audience string, id Identity, ttl time.Duration, now time.Time) (string, error) {
	claims := identityClaims{
		Email:    id.Email,
		Name:     id.DisplayName,
		Picture:  id.PhotoURL,
		Provider: id.Provider,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.Subject,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if audience != "" {
		claims.Audience = jwt.ClaimStrings{audience}
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(strings.TrimSpace(secret)))
}

func contextError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return newError(CodeNetworkRequestFailed, err)
	}
	return newError(CodePopupClosed, err)
}
