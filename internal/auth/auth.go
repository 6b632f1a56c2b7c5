// Package auth resolves bearer tokens to user ids.
package auth

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rotisserie/eris"
)

// ErrUnauthorized is returned for a missing, malformed, or invalid token.
var ErrUnauthorized = eris.New("unauthorized")

// Claims are the token claims we read. Supabase access tokens put the user
// id in sub.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Verifier validates HS256 bearer tokens.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a Verifier. issuer may be empty to accept any.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{secret: []byte(secret), issuer: issuer, leeway: 30 * time.Second}
}

// UserID validates the Authorization header value and returns the token
// subject.
func (v *Verifier) UserID(authorization string) (string, error) {
	if len(v.secret) == 0 {
		return "", eris.Wrap(ErrUnauthorized, "no signing secret configured")
	}
	token, ok := bearerToken(authorization)
	if !ok {
		return "", eris.Wrap(ErrUnauthorized, "missing bearer token")
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return "", eris.Wrapf(ErrUnauthorized, "invalid token: %v", err)
	}
	if !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return "", eris.Wrap(ErrUnauthorized, "token has no subject")
	}
	return claims.Subject, nil
}

// Sign issues a token for userID. Used by the CLI and tests.
func (v *Verifier) Sign(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: "authenticated",
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", eris.Wrap(err, "sign token")
	}
	return signed, nil
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	const prefix = "bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}
