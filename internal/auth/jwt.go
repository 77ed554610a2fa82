package auth

import (
	"context"
	"strings"
	"time"

	"collabchat/internal/errors"

	"github.com/golang-jwt/jwt/v5"
)

// Scheme is the only accepted authorization scheme
const Scheme = "bearer"

// Identity is the caller resolved from a verified token
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

// Verifier validates HMAC-signed JWTs. The subject claim is the user id.
type Verifier struct {
	secret []byte
	issuer string
	leeway time.Duration
}

// NewVerifier creates a verifier. An empty issuer disables the issuer check.
func NewVerifier(secret, issuer string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		issuer: issuer,
		leeway: 30 * time.Second,
	}
}

// ParseAuthorization splits "<scheme> <token>" and checks the scheme
func ParseAuthorization(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.NewAuthError("missing token")
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], Scheme) {
		return "", errors.NewAuthError("malformed authorization scheme")
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.NewAuthError("missing token")
	}
	return token, nil
}

// Verify resolves the identity behind an "<scheme> <token>" value
func (v *Verifier) Verify(ctx context.Context, header string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := ParseAuthorization(header)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.NewAuthError("unexpected signing method")
		}
		return v.secret, nil
	}, opts...)
	if err != nil || !token.Valid {
		appErr := errors.NewAuthError("invalid token")
		appErr.Cause = err
		return nil, appErr
	}

	if claims.Subject == "" {
		return nil, errors.NewAuthError("token has no subject")
	}

	identity := &Identity{UserID: claims.Subject}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}

// Issue signs a token for userID. Used by tests and local tooling.
func (v *Verifier) Issue(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    v.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}
