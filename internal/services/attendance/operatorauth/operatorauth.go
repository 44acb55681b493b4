// Package operatorauth authenticates scan-station operators with HS256 bearer
// tokens and checks their role against the operation being called.
package operatorauth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
)

// Operator roles.
const (
	RoleScanner = "scanner"
	RoleAdmin   = "admin"
)

// MinSecretBytes is the shortest accepted signing secret.
const MinSecretBytes = 16

// Claims is a validated operator identity.
type Claims struct {
	Subject   string
	Role      string
	ExpiresAt time.Time
}

// operatorClaims is the internal claims type used for JWT parsing.
type operatorClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// Authenticator issues and validates operator tokens.
type Authenticator struct {
	secret []byte
	now    func() time.Time
}

// NewAuthenticator creates an authenticator. A nil clock uses time.Now.
func NewAuthenticator(secret string, now func() time.Time) (*Authenticator, error) {
	if len(strings.TrimSpace(secret)) < MinSecretBytes {
		return nil, fmt.Errorf("operator secret must be at least %d bytes", MinSecretBytes)
	}
	if now == nil {
		now = time.Now
	}
	return &Authenticator{secret: []byte(secret), now: now}, nil
}

// Issue signs a token for subject with role, valid for ttl.
func (a *Authenticator) Issue(subject, role string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", errors.New("subject is required")
	}
	if !validRole(role) {
		return "", fmt.Errorf("role %q is invalid", role)
	}
	if ttl <= 0 {
		return "", errors.New("ttl must be positive")
	}
	now := a.now().UTC()
	claims := operatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Parse validates a raw token and returns its claims.
func (a *Authenticator) Parse(raw string) (Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is required")
	}
	var parsed operatorClaims
	_, err := jwt.ParseWithClaims(raw, &parsed, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if parsed.ExpiresAt == nil {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token exp is required")
	}
	exp := parsed.ExpiresAt.Time.UTC()
	if !exp.After(a.now().UTC()) {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is expired")
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token sub is required")
	}
	if !validRole(parsed.Role) {
		return Claims{}, apperrors.WithMetadata(
			apperrors.CodeOperatorUnauthenticated,
			"operator token role is invalid",
			map[string]string{"Role": parsed.Role},
		)
	}
	return Claims{Subject: parsed.Subject, Role: parsed.Role, ExpiresAt: exp}, nil
}

// Authorize checks that claims carry one of the allowed roles.
func Authorize(claims Claims, allowed ...string) error {
	if slices.Contains(allowed, claims.Role) {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeOperatorForbidden,
		"operator role is not allowed",
		map[string]string{"Role": claims.Role, "Subject": claims.Subject},
	)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

type claimsKey struct{}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFromContext returns claims stored by WithClaims.
func ClaimsFromContext(ctx context.Context) (Claims, bool) {
	if ctx == nil {
		return Claims{}, false
	}
	claims, ok := ctx.Value(claimsKey{}).(Claims)
	return claims, ok
}

func validRole(role string) bool {
	return role == RoleScanner || role == RoleAdmin
}

// mapJWTError translates jwt library errors to application errors.
func mapJWTError(err error) error {
	if errors.Is(err, jwt.ErrTokenSignatureInvalid) {
		return apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token signature is invalid")
	}
	if errors.Is(err, jwt.ErrTokenUnverifiable) {
		return apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token alg is invalid")
	}
	return apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is invalid")
}
