package operatorauth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const testSecret = "operator-secret-for-tests"

func newTestAuthenticator(t *testing.T, now time.Time) *Authenticator {
	t.Helper()

	auth, err := NewAuthenticator(testSecret, func() time.Time { return now })
	if err != nil {
		t.Fatalf("new authenticator: %v", err)
	}
	return auth
}

func TestNewAuthenticatorRejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewAuthenticator("short", nil); err == nil {
		t.Fatal("expected short secret error")
	}
}

func TestIssueParseRoundTrip(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	auth := newTestAuthenticator(t, now)
	raw, err := auth.Issue("op-1", RoleScanner, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	claims, err := auth.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Subject != "op-1" || claims.Role != RoleScanner {
		t.Fatalf("claims = %+v", claims)
	}
	if !claims.ExpiresAt.Equal(now.Add(time.Hour)) {
		t.Fatalf("expires_at = %v", claims.ExpiresAt)
	}
}

func TestIssueValidatesInput(t *testing.T) {
	t.Parallel()

	auth := newTestAuthenticator(t, time.Now())
	if _, err := auth.Issue(" ", RoleAdmin, time.Hour); err == nil {
		t.Fatal("expected missing subject error")
	}
	if _, err := auth.Issue("op", "janitor", time.Hour); err == nil {
		t.Fatal("expected invalid role error")
	}
	if _, err := auth.Issue("op", RoleAdmin, 0); err == nil {
		t.Fatal("expected ttl error")
	}
}

func TestParseRejects(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	auth := newTestAuthenticator(t, now)
	other := newTestAuthenticator(t, now)
	other.secret = []byte("a-completely-different-secret")

	expired, err := newTestAuthenticator(t, now.Add(-2*time.Hour)).Issue("op", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue expired: %v", err)
	}
	foreign, err := other.Issue("op", RoleAdmin, time.Hour)
	if err != nil {
		t.Fatalf("issue foreign: %v", err)
	}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"sub":  "op",
		"role": RoleAdmin,
		"exp":  now.Add(time.Hour).Unix(),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	badRole, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "op",
		"role": "root",
		"exp":  now.Add(time.Hour).Unix(),
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign bad role: %v", err)
	}
	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  "op",
		"role": RoleAdmin,
	}).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign no exp: %v", err)
	}

	tests := map[string]string{
		"empty":     "",
		"garbage":   "not.a.jwt",
		"expired":   expired,
		"foreign":   foreign,
		"alg none":  unsigned,
		"bad role":  badRole,
		"no expiry": noExp,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := auth.Parse(raw)
			if got := apperrors.CodeOf(err); got != apperrors.CodeOperatorUnauthenticated {
				t.Fatalf("code = %s, want %s (err %v)", got, apperrors.CodeOperatorUnauthenticated, err)
			}
		})
	}
}

func TestAuthorize(t *testing.T) {
	t.Parallel()

	if err := Authorize(Claims{Role: RoleAdmin}, RoleScanner, RoleAdmin); err != nil {
		t.Fatalf("admin authorize: %v", err)
	}
	err := Authorize(Claims{Role: RoleScanner}, RoleAdmin)
	if got := apperrors.CodeOf(err); got != apperrors.CodeOperatorForbidden {
		t.Fatalf("scanner on admin op code = %s", got)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		token string
		ok    bool
	}{
		"Bearer abc":   {"abc", true},
		"bearer  abc ": {"abc", true},
		"Basic abc":    {"", false},
		"Bearer":       {"", false},
		"Bearer    ":   {"", false},
		"":             {"", false},
		"abc":          {"", false},
	}
	for header, want := range tests {
		token, ok := BearerToken(header)
		if token != want.token || ok != want.ok {
			t.Fatalf("BearerToken(%q) = %q, %v; want %q, %v", header, token, ok, want.token, want.ok)
		}
	}
}

func TestUnaryServerInterceptor(t *testing.T) {
	t.Parallel()

	auth := newTestAuthenticator(t, time.Now())
	scanner, err := auth.Issue("op-1", RoleScanner, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	policy := Policy{
		"/svc/Verify":        {RoleScanner, RoleAdmin},
		"/svc/VerifyPayment": {RoleAdmin},
	}
	interceptor := UnaryServerInterceptor(auth, policy)
	handler := func(ctx context.Context, req any) (any, error) {
		claims, _ := ClaimsFromContext(ctx)
		return claims.Subject, nil
	}
	incoming := func(header string) context.Context {
		if header == "" {
			return context.Background()
		}
		return metadata.NewIncomingContext(context.Background(), metadata.Pairs(AuthorizationHeader, header))
	}

	tests := []struct {
		name   string
		method string
		header string
		code   codes.Code
	}{
		{"public method", "/grpc.health.v1.Health/Check", "", codes.OK},
		{"missing token", "/svc/Verify", "", codes.Unauthenticated},
		{"wrong scheme", "/svc/Verify", "Basic " + scanner, codes.Unauthenticated},
		{"scanner verify", "/svc/Verify", "Bearer " + scanner, codes.OK},
		{"scanner payment", "/svc/VerifyPayment", "Bearer " + scanner, codes.PermissionDenied},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, err := interceptor(incoming(tc.header), nil, &grpc.UnaryServerInfo{FullMethod: tc.method}, handler)
			if got := status.Code(err); got != tc.code {
				t.Fatalf("code = %s, want %s (err %v)", got, tc.code, err)
			}
			if tc.code == codes.OK && tc.method == "/svc/Verify" && resp != "op-1" {
				t.Fatalf("handler subject = %v, want op-1", resp)
			}
		})
	}
}

func TestWithBearer(t *testing.T) {
	t.Parallel()

	ctx := WithBearer(context.Background(), "abc")
	md, ok := metadata.FromOutgoingContext(ctx)
	if !ok {
		t.Fatal("expected outgoing metadata")
	}
	if got := md.Get(AuthorizationHeader); len(got) != 1 || got[0] != "Bearer abc" {
		t.Fatalf("authorization = %v", got)
	}
	if WithBearer(context.Background(), "") != context.Background() {
		t.Fatal("empty token should leave context unchanged")
	}
}
