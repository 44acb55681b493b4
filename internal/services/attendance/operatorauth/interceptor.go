package operatorauth

import (
	"context"

	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// AuthorizationHeader is the gRPC metadata key carrying the bearer token.
const AuthorizationHeader = "authorization"

// Policy maps full gRPC method names to the roles allowed to call them.
// Methods absent from the policy (health checks) are not authenticated.
type Policy map[string][]string

// UnaryServerInterceptor enforces policy on unary calls and stores the
// validated claims in the handler context.
func UnaryServerInterceptor(auth *Authenticator, policy Policy) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		roles, guarded := policy[info.FullMethod]
		if !guarded {
			return handler(ctx, req)
		}
		claims, err := claimsFromMetadata(ctx, auth)
		if err != nil {
			return nil, apperrors.ToGRPC(err)
		}
		if err := Authorize(claims, roles...); err != nil {
			return nil, apperrors.ToGRPC(err)
		}
		return handler(WithClaims(ctx, claims), req)
	}
}

// WithBearer attaches token to outgoing gRPC metadata.
func WithBearer(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, AuthorizationHeader, "Bearer "+token)
}

func claimsFromMetadata(ctx context.Context, auth *Authenticator) (Claims, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is required")
	}
	values := md.Get(AuthorizationHeader)
	if len(values) == 0 {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "operator token is required")
	}
	token, ok := BearerToken(values[0])
	if !ok {
		return Claims{}, apperrors.New(apperrors.CodeOperatorUnauthenticated, "authorization must be a bearer token")
	}
	return auth.Parse(token)
}
