package attendance

import (
	"context"

	platformgrpc "github.com/louisbranch/attendmark/internal/platform/grpc"
	"github.com/louisbranch/attendmark/internal/services/attendance/operatorauth"
	"google.golang.org/grpc"
)

// Client calls the attendance service, attaching the operator bearer token
// to every call.
type Client struct {
	conn  grpc.ClientConnInterface
	token string
}

// NewClient creates a client over conn.
func NewClient(conn grpc.ClientConnInterface, operatorToken string) *Client {
	return &Client{conn: conn, token: operatorToken}
}

// Verify calls AttendanceService.Verify.
func (c *Client) Verify(ctx context.Context, in *VerifyRequest, opts ...grpc.CallOption) (*VerifyResponse, error) {
	out := new(VerifyResponse)
	if err := c.invoke(ctx, VerifyMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// VerifyPayment calls AttendanceService.VerifyPayment.
func (c *Client) VerifyPayment(ctx context.Context, in *VerifyPaymentRequest, opts ...grpc.CallOption) (*VerifyPaymentResponse, error) {
	out := new(VerifyPaymentResponse)
	if err := c.invoke(ctx, VerifyPaymentMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

// ListIncidents calls AttendanceService.ListIncidents.
func (c *Client) ListIncidents(ctx context.Context, in *ListIncidentsRequest, opts ...grpc.CallOption) (*ListIncidentsResponse, error) {
	out := new(ListIncidentsResponse)
	if err := c.invoke(ctx, ListIncidentsMethod, in, out, opts); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) invoke(ctx context.Context, method string, in, out any, opts []grpc.CallOption) error {
	callOpts := append([]grpc.CallOption{platformgrpc.JSONCallOption()}, opts...)
	return c.conn.Invoke(operatorauth.WithBearer(ctx, c.token), method, in, out, callOpts...)
}
