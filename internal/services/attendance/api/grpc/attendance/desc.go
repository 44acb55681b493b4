package attendance

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "attendance.v1.AttendanceService"

// Full method names.
const (
	VerifyMethod        = "/" + ServiceName + "/Verify"
	VerifyPaymentMethod = "/" + ServiceName + "/VerifyPayment"
	ListIncidentsMethod = "/" + ServiceName + "/ListIncidents"
)

// AttendanceServer is the server API for the attendance service.
type AttendanceServer interface {
	Verify(context.Context, *VerifyRequest) (*VerifyResponse, error)
	VerifyPayment(context.Context, *VerifyPaymentRequest) (*VerifyPaymentResponse, error)
	ListIncidents(context.Context, *ListIncidentsRequest) (*ListIncidentsResponse, error)
}

// ServiceDesc describes the attendance service for grpc.Server registration.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*AttendanceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Verify",
			Handler:    unaryHandler(VerifyMethod, AttendanceServer.Verify),
		},
		{
			MethodName: "VerifyPayment",
			Handler:    unaryHandler(VerifyPaymentMethod, AttendanceServer.VerifyPayment),
		},
		{
			MethodName: "ListIncidents",
			Handler:    unaryHandler(ListIncidentsMethod, AttendanceServer.ListIncidents),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "attendance/v1/attendance",
}

// RegisterAttendanceServer registers srv on s.
func RegisterAttendanceServer(s grpc.ServiceRegistrar, srv AttendanceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func unaryHandler[Req, Resp any](fullMethod string, call func(AttendanceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(AttendanceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: fullMethod,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(AttendanceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}
