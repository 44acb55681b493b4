// Package attendance exposes attendance.v1 gRPC operations over the JSON codec.
package attendance

import (
	"context"
	"log"

	apperrors "github.com/louisbranch/attendmark/internal/platform/errors"
	"github.com/louisbranch/attendmark/internal/services/attendance/marking"
	"github.com/louisbranch/attendmark/internal/services/attendance/operatorauth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Policy is the operator role policy for every attendance method.
func Policy() operatorauth.Policy {
	return operatorauth.Policy{
		VerifyMethod:        {operatorauth.RoleScanner, operatorauth.RoleAdmin},
		VerifyPaymentMethod: {operatorauth.RoleAdmin},
		ListIncidentsMethod: {operatorauth.RoleAdmin},
	}
}

// Service adapts the marking service to the gRPC API.
type Service struct {
	marking *marking.Service
}

// NewService creates the gRPC attendance service.
func NewService(svc *marking.Service) *Service {
	return &Service{marking: svc}
}

// Verify runs one verification attempt.
func (s *Service) Verify(ctx context.Context, in *VerifyRequest) (*VerifyResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "verify request is required")
	}
	if s == nil || s.marking == nil {
		return nil, status.Error(codes.Internal, "marking service is not configured")
	}
	result, err := s.marking.Verify(ctx, marking.VerifyRequest{
		Payload:   in.Payload,
		EventID:   in.EventID,
		StationID: in.StationID,
	})
	if err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			log.Printf("verify event=%s station=%s: %v", in.EventID, in.StationID, err)
			return nil, status.Error(codes.Unavailable, "verification could not be completed")
		}
		return nil, apperrors.ToGRPC(err)
	}
	return &VerifyResponse{Outcome: result}, nil
}

// VerifyPayment marks a registration's payment as verified.
func (s *Service) VerifyPayment(ctx context.Context, in *VerifyPaymentRequest) (*VerifyPaymentResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "verify payment request is required")
	}
	if s == nil || s.marking == nil {
		return nil, status.Error(codes.Internal, "marking service is not configured")
	}
	claims, _ := operatorauth.ClaimsFromContext(ctx)
	registration, err := s.marking.VerifyPayment(ctx, marking.PaymentRequest{
		RegistrationID: in.RegistrationID,
		OperatorID:     claims.Subject,
	})
	if err != nil {
		return nil, apperrors.ToGRPC(err)
	}
	return &VerifyPaymentResponse{Registration: RegistrationFromStorage(registration)}, nil
}

// ListIncidents returns recorded incidents for an event.
func (s *Service) ListIncidents(ctx context.Context, in *ListIncidentsRequest) (*ListIncidentsResponse, error) {
	if in == nil {
		return nil, status.Error(codes.InvalidArgument, "list incidents request is required")
	}
	if s == nil || s.marking == nil {
		return nil, status.Error(codes.Internal, "marking service is not configured")
	}
	if in.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	incidents, err := s.marking.ListIncidents(ctx, in.EventID, in.Limit)
	if err != nil {
		return nil, apperrors.ToGRPC(err)
	}
	return &ListIncidentsResponse{Incidents: IncidentsFromStorage(incidents)}, nil
}

var _ AttendanceServer = (*Service)(nil)
