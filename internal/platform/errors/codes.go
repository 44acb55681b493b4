// Package errors provides structured error handling for attendmark services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeScanRequestInvalid    Code = "SCAN_REQUEST_INVALID"
	CodePaymentRequestInvalid Code = "PAYMENT_REQUEST_INVALID"

	// Registration errors
	CodeRegistrationNotFound Code = "REGISTRATION_NOT_FOUND"
	CodePaymentNotRequired   Code = "PAYMENT_NOT_REQUIRED"

	// Operator errors
	CodeOperatorUnauthenticated Code = "OPERATOR_UNAUTHENTICATED"
	CodeOperatorForbidden       Code = "OPERATOR_FORBIDDEN"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeScanRequestInvalid,
		CodePaymentRequestInvalid:
		return codes.InvalidArgument

	case CodePaymentNotRequired:
		return codes.FailedPrecondition

	case CodeRegistrationNotFound:
		return codes.NotFound

	case CodeOperatorUnauthenticated:
		return codes.Unauthenticated

	case CodeOperatorForbidden:
		return codes.PermissionDenied

	default:
		return codes.Internal
	}
}

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c.GRPCCode() {
	case codes.InvalidArgument:
		return 400
	case codes.Unauthenticated:
		return 401
	case codes.PermissionDenied:
		return 403
	case codes.NotFound:
		return 404
	case codes.FailedPrecondition:
		return 409
	default:
		return 500
	}
}
