package errors

import (
	stderrors "errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// Domain tags ErrorInfo details produced by attendmark services.
const Domain = "attendmark"

// defaultLocale is the locale of Error.Message.
const defaultLocale = "en-US"

// Error carries a machine-readable code alongside an operator-facing message.
type Error struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	return ok && other.Code == e.Code
}

// New returns an error with code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithMetadata returns an error whose metadata is copied into ErrorInfo on the wire.
func WithMetadata(code Code, message string, metadata map[string]string) *Error {
	return &Error{Code: code, Message: message, Metadata: metadata}
}

// Wrap returns an error with code and message that unwraps to cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}

// ToGRPC converts err into a gRPC status error. Domain errors carry an
// ErrorInfo with their code as reason and a LocalizedMessage. Status errors
// pass through unchanged; anything else becomes Internal.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *Error
	if stderrors.As(err, &domainErr) {
		return domainErr.grpcStatus().Err()
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(CodeUnknown.GRPCCode(), err.Error())
}

func (e *Error) grpcStatus() *status.Status {
	base := status.New(e.Code.GRPCCode(), e.Message)
	detailed, err := base.WithDetails(
		&errdetails.ErrorInfo{Reason: string(e.Code), Domain: Domain, Metadata: e.Metadata},
		&errdetails.LocalizedMessage{Locale: defaultLocale, Message: e.Message},
	)
	if err != nil {
		return base
	}
	return detailed
}

// FromGRPC recovers the code a service attached to a status error. Errors
// without an attendmark ErrorInfo report CodeUnknown.
func FromGRPC(err error) Code {
	st, ok := status.FromError(err)
	if !ok || st == nil {
		return CodeUnknown
	}
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok && info.GetDomain() == Domain {
			return Code(info.GetReason())
		}
	}
	return CodeUnknown
}
