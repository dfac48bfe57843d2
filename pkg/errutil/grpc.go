package errutil

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCCode converts the CoreStatus to its closest gRPC status code equivalent.
func (s CoreStatus) GRPCCode() codes.Code {
	switch s {
	case StatusUnauthorized:
		return codes.Unauthenticated
	case StatusForbidden:
		return codes.PermissionDenied
	case StatusNotFound:
		return codes.NotFound
	case StatusTimeout, StatusGatewayTimeout:
		return codes.DeadlineExceeded
	case StatusUnprocessableEntity:
		return codes.FailedPrecondition
	case StatusUnsupportedMediaType, StatusBadRequest, StatusValidationFailed:
		return codes.InvalidArgument
	case StatusConflict:
		return codes.AlreadyExists
	case StatusTooManyRequests:
		return codes.ResourceExhausted
	case StatusClientClosedRequest:
		return codes.Canceled
	case StatusNotImplemented:
		return codes.Unimplemented
	case StatusBadGateway, StatusServiceUnavailable:
		return codes.Unavailable
	case StatusInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// StatusFromGRPC maps a code returned by an upstream service.
func StatusFromGRPC(c codes.Code) CoreStatus {
	switch c {
	case codes.OK:
		return ""
	case codes.Unauthenticated:
		return StatusUnauthorized
	case codes.PermissionDenied:
		return StatusForbidden
	case codes.NotFound:
		return StatusNotFound
	case codes.DeadlineExceeded:
		return StatusGatewayTimeout
	case codes.FailedPrecondition:
		return StatusUnprocessableEntity
	case codes.InvalidArgument, codes.OutOfRange:
		return StatusBadRequest
	case codes.AlreadyExists, codes.Aborted:
		return StatusConflict
	case codes.ResourceExhausted:
		return StatusTooManyRequests
	case codes.Canceled:
		return StatusClientClosedRequest
	case codes.Unimplemented:
		return StatusNotImplemented
	case codes.Unavailable:
		return StatusServiceUnavailable
	case codes.Unknown:
		return StatusUnknown
	default:
		return StatusInternal
	}
}

// GRPCStatus lets grpc/status read the code of a BaseError.
func (e BaseError) GRPCStatus() *status.Status {
	return status.New(e.Code.GRPCCode(), e.messageWithErr())
}

// FromGRPCError wraps an error returned by a gRPC client call. The upstream
// message is kept as the cause and the code is preserved.
func FromGRPCError(msg string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return newWithErr(StatusClientClosedRequest, msg, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newWithErr(StatusGatewayTimeout, msg, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return newWithErr(StatusBadGateway, msg, err)
	}
	return New(StatusFromGRPC(st.Code()), msg, WithErr(errors.New(st.Message())))
}
