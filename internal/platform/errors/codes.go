// Package errors provides structured error handling for the data-access core
// and its transport adapters.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Data-access core errors
	CodeFetchFailed            Code = "FETCH_FAILED"
	CodeSubscriptionOpenFailed Code = "SUBSCRIPTION_OPEN_FAILED"
	CodeCallbackFailed         Code = "CALLBACK_FAILED"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnavailable     Code = "UNAVAILABLE"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeNotFound:
		return codes.NotFound
	case CodeUnavailable, CodeSubscriptionOpenFailed:
		return codes.Unavailable
	default:
		return codes.Internal
	}
}

// codeFromGRPC maps a gRPC status code to the closest domain code.
func codeFromGRPC(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument, codes.OutOfRange:
		return CodeInvalidArgument
	case codes.NotFound:
		return CodeNotFound
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return CodeUnavailable
	default:
		return CodeUnknown
	}
}
