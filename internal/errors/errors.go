// Package errors provides unified error handling with structured error codes.
// Codes map onto gRPC status codes for the health surface and onto HTTP
// status codes for the REST API.
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
)

// Code identifies a class of failure.
type Code int32

const (
	Unknown Code = iota
	Internal
	InvalidArgument
	NotFound
	Unavailable
	Timeout
	Cancelled
	NotReady
	Busy
	AudioDecodeFailed
	AudioEmptyInput
	AudioTranscriptionFailed
	AudioCaptureFailed
	LLMNotConfigured
	LLMAPIError
	LLMInvalidResponse
	StoreFailed
	ConfigInvalid
)

var codeNames = map[Code]string{
	Unknown:                  "UNKNOWN",
	Internal:                 "INTERNAL",
	InvalidArgument:          "INVALID_ARGUMENT",
	NotFound:                 "NOT_FOUND",
	Unavailable:              "UNAVAILABLE",
	Timeout:                  "TIMEOUT",
	Cancelled:                "CANCELLED",
	NotReady:                 "NOT_READY",
	Busy:                     "BUSY",
	AudioDecodeFailed:        "AUDIO_DECODE_FAILED",
	AudioEmptyInput:          "AUDIO_EMPTY_INPUT",
	AudioTranscriptionFailed: "AUDIO_TRANSCRIPTION_FAILED",
	AudioCaptureFailed:       "AUDIO_CAPTURE_FAILED",
	LLMNotConfigured:         "LLM_NOT_CONFIGURED",
	LLMAPIError:              "LLM_API_ERROR",
	LLMInvalidResponse:       "LLM_INVALID_RESPONSE",
	StoreFailed:              "STORE_FAILED",
	ConfigInvalid:            "CONFIG_INVALID",
}

func (c Code) String() string {
	if s, ok := codeNames[c]; ok {
		return s
	}
	return codeNames[Unknown]
}

// grpcCodeMap maps Code to gRPC status codes.
var grpcCodeMap = map[Code]codes.Code{
	Unknown:                  codes.Unknown,
	Internal:                 codes.Internal,
	InvalidArgument:          codes.InvalidArgument,
	NotFound:                 codes.NotFound,
	Unavailable:              codes.Unavailable,
	Timeout:                  codes.DeadlineExceeded,
	Cancelled:                codes.Canceled,
	NotReady:                 codes.FailedPrecondition,
	Busy:                     codes.Aborted,
	AudioDecodeFailed:        codes.InvalidArgument,
	AudioEmptyInput:          codes.InvalidArgument,
	AudioTranscriptionFailed: codes.Internal,
	AudioCaptureFailed:       codes.Unavailable,
	LLMNotConfigured:         codes.FailedPrecondition,
	LLMAPIError:              codes.Internal,
	LLMInvalidResponse:       codes.Internal,
	StoreFailed:              codes.Internal,
	ConfigInvalid:            codes.InvalidArgument,
}

var httpCodeMap = map[Code]int{
	InvalidArgument:    http.StatusBadRequest,
	NotFound:           http.StatusNotFound,
	Unavailable:        http.StatusServiceUnavailable,
	Timeout:            http.StatusGatewayTimeout,
	NotReady:           http.StatusServiceUnavailable,
	Busy:               http.StatusConflict,
	AudioDecodeFailed:  http.StatusUnprocessableEntity,
	AudioEmptyInput:    http.StatusBadRequest,
	AudioCaptureFailed: http.StatusServiceUnavailable,
	LLMNotConfigured:   http.StatusServiceUnavailable,
	ConfigInvalid:      http.StatusBadRequest,
}

// AppError is the base error type with structured error code and metadata.
type AppError struct {
	Code     Code
	Message  string
	Metadata map[string]string
	Cause    error
}

// Error implements the error interface.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if len(e.Metadata) > 0 {
		s += fmt.Sprintf(" %v", e.Metadata)
	}
	if e.Cause != nil {
		s += fmt.Sprintf(" caused by: %v", e.Cause)
	}
	return s
}

// Unwrap returns the underlying cause for errors.Is/As.
func (e *AppError) Unwrap() error { return e.Cause }

// GRPCCode returns the corresponding gRPC status code.
func (e *AppError) GRPCCode() codes.Code {
	if c, ok := grpcCodeMap[e.Code]; ok {
		return c
	}
	return codes.Unknown
}

// HTTPStatus returns the HTTP status the REST API answers with.
func (e *AppError) HTTPStatus() int {
	if c, ok := httpCodeMap[e.Code]; ok {
		return c
	}
	return http.StatusInternalServerError
}

// detail packs code, message and metadata into a protobuf Struct.
func (e *AppError) detail() (*structpb.Struct, error) {
	fields := map[string]any{
		"code":    e.Code.String(),
		"message": e.Message,
	}
	if len(e.Metadata) > 0 {
		md := make(map[string]any, len(e.Metadata))
		for k, v := range e.Metadata {
			md[k] = v
		}
		fields["metadata"] = md
	}
	return structpb.NewStruct(fields)
}

// GRPCStatus returns a gRPC status with the error detail attached.
func (e *AppError) GRPCStatus() *status.Status {
	st := status.New(e.GRPCCode(), e.Error())
	d, err := e.detail()
	if err != nil {
		return st
	}
	if withDetail, err := st.WithDetails(d); err == nil {
		return withDetail
	}
	return st
}

// New creates a new AppError with the given code and message.
func New(code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg}
}

// Newf creates a new AppError with formatted message.
func Newf(code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap wraps an existing error with an AppError.
func Wrap(err error, code Code, msg string) *AppError {
	return &AppError{Code: code, Message: msg, Cause: err}
}

// Wrapf wraps an existing error with formatted message.
func Wrapf(err error, code Code, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Cause: err}
}

// WithMetadata adds metadata to an AppError.
func (e *AppError) WithMetadata(key, value string) *AppError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]string)
	}
	e.Metadata[key] = value
	return e
}

// FromGRPCError extracts an AppError from a gRPC error if present.
func FromGRPCError(err error) *AppError {
	st, ok := status.FromError(err)
	if !ok {
		return &AppError{Code: Unknown, Message: err.Error(), Cause: err}
	}

	for _, d := range st.Details() {
		s, ok := d.(*structpb.Struct)
		if a, isAny := d.(*anypb.Any); isAny {
			s = &structpb.Struct{}
			ok = a.UnmarshalTo(s) == nil
		}
		if !ok {
			continue
		}
		fields := s.AsMap()
		appErr := &AppError{Code: codeFromName(fields["code"]), Message: st.Message()}
		if msg, ok := fields["message"].(string); ok {
			appErr.Message = msg
		}
		if md, ok := fields["metadata"].(map[string]any); ok {
			for k, v := range md {
				if sv, ok := v.(string); ok {
					appErr.WithMetadata(k, sv)
				}
			}
		}
		return appErr
	}

	return &AppError{Code: grpcToCode(st.Code()), Message: st.Message()}
}

func codeFromName(v any) Code {
	name, _ := v.(string)
	for c, n := range codeNames {
		if n == name {
			return c
		}
	}
	return Unknown
}

// grpcToCode maps gRPC codes back to our error codes (best effort).
func grpcToCode(c codes.Code) Code {
	switch c {
	case codes.InvalidArgument:
		return InvalidArgument
	case codes.NotFound:
		return NotFound
	case codes.Unavailable:
		return Unavailable
	case codes.DeadlineExceeded:
		return Timeout
	case codes.Canceled:
		return Cancelled
	case codes.Internal:
		return Internal
	case codes.FailedPrecondition:
		return NotReady
	case codes.Aborted:
		return Busy
	default:
		return Unknown
	}
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// IsCode checks if an error chain carries a specific error code.
func IsCode(err error, code Code) bool {
	if appErr, ok := As(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsRetryable returns true if the error is potentially retryable.
func IsRetryable(err error) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	switch appErr.Code {
	case Unavailable, Timeout, LLMAPIError:
		return true
	default:
		return false
	}
}
