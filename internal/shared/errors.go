package shared

import (
	"context"
	"errors"
	"net/http"
)

var (
	// ErrValidation indicates malformed input. Nothing is applied.
	ErrValidation = errors.New("validation failed")
	// ErrPermissionDenied indicates the actor lacks the capability for an action.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrInvalidTransition indicates the document is not in a state that permits the action.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrInsufficientStock indicates a decrement would breach the non-negative invariant.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrDuplicateDocument indicates a sequence or unique-key collision.
	ErrDuplicateDocument = errors.New("duplicate document")
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrBusy indicates a storage timeout or lock contention; the caller may retry.
	ErrBusy = errors.New("resource busy")
	// ErrUnauthorized indicates the caller could not be identified.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMisconfigured indicates a service was wired without a required
	// dependency or setting. Retrying cannot help.
	ErrMisconfigured = errors.New("service misconfigured")
)

// Code is the stable, machine-readable name of an error class.
type Code string

const (
	CodeValidation        Code = "VALIDATION_ERROR"
	CodePermissionDenied  Code = "PERMISSION_DENIED"
	CodeInvalidTransition Code = "INVALID_TRANSITION"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeDuplicateDocument Code = "DUPLICATE_DOCUMENT"
	CodeNotFound          Code = "NOT_FOUND"
	CodeBusy              Code = "BUSY"
	CodeUnauthorized      Code = "UNAUTHORIZED"
	CodeMisconfigured     Code = "MISCONFIGURED"
	CodeInternal          Code = "INTERNAL_ERROR"
)

// Metadata describes how an error class is surfaced to callers.
type Metadata struct {
	HTTPStatus int
	Retryable  bool
	Title      string
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {HTTPStatus: http.StatusBadRequest, Title: "Validation Failed"},
	CodePermissionDenied:  {HTTPStatus: http.StatusForbidden, Title: "Permission Denied"},
	CodeInvalidTransition: {HTTPStatus: http.StatusConflict, Title: "Invalid Transition"},
	CodeInsufficientStock: {HTTPStatus: http.StatusUnprocessableEntity, Title: "Insufficient Stock"},
	CodeDuplicateDocument: {HTTPStatus: http.StatusConflict, Title: "Duplicate Document"},
	CodeNotFound:          {HTTPStatus: http.StatusNotFound, Title: "Not Found"},
	CodeBusy:              {HTTPStatus: http.StatusServiceUnavailable, Retryable: true, Title: "Busy"},
	CodeUnauthorized:      {HTTPStatus: http.StatusUnauthorized, Title: "Unauthorized"},
	CodeMisconfigured:     {HTTPStatus: http.StatusInternalServerError, Title: "Service Misconfigured"},
	CodeInternal:          {HTTPStatus: http.StatusInternalServerError, Retryable: true, Title: "Internal Error"},
}

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrValidation, CodeValidation},
	{ErrPermissionDenied, CodePermissionDenied},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrInsufficientStock, CodeInsufficientStock},
	{ErrDuplicateDocument, CodeDuplicateDocument},
	{ErrNotFound, CodeNotFound},
	{ErrBusy, CodeBusy},
	{ErrUnauthorized, CodeUnauthorized},
	{ErrMisconfigured, CodeMisconfigured},
}

// CodeOf classifies err into one of the known codes. Unknown errors are internal.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	for _, s := range sentinelCodes {
		if errors.Is(err, s.err) {
			return s.code
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CodeBusy
	}
	return CodeInternal
}

// MetadataFor returns the surface metadata of code.
func MetadataFor(code Code) Metadata {
	if meta, ok := metadataByCode[code]; ok {
		return meta
	}
	return metadataByCode[CodeInternal]
}

// IsRetryable reports whether the caller may retry the failed operation as-is.
func IsRetryable(err error) bool {
	return MetadataFor(CodeOf(err)).Retryable
}
