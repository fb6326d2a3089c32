// Package errors provides structured error handling for the live post service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeInvalidArgument Code = "INVALID_ARGUMENT"

	// Post resolution errors
	CodeUnknownPostVariant Code = "UNKNOWN_POST_VARIANT"
	CodeMalformedPost      Code = "MALFORMED_POST"
	CodePostNotFound       Code = "POST_NOT_FOUND"

	// Push channel errors
	CodeDecode Code = "DECODE_ERROR"

	// Collaborator errors
	CodeUpstreamUnavailable Code = "UPSTREAM_UNAVAILABLE"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeInvalidArgument:
		return http.StatusBadRequest
	case CodePostNotFound:
		return http.StatusNotFound
	// The post exists upstream but cannot be rendered.
	case CodeUnknownPostVariant, CodeMalformedPost, CodeDecode:
		return http.StatusUnprocessableEntity
	case CodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the domain code carried by err, or CodeUnknown.
func CodeOf(err error) Code {
	var domainErr *Error
	if As(err, &domainErr) {
		return domainErr.Code
	}
	return CodeUnknown
}
