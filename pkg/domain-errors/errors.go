// Package domainerrors defines the coded errors that cross the service
// boundary. Services translate infrastructure sentinels into these codes so
// the transport layer can render a stable error kind without leaking internal
// detail.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies an error category exposed to callers.
type Code string

const (
	CodeBadRequest              Code = "bad_request"
	CodeNotFound                Code = "not_found"
	CodeAccessDenied            Code = "access_denied"
	CodeConflict                Code = "conflict"
	CodeContentStoreUnavailable Code = "content_store_unavailable"
	CodeRegistrationFailed      Code = "registration_failed"
	CodeOperationFailed         Code = "operation_failed"
	CodeUnavailable             Code = "unavailable"
	CodeInternal                Code = "internal_error"
)

// GatewayError carries a stable code plus a human-readable description.
type GatewayError struct {
	Code        Code
	Description string
}

func (e GatewayError) Error() string {
	return string(e.Code) + ": " + e.Description
}

// New builds a GatewayError with the given code and description.
func New(code Code, description string) GatewayError {
	return GatewayError{Code: code, Description: description}
}

// Is reports whether err is a GatewayError with the given code.
func Is(err error, code Code) bool {
	var gw GatewayError
	if errors.As(err, &gw) {
		return gw.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for
// unrecognized errors so unexpected failures never map to a success-ish status.
func CodeOf(err error) Code {
	var gw GatewayError
	if errors.As(err, &gw) {
		return gw.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps an error code to its HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeBadRequest:
		return http.StatusBadRequest
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeConflict:
		return http.StatusConflict
	case CodeContentStoreUnavailable, CodeUnavailable:
		return http.StatusServiceUnavailable
	case CodeRegistrationFailed, CodeOperationFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
