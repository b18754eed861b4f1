package apierror

import (
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"
)

type ErrorCode string

const (
	// ErrConfiguration: missing operator settings. Fail fast, no network call.
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR"
	// ErrTransport: DNS, timeout, connection refused.
	ErrTransport ErrorCode = "TRANSPORT_ERROR"
	// ErrProtocol: non-2xx status, malformed JSON, missing REST route.
	ErrProtocol ErrorCode = "PROTOCOL_ERROR"
	// ErrAuthorization: OAuth state mismatch, missing tenant. The operator
	// must restart the connect flow.
	ErrAuthorization ErrorCode = "AUTHORIZATION_ERROR"
	ErrNotFound      ErrorCode = "NOT_FOUND"
	ErrConflict      ErrorCode = "CONFLICT"
)

// APIError is the structured failure type surfaced by the pipeline. Status
// carries the upstream HTTP status when the error came off the wire.
type APIError struct {
	Code    ErrorCode   `json:"code"`
	Message string      `json:"message"`
	Status  int         `json:"status,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

func (e APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAPIError(code ErrorCode, message string, details interface{}) APIError {
	if details != nil {
		logrus.Error(details)
	}
	return APIError{
		Code:    code,
		Message: message,
		Details: details,
	}
}

// NewHTTPError builds an error carrying the upstream status code.
func NewHTTPError(code ErrorCode, status int, message string) APIError {
	return APIError{
		Code:    code,
		Message: message,
		Status:  status,
	}
}

// CodeOf returns the error's code, or empty when err is not an APIError.
func CodeOf(err error) ErrorCode {
	if apiErr, ok := err.(APIError); ok {
		return apiErr.Code
	}
	return ""
}

func MapErrorToHTTPStatus(err error) int {
	if apiErr, ok := err.(APIError); ok {
		switch apiErr.Code {
		case ErrNotFound:
			return http.StatusNotFound
		case ErrConflict:
			return http.StatusConflict
		case ErrConfiguration:
			return http.StatusBadRequest
		case ErrAuthorization:
			return http.StatusUnauthorized
		case ErrTransport, ErrProtocol:
			return http.StatusBadGateway
		default:
			return http.StatusInternalServerError
		}
	}
	return http.StatusInternalServerError
}
