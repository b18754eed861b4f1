package apierror

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAPIErrorFormatting(t *testing.T) {
	err := NewAPIError(ErrConfiguration, "missing account code", nil)
	assert.Equal(t, "CONFIGURATION_ERROR: missing account code", err.Error())
}

func TestNewHTTPErrorCarriesStatus(t *testing.T) {
	err := NewHTTPError(ErrProtocol, 503, "upstream unhappy")
	assert.Equal(t, 503, err.Status)
	assert.Equal(t, ErrProtocol, err.Code)
}

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrNotFound, CodeOf(NewHTTPError(ErrNotFound, 404, "gone")))
	assert.Equal(t, ErrorCode(""), CodeOf(errors.New("plain error")))
}

func TestMapErrorToHTTPStatus(t *testing.T) {
	cases := map[ErrorCode]int{
		ErrNotFound:      http.StatusNotFound,
		ErrConflict:      http.StatusConflict,
		ErrConfiguration: http.StatusBadRequest,
		ErrAuthorization: http.StatusUnauthorized,
		ErrTransport:     http.StatusBadGateway,
		ErrProtocol:      http.StatusBadGateway,
	}
	for code, want := range cases {
		assert.Equal(t, want, MapErrorToHTTPStatus(NewAPIError(code, "boom", nil)))
	}
	assert.Equal(t, http.StatusInternalServerError, MapErrorToHTTPStatus(errors.New("plain")))
}
