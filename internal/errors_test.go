package internal_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/arbor/internal"
)

func TestIsHTTPError(t *testing.T) {
	t.Parallel()

	t.Run("direct HTTPError", func(t *testing.T) {
		t.Parallel()
		err := internal.NewHTTPError(http.StatusNotFound, "not found")
		require.True(t, internal.IsHTTPError(err))
	})

	t.Run("wrapped HTTPError", func(t *testing.T) {
		t.Parallel()
		httpErr := internal.NewHTTPError(http.StatusBadRequest, "bad request")
		err := fmt.Errorf("handler failed: %w", httpErr)
		require.True(t, internal.IsHTTPError(err))
	})

	t.Run("double-wrapped HTTPError", func(t *testing.T) {
		t.Parallel()
		httpErr := internal.NewHTTPError(http.StatusConflict, "conflict")
		err := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", httpErr))
		require.True(t, internal.IsHTTPError(err))
	})

	t.Run("unrelated error", func(t *testing.T) {
		t.Parallel()
		err := errors.New("something went wrong")
		require.False(t, internal.IsHTTPError(err))
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		require.False(t, internal.IsHTTPError(nil))
	})
}

func TestAsHTTPError(t *testing.T) {
	t.Parallel()

	t.Run("direct HTTPError", func(t *testing.T) {
		t.Parallel()
		httpErr := internal.NewHTTPError(http.StatusNotFound, "not found")
		got := internal.AsHTTPError(httpErr)
		require.NotNil(t, got)
		require.Equal(t, http.StatusNotFound, got.Code)
		require.Equal(t, "not found", got.Message)
	})

	t.Run("wrapped HTTPError preserves fields", func(t *testing.T) {
		t.Parallel()
		httpErr := internal.NewHTTPError(http.StatusForbidden, "forbidden")
		httpErr.Detail = "Access Denied"
		httpErr.ErrorCode = "AUTH_001"
		err := fmt.Errorf("middleware: %w", httpErr)

		got := internal.AsHTTPError(err)
		require.NotNil(t, got)
		require.Equal(t, http.StatusForbidden, got.Code)
		require.Equal(t, "forbidden", got.Message)
		require.Equal(t, "Access Denied", got.Detail)
		require.Equal(t, "AUTH_001", got.ErrorCode)
	})

	t.Run("unrelated error returns nil", func(t *testing.T) {
		t.Parallel()
		err := errors.New("plain error")
		require.Nil(t, internal.AsHTTPError(err))
	})

	t.Run("nil returns nil", func(t *testing.T) {
		t.Parallel()
		require.Nil(t, internal.AsHTTPError(nil))
	})
}

func TestHTTPError(t *testing.T) {
	t.Parallel()

	cause := errors.New("db down")
	err := internal.ErrServiceUnavailable("try later", internal.WithError(cause), internal.WithErrorCode("DB"))

	require.Equal(t, "try later", err.Error())
	require.Equal(t, http.StatusServiceUnavailable, err.StatusCode())
	require.Equal(t, "Service Unavailable", err.StatusText())
	require.ErrorIs(t, err, cause)
	require.Equal(t, "DB", err.ErrorCode)
}

func TestRequestFaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    *internal.HTTPError
		status int
		code   string
	}{
		{"undefined", internal.ErrUndefined, http.StatusInternalServerError, "ERR_UNDEFINED"},
		{"empty json body", internal.ErrEmptyJSONBody, http.StatusBadRequest, "ERR_CTP_EMPTY_JSON_BODY"},
		{"body too large", internal.ErrBodyTooLarge, http.StatusRequestEntityTooLarge, "ERR_CTP_BODY_TOO_LARGE"},
		{"invalid payload", internal.ErrInvalidPayloadType, http.StatusInternalServerError, "ERR_REP_INVALID_PAYLOAD_TYPE"},
		{"bad url", internal.ErrBadURL("/%FF"), http.StatusBadRequest, "ERR_BAD_URL"},
		{"media type", internal.ErrUnsupportedMediaType("application/xml"), http.StatusUnsupportedMediaType, "ERR_CTP_INVALID_MEDIA_TYPE"},
		{"validation", internal.ErrValidation("body is invalid", nil), http.StatusBadRequest, "ERR_VALIDATION"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tt.status, tt.err.StatusCode())
			require.Equal(t, tt.code, tt.err.ErrorCode)
		})
	}

	require.Equal(t, "'/%FF' is not a valid url component", internal.ErrBadURL("/%FF").Error())
}

func TestNotFoundConflictError(t *testing.T) {
	t.Parallel()

	err := &internal.NotFoundConflictError{Prefix: "/api"}

	require.Equal(t, "Not found handler already set for Fastify instance with prefix: '/api'", err.Error())
	require.ErrorIs(t, err, internal.ErrNotFoundAlreadySet)
	require.ErrorIs(t, fmt.Errorf("register: %w", err), internal.ErrNotFoundAlreadySet)
}

func TestPanicError(t *testing.T) {
	t.Parallel()

	t.Run("string value", func(t *testing.T) {
		t.Parallel()
		err := &internal.PanicError{Value: "boom"}
		require.Equal(t, "panic: boom", err.Error())
		require.NoError(t, err.Unwrap())
	})

	t.Run("error value", func(t *testing.T) {
		t.Parallel()
		cause := internal.ErrConflict("taken")
		err := &internal.PanicError{Value: cause}
		require.ErrorIs(t, err, cause)
		require.True(t, internal.IsHTTPError(err))
	})
}
