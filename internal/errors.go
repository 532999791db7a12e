package internal

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"runtime"
)

// Registration faults. They are returned synchronously by the call that
// attempted the registration.
var (
	ErrInvalidHandler          = errors.New("arbor: invalid handler")
	ErrInvalidPlugin           = errors.New("arbor: invalid plugin")
	ErrInvalidRoute            = errors.New("arbor: invalid route options")
	ErrInvalidVersion          = errors.New("arbor: invalid route version")
	ErrInvalidSchema           = errors.New("arbor: invalid schema")
	ErrAlreadyBound            = errors.New("arbor: instance is already listening")
	ErrNotFoundAlreadySet      = errors.New("arbor: not found handler already set")
	ErrDecorationExists        = errors.New("arbor: decoration already present")
	ErrDuplicateRoute          = errors.New("arbor: route already declared")
	ErrContentTypeParserExists = errors.New("arbor: content type parser already present")
)

// Reply usage faults.
var (
	ErrReplyAlreadySent  = errors.New("arbor: reply was already sent")
	ErrSendInsideOnError = errors.New("arbor: reply.Send cannot be called inside an onError hook")
	ErrRequestAborted    = errors.New("arbor: request was aborted by the client")
)

// Request faults. Each one carries its own status code and is rendered by the
// error sub-pipeline like any other error.
var (
	ErrUndefined = &HTTPError{
		Code:      http.StatusInternalServerError,
		Message:   "Undefined error has occurred",
		ErrorCode: "ERR_UNDEFINED",
	}
	ErrEmptyJSONBody = &HTTPError{
		Code:      http.StatusBadRequest,
		Message:   "Body cannot be empty when content-type is set to 'application/json'",
		ErrorCode: "ERR_CTP_EMPTY_JSON_BODY",
	}
	ErrBodyTooLarge = &HTTPError{
		Code:      http.StatusRequestEntityTooLarge,
		Message:   "Request body is too large",
		ErrorCode: "ERR_CTP_BODY_TOO_LARGE",
	}
	ErrInvalidPayloadType = &HTTPError{
		Code:      http.StatusInternalServerError,
		Message:   "Attempted to send payload of invalid type",
		ErrorCode: "ERR_REP_INVALID_PAYLOAD_TYPE",
	}
)

// StatusCoder is implemented by errors that declare the HTTP status they map to.
type StatusCoder interface {
	StatusCode() int
}

// ErrorCoder is implemented by errors that carry a machine readable code.
type ErrorCoder interface {
	ErrorCode() string
}

// HTTPError represents an HTTP error with all data needed for rendering.
type HTTPError struct {
	// Err is the underlying error (for logging, not exposed to users).
	Err error

	// Message is the user-facing error message.
	Message string

	// Detail is an optional extended description.
	Detail string

	// ErrorCode is an application-specific error code, rendered as "code".
	ErrorCode string

	// Code is the HTTP status code (e.g., 404, 500).
	Code int
}

func (e *HTTPError) Error() string {
	return e.Message
}

func (e *HTTPError) Unwrap() error {
	return e.Err
}

func (e *HTTPError) StatusCode() int {
	return e.Code
}

func (e *HTTPError) StatusText() string {
	return http.StatusText(e.Code)
}

// HTTPErrorOption configures an HTTPError.
type HTTPErrorOption func(*HTTPError)

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	e := &HTTPError{Code: code, Message: message}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func WithDetail(detail string) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Detail = detail
	}
}

func WithErrorCode(code string) HTTPErrorOption {
	return func(e *HTTPError) {
		e.ErrorCode = code
	}
}

func WithError(err error) HTTPErrorOption {
	return func(e *HTTPError) {
		e.Err = err
	}
}

// Convenience constructors for common HTTP errors.

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message, opts...)
}

func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusUnauthorized, message, opts...)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusForbidden, message, opts...)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusNotFound, message, opts...)
}

func ErrConflict(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusConflict, message, opts...)
}

func ErrUnprocessable(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusUnprocessableEntity, message, opts...)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusInternalServerError, message, opts...)
}

func ErrServiceUnavailable(message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(http.StatusServiceUnavailable, message, opts...)
}

// ErrBadURL reports a path that cannot be decoded into a valid URL component.
func ErrBadURL(path string) *HTTPError {
	return NewHTTPError(http.StatusBadRequest,
		fmt.Sprintf("'%s' is not a valid url component", path),
		WithErrorCode("ERR_BAD_URL"))
}

// ErrUnsupportedMediaType reports a request body no registered parser accepts.
func ErrUnsupportedMediaType(contentType string) *HTTPError {
	return NewHTTPError(http.StatusUnsupportedMediaType,
		"Unsupported Media Type: "+contentType,
		WithErrorCode("ERR_CTP_INVALID_MEDIA_TYPE"))
}

// ErrValidation wraps a validation failure into a 400 fault.
func ErrValidation(message string, err error) *HTTPError {
	return NewHTTPError(http.StatusBadRequest, message,
		WithErrorCode("ERR_VALIDATION"), WithError(err))
}

// IsHTTPError reports whether err is or wraps an HTTPError.
func IsHTTPError(err error) bool {
	var httpErr *HTTPError
	return errors.As(err, &httpErr)
}

// AsHTTPError extracts the HTTPError from an error chain if present.
// Returns nil if the error is not an HTTPError.
func AsHTTPError(err error) *HTTPError {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr
	}
	return nil
}

// NotFoundConflictError is returned when a second not-found handler is set for
// a prefix that already has one.
type NotFoundConflictError struct {
	Prefix string
}

func (e *NotFoundConflictError) Error() string {
	return fmt.Sprintf("Not found handler already set for Fastify instance with prefix: '%s'", e.Prefix)
}

func (e *NotFoundConflictError) Is(target error) bool {
	return target == ErrNotFoundAlreadySet
}

// PanicError wraps a value recovered from a panicking hook or handler.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Unwrap exposes the panic value when it is an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// recoveredError turns a recovered panic value into an error. A panic with an
// error value keeps that error so its status code survives; a nil panic maps
// to ErrUndefined.
func recoveredError(v any, stack []byte) error {
	var nilPanic *runtime.PanicNilError
	if v == nil {
		return ErrUndefined
	}
	if err, ok := v.(error); ok {
		if errors.As(err, &nilPanic) {
			return ErrUndefined
		}
		return normalizeError(err)
	}
	return &PanicError{Value: v, Stack: stack}
}

// normalizeError maps an error interface holding a nil pointer, the
// equivalent of rejecting with no value, to ErrUndefined.
func normalizeError(err error) error {
	if err == nil {
		return nil
	}
	v := reflect.ValueOf(err)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		if v.IsNil() {
			return ErrUndefined
		}
	}
	return err
}

// statusOf returns the declared 4xx/5xx status of err, or 0.
func statusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		if code := sc.StatusCode(); code >= 400 && code <= 599 {
			return code
		}
	}
	return 0
}

// codeOf returns the machine readable error code of err, if any.
func codeOf(err error) string {
	if httpErr := AsHTTPError(err); httpErr != nil && httpErr.ErrorCode != "" {
		return httpErr.ErrorCode
	}
	var ec ErrorCoder
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}
	return ""
}
