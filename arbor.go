package arbor

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/dmitrymomot/arbor/internal"
	"github.com/dmitrymomot/arbor/pkg/logger"
)

// Type aliases - public API
type (
	// App is the root of the instance tree and the http.Handler serving it.
	App = internal.App

	// Instance is a node of the encapsulation tree.
	Instance = internal.Instance

	// Context is passed to every hook, handler, parser and error handler.
	Context = internal.Context

	// Request wraps the incoming request of one dispatch.
	Request = internal.Request

	// Reply accumulates the response of one dispatch.
	Reply = internal.Reply

	// ResponseWriter records what reached the transport.
	ResponseWriter = internal.ResponseWriter

	// HandlerFunc is the signature for route handlers.
	HandlerFunc = internal.HandlerFunc

	// ErrorHandler renders an error into a reply.
	ErrorHandler = internal.ErrorHandler

	// PluginFunc configures an encapsulated instance.
	PluginFunc = internal.PluginFunc

	// SerializerFunc turns a reply payload into bytes.
	SerializerFunc = internal.SerializerFunc

	// ContentTypeParser turns a request body into a value.
	ContentTypeParser = internal.ContentTypeParser

	// Phase names a lifecycle point where hooks run.
	Phase = internal.Phase

	// Hook signatures.
	Done                = internal.Done
	PayloadDone         = internal.PayloadDone
	HookFunc            = internal.HookFunc
	HookCallback        = internal.HookCallback
	PayloadHookFunc     = internal.PayloadHookFunc
	PayloadHookCallback = internal.PayloadHookCallback
	ErrorHookFunc       = internal.ErrorHookFunc
	ErrorHookCallback   = internal.ErrorHookCallback
	RouteHookFunc       = internal.RouteHookFunc
	RegisterHookFunc    = internal.RegisterHookFunc
	AppHookFunc         = internal.AppHookFunc

	// RouteOptions describes a route.
	RouteOptions = internal.RouteOptions

	// RouteOption configures RouteOptions for the method shorthands.
	RouteOption = internal.RouteOption

	// RouteHook is a route-local hook.
	RouteHook = internal.RouteHook

	// Schema holds the JSON Schema documents of a route.
	Schema = internal.Schema

	// Constraints restrict the requests a route serves.
	Constraints = internal.Constraints

	// RouteInfo describes a registered route.
	RouteInfo = internal.RouteInfo

	// RegisterOption configures a plugin registration.
	RegisterOption = internal.RegisterOption

	// NotFoundOption configures a not-found handler.
	NotFoundOption = internal.NotFoundOption

	// Option configures the application.
	Option = internal.Option

	// RunOption configures the server runtime.
	RunOption = internal.RunOption

	// Config is the file form of the application options.
	Config = internal.Config

	// HTTPError represents an HTTP error with all data needed for rendering.
	HTTPError = internal.HTTPError

	// HTTPErrorOption configures an HTTPError.
	HTTPErrorOption = internal.HTTPErrorOption

	// StatusCoder is implemented by errors declaring their HTTP status.
	StatusCoder = internal.StatusCoder

	// ErrorCoder is implemented by errors carrying a machine readable code.
	ErrorCoder = internal.ErrorCoder

	// NotFoundConflictError is returned for a second not-found handler on a prefix.
	NotFoundConflictError = internal.NotFoundConflictError

	// PanicError wraps a value recovered from a panicking hook or handler.
	PanicError = internal.PanicError

	// ContextExtractor extracts a slog attribute from context.
	ContextExtractor = logger.ContextExtractor
)

// Lifecycle phases.
const (
	PhaseOnRequest        = internal.PhaseOnRequest
	PhasePreParsing       = internal.PhasePreParsing
	PhasePreValidation    = internal.PhasePreValidation
	PhasePreHandler       = internal.PhasePreHandler
	PhasePreSerialization = internal.PhasePreSerialization
	PhaseOnSend           = internal.PhaseOnSend
	PhaseOnResponse       = internal.PhaseOnResponse
	PhaseOnError          = internal.PhaseOnError
	PhaseOnTimeout        = internal.PhaseOnTimeout
	PhaseOnRequestAbort   = internal.PhaseOnRequestAbort
	PhaseOnRoute          = internal.PhaseOnRoute
	PhaseOnRegister       = internal.PhaseOnRegister
	PhaseOnReady          = internal.PhaseOnReady
	PhaseOnClose          = internal.PhaseOnClose
)

// Registration and reply errors.
var (
	ErrInvalidHandler          = internal.ErrInvalidHandler
	ErrInvalidPlugin           = internal.ErrInvalidPlugin
	ErrInvalidRoute            = internal.ErrInvalidRoute
	ErrInvalidVersion          = internal.ErrInvalidVersion
	ErrInvalidSchema           = internal.ErrInvalidSchema
	ErrAlreadyBound            = internal.ErrAlreadyBound
	ErrNotFoundAlreadySet      = internal.ErrNotFoundAlreadySet
	ErrDecorationExists        = internal.ErrDecorationExists
	ErrDuplicateRoute          = internal.ErrDuplicateRoute
	ErrContentTypeParserExists = internal.ErrContentTypeParserExists
	ErrReplyAlreadySent        = internal.ErrReplyAlreadySent
	ErrSendInsideOnError       = internal.ErrSendInsideOnError
	ErrRequestAborted          = internal.ErrRequestAborted
)

// Request faults rendered by the error sub-pipeline.
var (
	ErrUndefined          = internal.ErrUndefined
	ErrEmptyJSONBody      = internal.ErrEmptyJSONBody
	ErrBodyTooLarge       = internal.ErrBodyTooLarge
	ErrInvalidPayloadType = internal.ErrInvalidPayloadType
)

// Constructors

// New creates an application with the given options.
//
// Example:
//
//	app := arbor.New(arbor.WithLogger(log))
//	err := app.Register(users.Plugin, arbor.WithPrefix("/users"))
//	err = app.Listen(":8080")
func New(opts ...Option) *App {
	return internal.New(opts...)
}

// App options

// WithLogger sets the application logger. Nil keeps the no-op default.
func WithLogger(l *slog.Logger) Option {
	return internal.WithLogger(l)
}

// WithBodyLimit sets the default maximum request body size in bytes.
func WithBodyLimit(limit int64) Option {
	return internal.WithBodyLimit(limit)
}

// WithGenReqID replaces the request id generator.
func WithGenReqID(fn func(*http.Request) string) Option {
	return internal.WithGenReqID(fn)
}

// WithRequestIDHeader reuses and echoes the request id in header.
func WithRequestIDHeader(header string) Option {
	return internal.WithRequestIDHeader(header)
}

// WithConnectionTimeout fires onTimeout hooks for requests still being
// dispatched after d.
func WithConnectionTimeout(d time.Duration) Option {
	return internal.WithConnectionTimeout(d)
}

// WithIgnoreTrailingSlash routes "/users/" like "/users".
func WithIgnoreTrailingSlash() Option {
	return internal.WithIgnoreTrailingSlash()
}

// WithTrustProxy takes the client address from proxy headers.
func WithTrustProxy() Option {
	return internal.WithTrustProxy()
}

// WithDisableRequestLogging turns off the per-request log lines.
func WithDisableRequestLogging() Option {
	return internal.WithDisableRequestLogging()
}

// WithErrorHandler sets the root error handler.
func WithErrorHandler(h ErrorHandler) Option {
	return internal.WithErrorHandler(h)
}

// WithNotFoundHandler sets the root not-found handler.
func WithNotFoundHandler(h HandlerFunc, opts ...NotFoundOption) Option {
	return internal.WithNotFoundHandler(h, opts...)
}

// WithReplySerializer sets the root reply serializer.
func WithReplySerializer(fn SerializerFunc) Option {
	return internal.WithReplySerializer(fn)
}

// WithConfig applies every option derived from cfg.
func WithConfig(cfg Config) Option {
	return internal.WithConfig(cfg)
}

// Config

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	return internal.LoadConfig(path)
}

// ParseConfig decodes a YAML config.
func ParseConfig(r io.Reader) (Config, error) {
	return internal.ParseConfig(r)
}

// Register options

// WithPrefix mounts the plugin's routes under prefix.
func WithPrefix(prefix string) RegisterOption {
	return internal.WithPrefix(prefix)
}

// WithName names the plugin in errors.
func WithName(name string) RegisterOption {
	return internal.WithName(name)
}

// WithoutEncapsulation runs the plugin against the registering instance.
func WithoutEncapsulation() RegisterOption {
	return internal.WithoutEncapsulation()
}

// Not-found options

// NotFoundPreValidation adds a preValidation hook to the not-found handler.
func NotFoundPreValidation(fn HookFunc) NotFoundOption {
	return internal.NotFoundPreValidation(fn)
}

// NotFoundPreHandler adds a preHandler hook to the not-found handler.
func NotFoundPreHandler(fn HookFunc) NotFoundOption {
	return internal.NotFoundPreHandler(fn)
}

// Route options

// WithHook adds a route-local hook.
func WithHook(phase Phase, fn any) RouteOption {
	return internal.WithHook(phase, fn)
}

// WithPreHandler adds a route-local preHandler hook.
func WithPreHandler(fn HookFunc) RouteOption {
	return internal.WithPreHandler(fn)
}

// WithVersion constrains the route to an Accept-Version range.
func WithVersion(version string) RouteOption {
	return internal.WithVersion(version)
}

// WithHost constrains the route to a host pattern.
func WithHost(host string) RouteOption {
	return internal.WithHost(host)
}

// WithBodySchema validates parsed bodies against a JSON Schema document.
func WithBodySchema(schema string) RouteOption {
	return internal.WithBodySchema(schema)
}

// WithValidator runs fn after schema validation.
func WithValidator(fn func(c Context) error) RouteOption {
	return internal.WithValidator(fn)
}

// WithSerializer overrides the payload serializer for the route.
func WithSerializer(fn SerializerFunc) RouteOption {
	return internal.WithSerializer(fn)
}

// WithRouteBodyLimit overrides the body limit for the route.
func WithRouteBodyLimit(limit int64) RouteOption {
	return internal.WithRouteBodyLimit(limit)
}

// WithRouteConfig sets a route config value.
func WithRouteConfig(key string, value any) RouteOption {
	return internal.WithRouteConfig(key, value)
}

// Run options

// ShutdownTimeout sets the timeout for graceful shutdown.
func ShutdownTimeout(d time.Duration) RunOption {
	return internal.ShutdownTimeout(d)
}

// ShutdownHook registers a cleanup function to run during shutdown.
func ShutdownHook(fn func(context.Context) error) RunOption {
	return internal.ShutdownHook(fn)
}

// WithContext sets a custom base context for signal handling.
func WithContext(ctx context.Context) RunOption {
	return internal.WithContext(ctx)
}

// WithListener serves on ln instead of listening on the address.
func WithListener(ln net.Listener) RunOption {
	return internal.WithListener(ln)
}

// Errors

// NewHTTPError creates a new HTTPError with the given status code and message.
func NewHTTPError(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.NewHTTPError(code, message, opts...)
}

// WithDetail sets the extended description of an HTTPError.
func WithDetail(detail string) HTTPErrorOption {
	return internal.WithDetail(detail)
}

// WithErrorCode sets the machine readable code of an HTTPError.
func WithErrorCode(code string) HTTPErrorOption {
	return internal.WithErrorCode(code)
}

// WithError sets the underlying error of an HTTPError.
func WithError(err error) HTTPErrorOption {
	return internal.WithError(err)
}

func ErrBadRequest(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrBadRequest(message, opts...)
}

func ErrUnauthorized(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrUnauthorized(message, opts...)
}

func ErrForbidden(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrForbidden(message, opts...)
}

func ErrNotFound(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrNotFound(message, opts...)
}

func ErrConflict(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrConflict(message, opts...)
}

func ErrUnprocessable(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrUnprocessable(message, opts...)
}

func ErrInternal(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrInternal(message, opts...)
}

func ErrServiceUnavailable(message string, opts ...HTTPErrorOption) *HTTPError {
	return internal.ErrServiceUnavailable(message, opts...)
}

// IsHTTPError reports whether err is or wraps an HTTPError.
func IsHTTPError(err error) bool {
	return internal.IsHTTPError(err)
}

// AsHTTPError extracts the HTTPError from an error chain if present.
func AsHTTPError(err error) *HTTPError {
	return internal.AsHTTPError(err)
}

// Helpers

// RequestID returns the request id carried by ctx.
func RequestID(ctx context.Context) string {
	return internal.RequestID(ctx)
}

// LogRequestID returns a log extractor adding the request id to records.
func LogRequestID() ContextExtractor {
	return internal.LogRequestID()
}

// Value returns the request-scoped value stored under key as T.
func Value[T any](c Context, key any) T {
	return internal.Value[T](c, key)
}

// Decoration returns the instance decoration visible from c as T.
//
// Example:
//
//	db, ok := arbor.Decoration[*sql.DB](c, "db")
func Decoration[T any](c Context, name string) (T, bool) {
	return internal.Decoration[T](c, name)
}

// Param returns the URL parameter name converted to T.
func Param[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string) T {
	return internal.Param[T](c, name)
}

// Query returns the query parameter name converted to T.
func Query[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string) T {
	return internal.Query[T](c, name)
}

// QueryDefault returns the query parameter name converted to T, or
// defaultValue when it is empty or unparsable.
func QueryDefault[T ~string | ~int | ~int64 | ~float64 | ~bool](c Context, name string, defaultValue T) T {
	return internal.QueryDefault(c, name, defaultValue)
}
