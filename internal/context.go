package internal

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dmitrymomot/arbor/pkg/hostrouter"
)

// Context is passed to every hook, handler, parser and error handler.
// It implements context.Context by delegating to the request context, which
// is cancelled when the client goes away.
type Context interface {
	context.Context

	// Request returns the framework request wrapper.
	Request() *Request

	// Reply returns the reply under construction.
	Reply() *Reply

	// Instance returns the instance that registered the running hook or
	// route. Decoration lookups through it resolve to that instance.
	Instance() *Instance

	// Logger returns the request-scoped logger (carries reqId).
	Logger() *slog.Logger

	// Param returns the URL parameter value by name.
	// Returns empty string if the parameter doesn't exist.
	Param(name string) string

	// Query returns the query parameter value by name.
	// Returns empty string if the parameter doesn't exist.
	Query(name string) string

	// Header returns the request header value by name.
	Header(name string) string

	// SetHeader sets a reply header.
	SetHeader(name, value string)

	// Domain returns the normalized domain from the request Host header.
	Domain() string

	// Get returns a request-scoped value, falling back to request decorations.
	Get(key any) any

	// Set stores a request-scoped value.
	Set(key, value any)

	// RouteConfig returns the Config map the route was registered with.
	RouteConfig() map[string]any

	// Send commits payload as the reply. See Reply.Send.
	Send(payload any) error

	// JSON sends v as JSON with the given status code.
	JSON(code int, v any) error

	// String sends a plain text reply with the given status code.
	String(code int, s string) error

	// NoContent sends an empty reply with the given status code.
	NoContent(code int) error

	// Redirect sends a redirect to url with the given status code.
	Redirect(code int, url string) error

	// Error creates and returns an HTTPError without sending anything.
	// Return it from the handler to route it into the error sub-pipeline.
	Error(code int, message string, opts ...HTTPErrorOption) *HTTPError

	// CallNotFound hands the request to the not-found handler responsible
	// for its path once the running hook or handler returns.
	CallNotFound()
}

// requestContext binds a dispatch to the instance owning the running code.
type requestContext struct {
	context.Context
	d     *dispatch
	owner *Instance
}

func (c *requestContext) Request() *Request    { return c.d.req }
func (c *requestContext) Reply() *Reply        { return c.d.reply }
func (c *requestContext) Instance() *Instance  { return c.owner }
func (c *requestContext) Logger() *slog.Logger { return c.d.log }

func (c *requestContext) Param(name string) string  { return c.d.req.Param(name) }
func (c *requestContext) Query(name string) string  { return c.d.req.Query(name) }
func (c *requestContext) Header(name string) string { return c.d.req.Header(name) }

func (c *requestContext) SetHeader(name, value string) {
	c.d.reply.Header(name, value)
}

func (c *requestContext) Domain() string {
	return hostrouter.GetDomain(c.d.req.raw)
}

func (c *requestContext) Get(key any) any    { return c.d.req.Get(key) }
func (c *requestContext) Set(key, value any) { c.d.req.Set(key, value) }

func (c *requestContext) RouteConfig() map[string]any {
	return c.d.route.config
}

func (c *requestContext) Send(payload any) error {
	return c.d.reply.Send(payload)
}

func (c *requestContext) JSON(code int, v any) error {
	return c.d.reply.Code(code).Type(contentTypeJSON).Send(jsonPayload{v})
}

func (c *requestContext) String(code int, s string) error {
	return c.d.reply.Code(code).Type(contentTypeText).Send(s)
}

func (c *requestContext) NoContent(code int) error {
	return c.d.reply.Code(code).Send(nil)
}

func (c *requestContext) Redirect(code int, url string) error {
	return c.d.reply.Redirect(code, url)
}

func (c *requestContext) Error(code int, message string, opts ...HTTPErrorOption) *HTTPError {
	return NewHTTPError(code, message, opts...)
}

func (c *requestContext) CallNotFound() {
	c.d.reply.CallNotFound()
}

// jsonPayload forces JSON serialization of strings and byte slices sent
// through Context.JSON.
type jsonPayload struct {
	v any
}

var _ Context = (*requestContext)(nil)

// requestIDKey carries the request id in the request context.
type requestIDKey struct{}

// RequestID returns the request id stored in ctx, or empty string.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func withRequestID(r *http.Request, id string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
}
