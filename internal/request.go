package internal

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
)

// Request wraps the incoming *http.Request for the lifetime of one dispatch.
type Request struct {
	d       *dispatch
	raw     *http.Request
	id      string
	body    any
	values  map[any]any
	abortCh chan struct{}
	mu      sync.RWMutex
}

func newRequest(d *dispatch, id string, raw *http.Request) *Request {
	return &Request{
		d:       d,
		raw:     raw,
		id:      id,
		abortCh: make(chan struct{}),
	}
}

// ID returns the request id.
func (r *Request) ID() string { return r.id }

// Raw returns the underlying *http.Request.
func (r *Request) Raw() *http.Request { return r.raw }

// Method returns the HTTP method.
func (r *Request) Method() string { return r.raw.Method }

// URL returns the request URI as received (path and query).
func (r *Request) URL() string { return r.raw.URL.RequestURI() }

// Path returns the decoded request path.
func (r *Request) Path() string { return r.raw.URL.Path }

// RouteURL returns the URL pattern of the route serving the request. For
// the not-found route it is the prefix the handler is responsible for.
func (r *Request) RouteURL() string { return r.d.currentRoute().url }

// Is404 reports whether the request is served by a not-found handler.
func (r *Request) Is404() bool { return r.d.currentRoute().notFound }

// Body returns the parsed body. It is nil until the parsing phase completes.
func (r *Request) Body() any { return r.body }

// SetBody replaces the parsed body, e.g. from a preValidation hook.
func (r *Request) SetBody(v any) { r.body = v }

// Param returns the URL parameter value by name.
func (r *Request) Param(name string) string {
	return chi.URLParam(r.raw, name)
}

// Params returns all URL parameters of the matched route.
func (r *Request) Params() map[string]string {
	rctx := chi.RouteContext(r.raw.Context())
	if rctx == nil {
		return map[string]string{}
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, key := range rctx.URLParams.Keys {
		params[key] = rctx.URLParams.Values[i]
	}
	return params
}

// Query returns the query parameter value by name.
func (r *Request) Query(name string) string {
	return r.raw.URL.Query().Get(name)
}

// Header returns the request header value by name.
func (r *Request) Header(name string) string {
	return r.raw.Header.Get(name)
}

// IP returns the client address. With WithTrustProxy it honours
// X-Forwarded-For and X-Real-IP.
func (r *Request) IP() string { return r.raw.RemoteAddr }

// Aborted reports whether the client went away before the reply was written.
func (r *Request) Aborted() bool { return r.d.checkAbort() }

// AbortSignal is closed when the request is aborted.
func (r *Request) AbortSignal() <-chan struct{} { return r.abortCh }

// Get returns a request-scoped value. String keys fall back to request
// decorations visible from the route's instance.
func (r *Request) Get(key any) any {
	r.mu.RLock()
	v, ok := r.values[key]
	r.mu.RUnlock()
	if ok {
		return v
	}
	if name, isString := key.(string); isString {
		if v, found := r.d.route.owner.lookup(name, func(i *Instance) map[string]any { return i.requestDecorations }); found {
			return v
		}
	}
	return nil
}

// Set stores a request-scoped value.
func (r *Request) Set(key, value any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}
