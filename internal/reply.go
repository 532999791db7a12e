package internal

import (
	"net/http"
	"sync"
	"time"
)

const (
	contentTypeJSON   = "application/json; charset=utf-8"
	contentTypeText   = "text/plain; charset=utf-8"
	contentTypeBinary = "application/octet-stream"
)

// Reply accumulates the response of one dispatch. Nothing reaches the
// transport until the send pipeline (serialization, onSend) has run.
type Reply struct {
	d          *dispatch
	header     http.Header
	payload    any
	serializer SerializerFunc
	values     map[string]any
	status     int
	sent       bool
	hijacked   bool
	mu         sync.Mutex
}

func newReply(d *dispatch) *Reply {
	return &Reply{
		d:      d,
		header: make(http.Header),
		status: http.StatusOK,
	}
}

// Code sets the status code.
func (r *Reply) Code(status int) *Reply {
	r.status = status
	return r
}

// StatusCode returns the current status code.
func (r *Reply) StatusCode() int { return r.status }

// Header sets a reply header.
func (r *Reply) Header(name, value string) *Reply {
	r.header.Set(name, value)
	return r
}

// Headers sets several reply headers.
func (r *Reply) Headers(headers map[string]string) *Reply {
	for name, value := range headers {
		r.header.Set(name, value)
	}
	return r
}

// GetHeader returns a reply header value.
func (r *Reply) GetHeader(name string) string { return r.header.Get(name) }

// HasHeader reports whether the reply header is set.
func (r *Reply) HasHeader(name string) bool {
	_, ok := r.header[http.CanonicalHeaderKey(name)]
	return ok
}

// RemoveHeader deletes a reply header.
func (r *Reply) RemoveHeader(name string) *Reply {
	r.header.Del(name)
	return r
}

// Type sets the Content-Type header.
func (r *Reply) Type(contentType string) *Reply {
	r.header.Set("Content-Type", contentType)
	return r
}

// Serializer overrides the payload serializer for this reply.
func (r *Reply) Serializer(fn SerializerFunc) *Reply {
	r.serializer = fn
	return r
}

// Send commits payload as the reply. Sending from a hook short-circuits the
// remaining pre-handler phases. Sending an error routes it into the error
// sub-pipeline. Send must be called before the hook or handler returns.
func (r *Reply) Send(payload any) error {
	if r.d.inOnError {
		r.d.log.Error("reply.Send called inside an onError hook", "error", ErrSendInsideOnError)
		return ErrSendInsideOnError
	}
	if r.d.checkAbort() {
		return ErrRequestAborted
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent {
		r.d.log.Warn("Reply was already sent, did you forget to \"return\"?", "error", ErrReplyAlreadySent)
		return ErrReplyAlreadySent
	}
	r.sent = true
	r.payload = payload
	return nil
}

// Sent reports whether a payload has been committed.
func (r *Reply) Sent() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sent
}

// Redirect sends a redirect to url.
func (r *Reply) Redirect(status int, url string) error {
	r.header.Set("Location", url)
	return r.Code(status).Send(nil)
}

// CallNotFound hands the request to the not-found handler responsible for
// its path once the running hook or handler returns.
func (r *Reply) CallNotFound() {
	r.d.wantNotFound = true
}

// Hijack takes the response over: serialization, onSend and the write are
// skipped, onResponse still runs. Use Raw to write the response.
func (r *Reply) Hijack() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hijacked = true
	r.sent = true
}

// Raw returns the transport writer. Writing to it bypasses the send pipeline.
func (r *Reply) Raw() http.ResponseWriter { return r.d.w }

// ElapsedTime returns the time since the request was received.
func (r *Reply) ElapsedTime() time.Duration { return time.Since(r.d.start) }

// Get returns a reply-scoped value, falling back to reply decorations.
func (r *Reply) Get(name string) any {
	if v, ok := r.values[name]; ok {
		return v
	}
	v, _ := r.d.route.owner.lookup(name, func(i *Instance) map[string]any { return i.replyDecorations })
	return v
}

// Set stores a reply-scoped value.
func (r *Reply) Set(name string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	r.values[name] = value
}

// reset uncommits the reply so an error handler can send a new payload.
func (r *Reply) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = false
	r.payload = nil
	r.serializer = nil
	r.header.Del("Content-Type")
	r.header.Del("Content-Length")
}

// commit sets the payload directly, bypassing the usage checks of Send.
func (r *Reply) commit(payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = true
	r.payload = payload
}

func (r *Reply) committed() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.payload, r.sent
}
