package internal

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// dispatch drives one request through the lifecycle of its route.
//
// Hooks and handlers run on the request goroutine, one at a time. Only the
// abort watcher and the timeout timer run concurrently; they share the
// writing/aborted/timedOut flags and the current route under mu. hookMu is
// held while a hook runs, so the timeout chain never overlaps another hook.
type dispatch struct {
	app   *App
	route *route
	w     *ResponseWriter
	req   *Request
	reply *Reply
	log   *slog.Logger
	start time.Time

	handled      bool
	inNotFound   bool
	wantNotFound bool
	inOnError    bool

	hookMu sync.Mutex

	mu       sync.Mutex
	writing  bool
	aborted  bool
	timedOut bool
}

func (a *App) newDispatch(w http.ResponseWriter, r *http.Request, rt *route) *dispatch {
	id := a.genReqID(r)
	r = withRequestID(r, id)
	d := &dispatch{
		app:   a,
		route: rt,
		w:     NewResponseWriter(w),
		log:   a.logger.With(slog.String("reqId", id)),
		start: time.Now(),
	}
	d.req = newRequest(d, id, r)
	d.reply = newReply(d)
	if a.requestIDHeader != "" {
		d.reply.Header(a.requestIDHeader, id)
	}
	return d
}

// serve runs entry, then the send pipeline, or the onRequestAbort chain when
// the client went away first.
func (d *dispatch) serve(entry func()) {
	if !d.app.disableRequestLogging {
		d.log.Info("incoming request",
			slog.String("method", d.req.raw.Method),
			slog.String("url", d.req.URL()),
			slog.String("hostname", d.req.raw.Host),
			slog.String("remoteAddress", d.req.raw.RemoteAddr),
		)
	}

	stop := d.watchAbort()
	defer stop()
	if d.app.connectionTimeout > 0 {
		timer := time.AfterFunc(d.app.connectionTimeout, d.timeout)
		defer timer.Stop()
	}

	entry()
	d.finish()
	if d.isAborted() {
		d.runAbortHooks()
	}
}

// lifecycle runs the full pre-handler phases and the handler.
func (d *dispatch) lifecycle() {
	d.runSteps(d.onRequest, d.parse, d.validate, d.preHandler, d.handle)
}

// runSteps executes steps until one fails, sends, requests the not-found
// handler or the request is aborted.
func (d *dispatch) runSteps(steps ...func() error) {
	for _, step := range steps {
		err := step()
		if d.checkAbort() {
			return
		}
		if err != nil {
			d.fail(err)
			return
		}
		if d.wantNotFound {
			d.notFound()
			return
		}
		if d.reply.Sent() {
			return
		}
	}
	// handler returned without sending
	if !d.reply.Sent() {
		d.reply.commit(nil)
	}
}

// fail commits err as the reply; finish routes it to the error sub-pipeline.
func (d *dispatch) fail(err error) {
	d.reply.commit(normalizeError(err))
}

func (d *dispatch) onRequest() error {
	_, err := d.runHooks(PhaseOnRequest, nil)
	return err
}

func (d *dispatch) parse() error {
	raw := d.req.raw
	var body io.Reader = http.NoBody
	if raw.Body != nil {
		body = raw.Body
	}
	out, err := d.runHooks(PhasePreParsing, body)
	if err != nil || d.interrupted() {
		return err
	}
	stream, ok := out.(io.Reader)
	if !ok {
		return fmt.Errorf("preParsing hook returned %T: %w", out, ErrInvalidPayloadType)
	}
	if !hasBody(raw) {
		return nil
	}
	return d.parseBody(stream)
}

func (d *dispatch) parseBody(stream io.Reader) error {
	limit := d.route.bodyLimit
	if d.req.raw.ContentLength > limit {
		return ErrBodyTooLarge
	}
	contentType := d.req.raw.Header.Get("Content-Type")
	parser := d.route.parsers.lookup(normalizeMediaType(contentType))
	if parser == nil {
		return ErrUnsupportedMediaType(contentType)
	}

	t := newTask()
	c := d.contextFor(parser.owner)
	t.start(func() { t.resolve(parser.parse(c, &limitedBody{r: stream, remaining: limit})) })
	v, err, ok := t.wait(d.req.raw.Context())
	if !ok {
		d.markAborted()
		return nil
	}
	if err != nil {
		if errors.Is(err, ErrBodyTooLarge) || statusOf(err) != 0 {
			return err
		}
		return ErrBadRequest(err.Error(), WithError(err))
	}
	d.req.body = v
	return nil
}

func (d *dispatch) validate() error {
	if _, err := d.runHooks(PhasePreValidation, nil); err != nil || d.interrupted() {
		return err
	}
	if d.route.schema != nil {
		if err := d.route.schema.Validate(d.req.body); err != nil {
			return ErrValidation(validationMessage("body", err), err)
		}
	}
	if d.route.validator != nil {
		t := newTask()
		c := d.contextFor(d.route.owner)
		t.start(func() { t.resolve(nil, d.route.validator(c)) })
		_, err, ok := t.wait(d.req.raw.Context())
		if !ok {
			d.markAborted()
			return nil
		}
		if err != nil && statusOf(err) == 0 {
			return ErrValidation(err.Error(), err)
		}
		return err
	}
	return nil
}

func (d *dispatch) preHandler() error {
	_, err := d.runHooks(PhasePreHandler, nil)
	return err
}

func (d *dispatch) handle() error {
	d.handled = true
	c := d.contextFor(d.route.owner)
	t := newTask()
	t.start(func() { t.resolve(nil, d.route.handler(c)) })
	_, err, ok := t.wait(d.req.raw.Context())
	if !ok {
		d.markAborted()
		return nil
	}
	return err
}

// runHooks runs the route chain for phase. Non-nil hook payloads replace the
// current one. Pre-handler phases stop at the first hook that sends, requests
// the not-found handler or observes an abort.
func (d *dispatch) runHooks(phase Phase, payload any) (any, error) {
	for _, h := range d.route.chains[phase] {
		out, err, ok := d.callHook(h, payload)
		if !ok {
			d.markAborted()
			return payload, nil
		}
		if err != nil {
			return payload, err
		}
		if out != nil {
			payload = out
		}
		if phase.interrupting() && d.interrupted() {
			return payload, nil
		}
	}
	return payload, nil
}

// callHook runs one request hook and waits for it. ok is false when the
// request context ended first.
func (d *dispatch) callHook(h *hookEntry, in any) (out any, err error, ok bool) {
	d.hookMu.Lock()
	defer d.hookMu.Unlock()
	return h.call(d.contextFor(h.owner), in).wait(d.req.raw.Context())
}

func (d *dispatch) interrupted() bool {
	return d.wantNotFound || d.reply.Sent() || d.checkAbort()
}

// currentRoute returns the route serving the request. CallNotFound swaps it,
// so readers off the request goroutine go through here.
func (d *dispatch) currentRoute() *route {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.route
}

func (d *dispatch) contextFor(owner *Instance) Context {
	return &requestContext{Context: d.req.raw.Context(), d: d, owner: owner}
}

// finish runs the send pipeline: error handling or serialization, onSend,
// the write and onResponse.
func (d *dispatch) finish() {
	if d.checkAbort() {
		return
	}
	if d.reply.hijacked {
		if d.markWriting() {
			d.runOnResponse()
		}
		return
	}

	payload, _ := d.reply.committed()
	var body any
	if err := faultOf(payload); err != nil {
		body = d.handleError(err)
	} else {
		var err error
		if body, err = d.serialize(payload); err != nil {
			body = d.handleError(err)
		}
	}
	if d.checkAbort() {
		return
	}

	out, err := d.runHooks(PhaseOnSend, body)
	if d.checkAbort() {
		return
	}
	if err == nil {
		err = checkPayload(out)
	}
	if err != nil {
		// onSend does not run again for the error reply
		body = d.handleError(err)
	} else {
		body = out
	}

	if !d.markWriting() {
		return
	}
	d.write(body)
	d.runOnResponse()
}

func faultOf(payload any) error {
	if err, ok := payload.(error); ok {
		return normalizeError(err)
	}
	return nil
}

func checkPayload(payload any) error {
	switch payload.(type) {
	case nil, string, []byte, io.Reader:
		return nil
	}
	return fmt.Errorf("onSend hook returned %T: %w", payload, ErrInvalidPayloadType)
}

// serialize turns a handler or hook payload into string, []byte, io.Reader or
// nil. preSerialization only runs for handler payloads that need encoding.
// Payloads sent with Context.JSON are always encoded.
func (d *dispatch) serialize(payload any) (any, error) {
	forced, isJSON := payload.(jsonPayload)
	if isJSON {
		payload = forced.v
	} else if raw, done := d.passthrough(payload); done {
		return raw, nil
	}
	if d.handled {
		out, err := d.runHooks(PhasePreSerialization, payload)
		if err != nil {
			return nil, err
		}
		if !isJSON {
			if raw, done := d.passthrough(out); done {
				return raw, nil
			}
		}
		payload = out
	}
	return d.encode(payload)
}

// passthrough reports whether payload needs no encoding, setting the default
// content type for raw payloads.
func (d *dispatch) passthrough(payload any) (any, bool) {
	switch p := payload.(type) {
	case nil:
		return nil, true
	case string:
		d.defaultType(contentTypeText)
		return p, true
	case []byte:
		d.defaultType(contentTypeBinary)
		return p, true
	case io.Reader:
		d.defaultType(contentTypeBinary)
		return p, true
	}
	return nil, false
}

func (d *dispatch) encode(payload any) (any, error) {
	if p, ok := payload.(jsonPayload); ok {
		payload = p.v
	}
	serializer := d.reply.serializer
	if serializer == nil {
		serializer = d.route.serializer
	}
	if serializer == nil {
		serializer = json.Marshal
	}
	data, err := serializer(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize reply: %w", err)
	}
	d.defaultType(contentTypeJSON)
	return data, nil
}

func (d *dispatch) defaultType(contentType string) {
	if !d.reply.HasHeader("Content-Type") {
		d.reply.Type(contentType)
	}
}

// write sends headers and body to the transport. Content-Length always
// reflects the final payload.
func (d *dispatch) write(body any) {
	h := d.w.Header()
	for name, values := range d.reply.header {
		h[name] = values
	}
	status := d.reply.status
	head := d.req.raw.Method == http.MethodHead

	var data []byte
	switch p := body.(type) {
	case nil:
		h.Del("Content-Type")
		if status != http.StatusNoContent && status != http.StatusNotModified {
			h.Set("Content-Length", "0")
		}
	case string:
		data = []byte(p)
	case []byte:
		data = p
	case io.Reader:
		h.Del("Content-Length")
		d.w.WriteHeader(status)
		if !head {
			if _, err := io.Copy(d.w, p); err != nil && d.w.Err() == nil {
				d.log.Warn("response stream failed", slog.Any("error", err))
			}
		}
		if closer, ok := p.(io.Closer); ok {
			_ = closer.Close()
		}
		d.logTransportFault()
		return
	}

	if body != nil {
		h.Set("Content-Length", strconv.Itoa(len(data)))
	}
	d.w.WriteHeader(status)
	if !head && len(data) > 0 {
		_, _ = d.w.Write(data)
	}
	d.logTransportFault()
}

// logTransportFault reports a peer that went away mid-write. The client is
// unreachable, so the fault is only logged.
func (d *dispatch) logTransportFault() {
	if err := d.w.Err(); err != nil {
		d.log.Warn("response write failed", slog.Any("error", err), slog.Int64("bytesWritten", d.w.Size()))
	}
}

func (d *dispatch) runOnResponse() {
	if _, err := d.runHooks(PhaseOnResponse, nil); err != nil {
		d.log.Error("onResponse hook failed", slog.Any("error", err))
	}
	if !d.app.disableRequestLogging {
		d.log.Info("request completed",
			slog.Int("statusCode", d.w.Status()),
			slog.Int64("bytesWritten", d.w.Size()),
			slog.Float64("responseTime", float64(time.Since(d.start).Microseconds())/1000),
		)
	}
}

// markWriting claims the transport. It fails once the request is aborted,
// including a cancellation the watcher has not reported yet; after it
// succeeds the request can no longer be aborted.
func (d *dispatch) markWriting() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.req.raw.Context().Err() != nil {
		d.markAbortedLocked()
	}
	if d.aborted {
		return false
	}
	d.writing = true
	return true
}

// hasBody reports whether the request carries a body to parse. A declared
// content type counts even with an empty body, so empty JSON is rejected.
func hasBody(r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return false
	}
	if r.ContentLength > 0 || (r.ContentLength < 0 && len(r.TransferEncoding) > 0) {
		return true
	}
	return r.Header.Get("Content-Type") != ""
}
