package internal

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// errorBody is the default error payload.
type errorBody struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code,omitempty"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// handleError renders err into a reply body. onError hooks observe it first,
// then the nearest error handler renders it; an error raised by a handler goes
// to the parent instance's handler and finally to the default renderer.
func (d *dispatch) handleError(err error) any {
	err = normalizeError(err)
	d.reply.reset()
	d.reply.status = errorStatus(err, d.reply.status)
	d.logError(err)
	d.runErrorHooks(err)
	if d.checkAbort() {
		return nil
	}

	for inst := d.route.owner.nearestErrorHandler(); inst != nil; {
		d.reply.reset()
		d.reply.status = errorStatus(err, d.reply.status)

		c := d.contextFor(inst)
		h := inst.errorHandler
		t := newTask()
		t.start(func() { t.resolve(nil, h(c, err)) })
		_, herr, ok := t.wait(d.req.raw.Context())
		if !ok {
			d.markAborted()
			return nil
		}

		next := herr
		if next == nil {
			payload, sent := d.reply.committed()
			if !sent {
				return nil
			}
			if next = faultOf(payload); next == nil {
				body, serr := d.serializeErrorReply(payload)
				if serr == nil {
					return body
				}
				next = serr
			}
		}

		err = normalizeError(next)
		if inst.parent == nil {
			break
		}
		inst = inst.parent.nearestErrorHandler()
	}

	d.reply.reset()
	d.reply.status = errorStatus(err, d.reply.status)
	return d.defaultError(err)
}

func (d *dispatch) serializeErrorReply(payload any) (any, error) {
	if raw, done := d.passthrough(payload); done {
		return raw, nil
	}
	return d.encode(payload)
}

// runErrorHooks runs onError hooks. They observe the error only; Send is
// rejected while they run.
func (d *dispatch) runErrorHooks(err error) {
	d.inOnError = true
	defer func() { d.inOnError = false }()
	for _, h := range d.route.chains[PhaseOnError] {
		_, herr, ok := d.callHook(h, err)
		if !ok {
			d.markAborted()
			return
		}
		if herr != nil {
			d.log.Error("onError hook failed", slog.Any("error", herr))
		}
	}
}

// defaultError renders err as JSON. Errors without a declared status get a
// generic 500 message.
func (d *dispatch) defaultError(err error) any {
	status := d.reply.status
	message := err.Error()
	if statusOf(err) == 0 && status >= http.StatusInternalServerError {
		message = http.StatusText(status)
	}
	data, merr := json.Marshal(errorBody{
		StatusCode: status,
		Code:       codeOf(err),
		Error:      http.StatusText(status),
		Message:    message,
	})
	if merr != nil {
		d.reply.Type(contentTypeText)
		return http.StatusText(status)
	}
	d.reply.Type(contentTypeJSON)
	return data
}

func (d *dispatch) logError(err error) {
	attrs := []any{slog.Any("error", err), slog.Int("statusCode", d.reply.status)}
	if pe, ok := err.(*PanicError); ok {
		attrs = append(attrs, slog.String("stack", string(pe.Stack)))
	}
	if d.reply.status >= http.StatusInternalServerError {
		d.log.Error("request errored", attrs...)
		return
	}
	d.log.Info("request errored", attrs...)
}

// errorStatus picks the reply status for err: its declared 4xx/5xx status,
// else the current reply status if it is already an error status, else 500.
func errorStatus(err error, current int) int {
	if code := statusOf(err); code != 0 {
		return code
	}
	if current >= 400 && current <= 599 {
		return current
	}
	return http.StatusInternalServerError
}
