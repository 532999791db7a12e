package internal

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Phase names a point in the request or application lifecycle where hooks run.
type Phase string

// Request lifecycle phases, in dispatch order.
const (
	PhaseOnRequest        Phase = "onRequest"
	PhasePreParsing       Phase = "preParsing"
	PhasePreValidation    Phase = "preValidation"
	PhasePreHandler       Phase = "preHandler"
	PhasePreSerialization Phase = "preSerialization"
	PhaseOnSend           Phase = "onSend"
	PhaseOnResponse       Phase = "onResponse"
	PhaseOnError          Phase = "onError"
	PhaseOnTimeout        Phase = "onTimeout"
	PhaseOnRequestAbort   Phase = "onRequestAbort"
)

// Application phases.
const (
	PhaseOnRoute    Phase = "onRoute"
	PhaseOnRegister Phase = "onRegister"
	PhaseOnReady    Phase = "onReady"
	PhaseOnClose    Phase = "onClose"
)

// requestPhases lists the phases snapshotted onto every route.
var requestPhases = []Phase{
	PhaseOnRequest,
	PhasePreParsing,
	PhasePreValidation,
	PhasePreHandler,
	PhasePreSerialization,
	PhaseOnSend,
	PhaseOnResponse,
	PhaseOnError,
	PhaseOnTimeout,
	PhaseOnRequestAbort,
}

// interrupting reports whether a committed reply or a not-found request stops
// the phase chain. Phases after the handler keep running once the reply is set.
func (p Phase) interrupting() bool {
	switch p {
	case PhaseOnRequest, PhasePreParsing, PhasePreValidation, PhasePreHandler:
		return true
	}
	return false
}

// task is the single suspension point the dispatcher awaits, whichever calling
// convention the hook or handler used. It resolves exactly once.
type task struct {
	done    chan struct{}
	payload any
	err     error
	once    sync.Once
}

func newTask() *task {
	return &task{done: make(chan struct{})}
}

func (t *task) resolve(payload any, err error) {
	t.once.Do(func() {
		t.payload = payload
		t.err = normalizeError(err)
		close(t.done)
	})
}

// start runs fn on the calling goroutine. A synchronous panic resolves the
// task with the recovered error.
func (t *task) start(fn func()) *task {
	defer func() {
		if r := recover(); r != nil {
			t.resolve(nil, recoveredError(r, debug.Stack()))
		}
	}()
	fn()
	return t
}

// wait blocks until the task resolves. ok is false when ctx ended first.
func (t *task) wait(ctx context.Context) (payload any, err error, ok bool) {
	select {
	case <-t.done:
		return t.payload, t.err, true
	case <-ctx.Done():
		return nil, nil, false
	}
}

// hookEntry is a normalized hook bound to the instance that registered it.
type hookEntry struct {
	owner *Instance
	phase Phase

	// call starts a request hook; in is the current payload, body stream or error.
	call func(c Context, in any) *task

	onRoute    RouteHookFunc
	onRegister RegisterHookFunc
	onApp      AppHookFunc
}

// newHookEntry validates fn against the calling conventions accepted by phase.
func newHookEntry(owner *Instance, phase Phase, fn any) (*hookEntry, error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: nil %s hook", ErrInvalidHandler, phase)
	}

	e := &hookEntry{owner: owner, phase: phase}
	var ok bool
	switch phase {
	case PhaseOnRequest, PhasePreValidation, PhasePreHandler,
		PhaseOnResponse, PhaseOnTimeout, PhaseOnRequestAbort:
		e.call, ok = plainHook(fn)
	case PhasePreParsing, PhasePreSerialization, PhaseOnSend:
		e.call, ok = payloadHook(fn)
	case PhaseOnError:
		e.call, ok = errorHook(fn)
	case PhaseOnRoute:
		e.onRoute, ok = routeHook(fn)
	case PhaseOnRegister:
		e.onRegister, ok = registerHook(fn)
	case PhaseOnReady, PhaseOnClose:
		e.onApp, ok = appHook(fn)
	default:
		return nil, fmt.Errorf("%w: unknown hook phase %q", ErrInvalidHandler, phase)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %T is not a valid %s hook", ErrInvalidHandler, fn, phase)
	}
	return e, nil
}

func plainHook(fn any) (func(Context, any) *task, bool) {
	var ret HookFunc
	var cb HookCallback
	switch f := fn.(type) {
	case HookFunc:
		ret = f
	case func(Context) error:
		ret = f
	case HookCallback:
		cb = f
	case func(Context, Done):
		cb = f
	}
	switch {
	case ret != nil:
		return func(c Context, _ any) *task {
			t := newTask()
			return t.start(func() { t.resolve(nil, ret(c)) })
		}, true
	case cb != nil:
		return func(c Context, _ any) *task {
			t := newTask()
			return t.start(func() { cb(c, func(err error) { t.resolve(nil, err) }) })
		}, true
	}
	return nil, false
}

func payloadHook(fn any) (func(Context, any) *task, bool) {
	var ret PayloadHookFunc
	var cb PayloadHookCallback
	switch f := fn.(type) {
	case PayloadHookFunc:
		ret = f
	case func(Context, any) (any, error):
		ret = f
	case PayloadHookCallback:
		cb = f
	case func(Context, any, PayloadDone):
		cb = f
	}
	switch {
	case ret != nil:
		return func(c Context, in any) *task {
			t := newTask()
			return t.start(func() { t.resolve(ret(c, in)) })
		}, true
	case cb != nil:
		return func(c Context, in any) *task {
			t := newTask()
			return t.start(func() {
				cb(c, in, func(err error, payload any) { t.resolve(payload, err) })
			})
		}, true
	}
	return nil, false
}

func errorHook(fn any) (func(Context, any) *task, bool) {
	var ret ErrorHookFunc
	var cb ErrorHookCallback
	switch f := fn.(type) {
	case ErrorHookFunc:
		ret = f
	case func(Context, error) error:
		ret = f
	case ErrorHookCallback:
		cb = f
	case func(Context, error, Done):
		cb = f
	}
	switch {
	case ret != nil:
		return func(c Context, in any) *task {
			t := newTask()
			err, _ := in.(error)
			return t.start(func() { t.resolve(nil, ret(c, err)) })
		}, true
	case cb != nil:
		return func(c Context, in any) *task {
			t := newTask()
			err, _ := in.(error)
			return t.start(func() { cb(c, err, func(herr error) { t.resolve(nil, herr) }) })
		}, true
	}
	return nil, false
}

func routeHook(fn any) (RouteHookFunc, bool) {
	switch f := fn.(type) {
	case RouteHookFunc:
		return f, f != nil
	case func(*RouteOptions) error:
		return f, f != nil
	}
	return nil, false
}

func registerHook(fn any) (RegisterHookFunc, bool) {
	switch f := fn.(type) {
	case RegisterHookFunc:
		return f, f != nil
	case func(*Instance) error:
		return f, f != nil
	}
	return nil, false
}

func appHook(fn any) (AppHookFunc, bool) {
	switch f := fn.(type) {
	case AppHookFunc:
		return f, f != nil
	case func(context.Context) error:
		return f, f != nil
	}
	return nil, false
}

// runIsolated executes an application hook, turning a panic into an error.
func runIsolated(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = recoveredError(r, debug.Stack())
		}
	}()
	return normalizeError(fn())
}
