package internal

import (
	"context"
	"io"
)

// HandlerFunc is the signature for route handlers.
// It receives a Context and returns an error.
// Returning a non-nil error routes the request into the error sub-pipeline.
// A handler that returns nil without sending produces an empty reply.
//
// Example:
//
//	app.GET("/users/:id", func(c arbor.Context) error {
//	    user, err := repo.Find(c, c.Param("id"))
//	    if err != nil {
//	        return err
//	    }
//	    return c.Send(user)
//	})
type HandlerFunc func(c Context) error

// ErrorHandler renders an error into a reply. It may send through c, or return
// an error to delegate to the parent instance's error handler.
type ErrorHandler func(c Context, err error) error

// PluginFunc configures an instance: it registers hooks, routes, decorations
// and nested plugins.
//
// Example:
//
//	func Users(repo *Repo) arbor.PluginFunc {
//	    return func(i *arbor.Instance) error {
//	        i.Decorate("users", repo)
//	        return i.GET("/users", listUsers)
//	    }
//	}
type PluginFunc func(i *Instance) error

// SerializerFunc turns a reply payload into bytes.
type SerializerFunc func(payload any) ([]byte, error)

// ContentTypeParser turns a request body into a value exposed by Request.Body.
type ContentTypeParser func(c Context, body io.Reader) (any, error)

// Done completes a callback-style hook. A non-nil err routes the request into
// the error sub-pipeline.
type Done func(err error)

// PayloadDone completes a callback-style payload hook. A non-nil payload
// replaces the current one.
type PayloadDone func(err error, payload any)

// HookFunc is a returning hook for onRequest, preValidation, preHandler,
// onResponse, onTimeout and onRequestAbort.
type HookFunc func(c Context) error

// HookCallback is the callback-style form of HookFunc.
type HookCallback func(c Context, done Done)

// PayloadHookFunc is a returning hook for preParsing, preSerialization and
// onSend. Returning a non-nil payload replaces the current one; preParsing
// payloads are the body stream (io.Reader).
type PayloadHookFunc func(c Context, payload any) (any, error)

// PayloadHookCallback is the callback-style form of PayloadHookFunc.
type PayloadHookCallback func(c Context, payload any, done PayloadDone)

// ErrorHookFunc observes errors in the onError phase.
type ErrorHookFunc func(c Context, err error) error

// ErrorHookCallback is the callback-style form of ErrorHookFunc.
type ErrorHookCallback func(c Context, err error, done Done)

// RouteHookFunc observes, and may edit, route options before a route is committed.
type RouteHookFunc func(opts *RouteOptions) error

// RegisterHookFunc observes the creation of an encapsulated child instance.
type RegisterHookFunc func(child *Instance) error

// AppHookFunc runs at application ready or close.
type AppHookFunc func(ctx context.Context) error
