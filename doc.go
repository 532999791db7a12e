// Package arbor is an HTTP framework built around an encapsulation tree of
// plugins and a hook pipeline wrapped around every request.
//
// # Quick Start
//
// Create an application with arbor.New, register plugins and routes on it,
// and call Listen:
//
//	app := arbor.New(arbor.WithLogger(log))
//
//	err := app.Register(func(api *arbor.Instance) error {
//	    api.OnRequest(authenticate)
//	    return api.GET("/users/:id", getUser)
//	}, arbor.WithPrefix("/v1"))
//
//	if err := app.Listen(":8080"); err != nil {
//	    log.Error("server stopped", slog.Any("error", err))
//	}
//
// # Encapsulation
//
// Register creates a child instance. Hooks, decorations, content type
// parsers, reply serializers and error handlers registered inside a plugin
// are visible to the plugin and its descendants only. Routes snapshot the
// hook chain visible to them at registration time, so the order of
// registration matters: a hook added after a route does not run for it.
//
// WithoutEncapsulation runs a plugin against the caller's instance, so what
// it registers leaks into the caller's scope.
//
// # Lifecycle
//
// Each request runs through these phases:
//
//	onRequest -> preParsing -> body parsing -> preValidation -> validation
//	-> preHandler -> handler -> preSerialization -> serialization
//	-> onSend -> write -> onResponse
//
// Sending a reply from a hook skips the remaining phases up to the handler.
// Errors, returned or panicked, enter the error sub-pipeline: onError hooks
// observe them, then the nearest error handler renders them. A client that
// goes away before the reply is written triggers onRequestAbort instead.
//
// Hooks come in two conventions: returning functions
//
//	func(c arbor.Context) error
//
// and callbacks completing through done
//
//	func(c arbor.Context, done arbor.Done)
//
// Both are accepted by every request phase.
//
// # Not Found
//
// SetNotFoundHandler sets the handler for the instance prefix. Requests
// matching no route are served by the handler of the deepest prefix
// containing the path, running the hooks of that prefix's instance.
// Handlers and hooks may call Context.CallNotFound to hand a request over.
//
// # Errors
//
// Errors implementing StatusCoder pick the reply status; others render as
// 500 with a generic message. HTTPError carries a status, a user message and
// an optional machine readable code:
//
//	return arbor.ErrNotFound("user not found", arbor.WithErrorCode("USER_NOT_FOUND"))
package arbor
