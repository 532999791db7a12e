// Package internal implements the arbor application: the instance tree,
// the hook registry, the request dispatcher with its not-found, error and
// abort sub-pipelines, and the server runtime.
//
// The public API lives in the root package, which re-exports these types
// through aliases.
//
// # Dispatch
//
// A request is served by a dispatch value bound to one route. The route
// carries the hook chains snapshotted when it was registered, so dispatch
// never consults the instance tree for hooks. Hooks and handlers run one at
// a time on the request goroutine; each is normalized into a task which the
// dispatcher awaits together with the request context.
//
// The reply is committed in memory by Send. Nothing reaches the transport
// until serialization and onSend have run; only then is the transport
// claimed, after which the request can no longer be aborted.
//
// # Not Found
//
// Not-found entries are keyed by instance prefix. Ready adds an implicit
// entry for every prefixed instance without an explicit handler, reusing
// the nearest handler and the instance's own hooks.
package internal
