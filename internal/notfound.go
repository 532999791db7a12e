package internal

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
)

// NotFoundOption configures a not-found handler.
type NotFoundOption func(*notFoundConfig)

type notFoundConfig struct {
	hooks []RouteHook
}

// NotFoundPreValidation adds a preValidation hook that only runs for the
// not-found handler.
func NotFoundPreValidation(fn HookFunc) NotFoundOption {
	return func(c *notFoundConfig) {
		c.hooks = append(c.hooks, RouteHook{Phase: PhasePreValidation, Fn: fn})
	}
}

// NotFoundPreHandler adds a preHandler hook that only runs for the not-found
// handler.
func NotFoundPreHandler(fn HookFunc) NotFoundOption {
	return func(c *notFoundConfig) {
		c.hooks = append(c.hooks, RouteHook{Phase: PhasePreHandler, Fn: fn})
	}
}

// notFoundEntry is the not-found handler responsible for one prefix.
type notFoundEntry struct {
	owner    *Instance
	handler  HandlerFunc
	hooks    []RouteHook
	route    *route
	prefix   string
	explicit bool
}

// SetNotFoundHandler sets the handler for requests under the instance prefix
// that match no route. Each prefix accepts one handler across the whole tree.
func (i *Instance) SetNotFoundHandler(h HandlerFunc, opts ...NotFoundOption) error {
	if err := i.checkMutable("set a not found handler"); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: nil not found handler", ErrInvalidHandler)
	}

	prefix := displayPrefix(i.prefix)
	if _, ok := i.app.notFound[prefix]; ok {
		return &NotFoundConflictError{Prefix: prefix}
	}

	cfg := notFoundConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	for _, hook := range cfg.hooks {
		if _, err := newHookEntry(i, hook.Phase, hook.Fn); err != nil {
			return err
		}
	}

	i.app.notFound[prefix] = &notFoundEntry{
		owner:    i,
		handler:  h,
		hooks:    cfg.hooks,
		prefix:   prefix,
		explicit: true,
	}
	return nil
}

// buildNotFound completes the not-found table at freeze: every prefixed
// instance without its own handler gets an implicit entry reusing the nearest
// handler but running its own hook chain.
func (a *App) buildNotFound() error {
	explicit := make([]*notFoundEntry, 0, len(a.notFound))
	for _, e := range a.notFound {
		explicit = append(explicit, e)
	}

	a.Instance.walk(func(inst *Instance) {
		prefix := displayPrefix(inst.prefix)
		if _, ok := a.notFound[prefix]; ok {
			return
		}
		a.notFound[prefix] = &notFoundEntry{owner: inst, prefix: prefix}
	})

	a.notFoundIndex = a.notFoundIndex[:0]
	for _, e := range a.notFound {
		if !e.explicit {
			if source := nearestEntry(explicit, e.prefix); source != nil {
				e.handler, e.hooks = source.handler, source.hooks
			} else {
				e.handler = defaultNotFound
			}
		}
		chains, err := e.owner.routeChains(e.hooks)
		if err != nil {
			return err
		}
		e.route = &route{
			owner:      e.owner,
			handler:    e.handler,
			chains:     chains,
			parsers:    e.owner.contentParsers(),
			serializer: e.owner.replySerializer(),
			config:     map[string]any{},
			url:        e.prefix,
			bodyLimit:  a.bodyLimit,
			notFound:   true,
		}
		a.notFoundIndex = append(a.notFoundIndex, e)
	}

	// deepest prefix first
	sort.Slice(a.notFoundIndex, func(x, y int) bool {
		return len(a.notFoundIndex[x].prefix) > len(a.notFoundIndex[y].prefix)
	})
	return nil
}

// nearestEntry returns the entry with the longest prefix containing prefix.
func nearestEntry(entries []*notFoundEntry, prefix string) *notFoundEntry {
	var best *notFoundEntry
	for _, e := range entries {
		if !underPrefix(e.prefix, prefix) {
			continue
		}
		if best == nil || len(e.prefix) > len(best.prefix) {
			best = e
		}
	}
	return best
}

// lookupNotFound resolves the entry for path at the deepest encapsulation
// boundary containing it. The index holds exactly one entry per distinct
// instance prefix, deepest first, so the first segment-boundary match is the
// innermost instance owning the path. Route paths never add boundaries.
func (a *App) lookupNotFound(path string) *notFoundEntry {
	for _, e := range a.notFoundIndex {
		if underPrefix(e.prefix, path) {
			return e
		}
	}
	return nil
}

// underPrefix reports whether path lies under prefix on a segment boundary.
func underPrefix(prefix, path string) bool {
	if prefix == "/" {
		return true
	}
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

func displayPrefix(prefix string) string {
	if prefix == "" {
		return "/"
	}
	return prefix
}

// notFoundBody is the default not-found payload.
type notFoundBody struct {
	Error      string `json:"error"`
	Message    string `json:"message"`
	StatusCode int    `json:"statusCode"`
}

func defaultNotFound(c Context) error {
	req := c.Request()
	return c.Reply().Code(http.StatusNotFound).Send(notFoundBody{
		Error:      http.StatusText(http.StatusNotFound),
		Message:    fmt.Sprintf("Route %s:%s not found", req.Method(), req.URL()),
		StatusCode: http.StatusNotFound,
	})
}

// serveNotFound dispatches a request that matched no route.
func (a *App) serveNotFound(w http.ResponseWriter, r *http.Request) {
	entry := a.lookupNotFound(r.URL.Path)
	d := a.newDispatch(w, r, entry.route)
	d.inNotFound = true
	d.serve(d.lifecycle)
}

// notFound switches a dispatch to the not-found handler after CallNotFound.
// Inside the not-found handler itself it falls back to a plain 404.
func (d *dispatch) notFound() {
	d.wantNotFound = false
	d.reply.reset()

	if d.inNotFound {
		d.log.Warn("Trying to send a NotFound error inside a 404 handler. Sending basic 404 response.")
		d.reply.Code(http.StatusNotFound).Type(contentTypeText)
		d.reply.commit("404 Not Found")
		return
	}

	d.inNotFound = true
	entry := d.app.lookupNotFound(d.req.raw.URL.Path)
	d.mu.Lock()
	d.route = entry.route
	d.mu.Unlock()
	d.log.Debug("calling not found handler", slog.String("prefix", entry.prefix))
	d.runSteps(d.preHandler, d.handle)
}
