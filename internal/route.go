package internal

import (
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dmitrymomot/arbor/pkg/hostrouter"
)

// RouteOptions describes a route. onRoute hooks receive a pointer to it and
// may edit it before the route is committed.
type RouteOptions struct {
	// Handler serves the route. Required.
	Handler HandlerFunc

	// Validator runs after schema validation; a returned error is a 400 fault
	// unless it declares its own status.
	Validator func(c Context) error

	// Serializer overrides the instance reply serializer for this route.
	Serializer SerializerFunc

	// Config is exposed to hooks and handlers via Context.RouteConfig.
	Config map[string]any

	// Method is the HTTP method, e.g. "GET".
	Method string

	// URL is the path relative to the instance prefix. Both ":id" and "{id}"
	// parameter forms are accepted.
	URL string

	// Prefix is the instance prefix, filled in for onRoute observers.
	Prefix string

	Schema Schema

	Constraints Constraints

	// Hooks are route-local hooks, appended after the instance hooks.
	Hooks []RouteHook

	// BodyLimit overrides the application body limit in bytes.
	BodyLimit int64
}

// Schema holds JSON Schema documents compiled at registration.
type Schema struct {
	Body string
}

// Constraints restrict which requests a route serves beyond method and path.
type Constraints struct {
	// Version is a semver matched against the Accept-Version header.
	Version string

	// Host is an exact ("api.example.com") or wildcard ("*.example.com") host.
	Host string
}

// RouteHook is a route-local hook.
type RouteHook struct {
	Fn    any
	Phase Phase
}

// RouteOption configures RouteOptions for the method shorthands.
type RouteOption func(*RouteOptions)

// WithHook adds a route-local hook.
func WithHook(phase Phase, fn any) RouteOption {
	return func(o *RouteOptions) {
		o.Hooks = append(o.Hooks, RouteHook{Phase: phase, Fn: fn})
	}
}

// WithPreHandler adds a route-local preHandler hook.
func WithPreHandler(fn HookFunc) RouteOption {
	return WithHook(PhasePreHandler, fn)
}

// WithVersion constrains the route to requests whose Accept-Version header
// matches version.
func WithVersion(version string) RouteOption {
	return func(o *RouteOptions) {
		o.Constraints.Version = version
	}
}

// WithHost constrains the route to a host pattern.
func WithHost(host string) RouteOption {
	return func(o *RouteOptions) {
		o.Constraints.Host = host
	}
}

// WithBodySchema validates parsed bodies against a JSON Schema document.
func WithBodySchema(schema string) RouteOption {
	return func(o *RouteOptions) {
		o.Schema.Body = schema
	}
}

// WithValidator runs fn after schema validation.
func WithValidator(fn func(c Context) error) RouteOption {
	return func(o *RouteOptions) {
		o.Validator = fn
	}
}

// WithSerializer overrides the payload serializer for the route.
func WithSerializer(fn SerializerFunc) RouteOption {
	return func(o *RouteOptions) {
		o.Serializer = fn
	}
}

// WithRouteBodyLimit overrides the application body limit for the route.
func WithRouteBodyLimit(limit int64) RouteOption {
	return func(o *RouteOptions) {
		o.BodyLimit = limit
	}
}

// WithRouteConfig sets a route config value.
func WithRouteConfig(key string, value any) RouteOption {
	return func(o *RouteOptions) {
		if o.Config == nil {
			o.Config = make(map[string]any)
		}
		o.Config[key] = value
	}
}

// route is a committed route with its hook chains snapshotted.
type route struct {
	owner      *Instance
	handler    HandlerFunc
	validator  func(Context) error
	serializer SerializerFunc
	schema     *jsonschema.Schema
	version    *semver.Version
	host       *hostrouter.Pattern
	chains     map[Phase][]*hookEntry
	parsers    parserSet
	config     map[string]any
	method     string
	url        string
	pattern    string
	bodyLimit  int64
	implicit   bool
	notFound   bool
}

var routeMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
	http.MethodPatch, http.MethodDelete, http.MethodOptions,
}

// Route registers a route on the instance.
func (i *Instance) Route(opts RouteOptions) error {
	if err := i.checkMutable("add a route"); err != nil {
		return err
	}
	opts.Method = strings.ToUpper(opts.Method)
	if !slices.Contains(routeMethods, opts.Method) {
		return fmt.Errorf("%w: unsupported method %q", ErrInvalidRoute, opts.Method)
	}
	if opts.Handler == nil {
		return fmt.Errorf("%w: nil handler for %s %s", ErrInvalidHandler, opts.Method, opts.URL)
	}
	opts.Prefix = i.prefix

	for _, h := range i.chain(PhaseOnRoute) {
		if err := runIsolated(func() error { return h.onRoute(&opts) }); err != nil {
			return fmt.Errorf("onRoute hook: %w", err)
		}
	}

	rt, err := i.buildRoute(opts)
	if err != nil {
		return err
	}
	return i.app.addRoute(rt)
}

func (i *Instance) buildRoute(opts RouteOptions) (*route, error) {
	url := joinPath(opts.Prefix, opts.URL)
	switch {
	case url == "":
		url = "/"
	case opts.URL == "/" && opts.Prefix != "":
		url = opts.Prefix
	}
	rt := &route{
		owner:      i,
		handler:    opts.Handler,
		validator:  opts.Validator,
		serializer: opts.Serializer,
		config:     opts.Config,
		method:     opts.Method,
		url:        url,
		pattern:    chiPattern(url),
		bodyLimit:  opts.BodyLimit,
		parsers:    i.contentParsers(),
	}
	if rt.serializer == nil {
		rt.serializer = i.replySerializer()
	}
	if rt.bodyLimit <= 0 {
		rt.bodyLimit = i.app.bodyLimit
	}
	if rt.config == nil {
		rt.config = map[string]any{}
	}

	if v := opts.Constraints.Version; v != "" {
		version, err := semver.NewVersion(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, v, err)
		}
		rt.version = version
	}
	if h := opts.Constraints.Host; h != "" {
		pattern, err := hostrouter.Compile(h)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidRoute, err)
		}
		rt.host = &pattern
	}
	if opts.Schema.Body != "" {
		schema, err := compileSchema(rt.method+" "+url, opts.Schema.Body)
		if err != nil {
			return nil, err
		}
		rt.schema = schema
	}

	chains, err := i.routeChains(opts.Hooks)
	if err != nil {
		return nil, err
	}
	rt.chains = chains
	return rt, nil
}

// routeChains snapshots the flattened instance chains and appends local hooks.
func (i *Instance) routeChains(local []RouteHook) (map[Phase][]*hookEntry, error) {
	chains := make(map[Phase][]*hookEntry, len(requestPhases))
	for _, phase := range requestPhases {
		chains[phase] = i.chain(phase)
	}
	for _, h := range local {
		if !slices.Contains(requestPhases, h.Phase) {
			return nil, fmt.Errorf("%w: %s is not a request phase", ErrInvalidHandler, h.Phase)
		}
		e, err := newHookEntry(i, h.Phase, h.Fn)
		if err != nil {
			return nil, err
		}
		chains[h.Phase] = append(chains[h.Phase], e)
	}
	return chains, nil
}

// headRoute derives the implicit HEAD route of a GET route.
func (rt *route) headRoute() *route {
	head := *rt
	head.method = http.MethodHead
	head.implicit = true
	return &head
}

// sameConstraints reports whether two routes would serve the same requests.
func (rt *route) sameConstraints(other *route) bool {
	return hostKey(rt.host) == hostKey(other.host) && versionKey(rt.version) == versionKey(other.version)
}

func hostKey(p *hostrouter.Pattern) string {
	if p == nil {
		return ""
	}
	return p.String()
}

func versionKey(v *semver.Version) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func (i *Instance) GET(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodGet, path, h, opts)
}

func (i *Instance) HEAD(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodHead, path, h, opts)
}

func (i *Instance) POST(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodPost, path, h, opts)
}

func (i *Instance) PUT(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodPut, path, h, opts)
}

func (i *Instance) PATCH(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodPatch, path, h, opts)
}

func (i *Instance) DELETE(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodDelete, path, h, opts)
}

func (i *Instance) OPTIONS(path string, h HandlerFunc, opts ...RouteOption) error {
	return i.route(http.MethodOptions, path, h, opts)
}

// All registers h for every supported method except HEAD, which GET covers.
func (i *Instance) All(path string, h HandlerFunc, opts ...RouteOption) error {
	for _, method := range routeMethods {
		if method == http.MethodHead {
			continue
		}
		if err := i.route(method, path, h, opts); err != nil {
			return err
		}
	}
	return nil
}

func (i *Instance) route(method, path string, h HandlerFunc, opts []RouteOption) error {
	o := RouteOptions{Method: method, URL: path, Handler: h}
	for _, opt := range opts {
		opt(&o)
	}
	return i.Route(o)
}

// RouteInfo describes a registered route.
type RouteInfo struct {
	Method  string
	URL     string
	Version string
	Host    string
}

// chiPattern rewrites ":name" segments into chi's "{name}" form.
func chiPattern(url string) string {
	segments := strings.Split(url, "/")
	for idx, seg := range segments {
		if strings.HasPrefix(seg, ":") && len(seg) > 1 {
			segments[idx] = "{" + seg[1:] + "}"
		}
	}
	return strings.Join(segments, "/")
}
