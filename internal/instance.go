package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Instance is a node of the encapsulation tree. Hooks, decorations, parsers,
// serializers and error handlers registered on an instance are visible to it
// and its descendants, never to its parent or siblings.
type Instance struct {
	app      *App
	parent   *Instance
	children []*Instance
	name     string
	prefix   string

	hooks map[Phase][]*hookEntry

	decorations        map[string]any
	requestDecorations map[string]any
	replyDecorations   map[string]any

	parsers      map[string]*parserEntry
	serializer   SerializerFunc
	errorHandler ErrorHandler
}

func newInstance(app *App, parent *Instance, name, prefix string) *Instance {
	i := &Instance{
		app:                app,
		parent:             parent,
		name:               name,
		prefix:             prefix,
		hooks:              make(map[Phase][]*hookEntry),
		decorations:        make(map[string]any),
		requestDecorations: make(map[string]any),
		replyDecorations:   make(map[string]any),
		parsers:            make(map[string]*parserEntry),
	}
	return i
}

// RegisterOption configures a plugin registration.
type RegisterOption func(*registerConfig)

type registerConfig struct {
	name          string
	prefix        string
	noEncapsulate bool
}

// WithPrefix mounts the plugin's routes under prefix.
func WithPrefix(prefix string) RegisterOption {
	return func(c *registerConfig) {
		c.prefix = prefix
	}
}

// WithName names the plugin in logs and errors.
func WithName(name string) RegisterOption {
	return func(c *registerConfig) {
		c.name = name
	}
}

// WithoutEncapsulation runs the plugin against the registering instance
// itself, so its hooks and decorations leak into the caller's scope.
// The prefix option is ignored for such plugins.
func WithoutEncapsulation() RegisterOption {
	return func(c *registerConfig) {
		c.noEncapsulate = true
	}
}

// Register runs plugin against a new encapsulated child instance.
// The plugin runs synchronously; its error is returned to the caller.
//
// Example:
//
//	err := app.Register(func(api *arbor.Instance) error {
//	    api.OnRequest(authenticate)
//	    return api.GET("/me", me)
//	}, arbor.WithPrefix("/v1"))
func (i *Instance) Register(plugin PluginFunc, opts ...RegisterOption) error {
	if err := i.checkMutable("register a plugin"); err != nil {
		return err
	}
	if plugin == nil {
		return fmt.Errorf("%w: nil plugin", ErrInvalidPlugin)
	}

	cfg := registerConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	target := i
	if !cfg.noEncapsulate {
		target = newInstance(i.app, i, cfg.name, strings.TrimSuffix(joinPath(i.prefix, cfg.prefix), "/"))
		i.children = append(i.children, target)
		for _, h := range i.chain(PhaseOnRegister) {
			if err := runIsolated(func() error { return h.onRegister(target) }); err != nil {
				return fmt.Errorf("onRegister hook: %w", err)
			}
		}
	}

	if err := plugin(target); err != nil {
		if cfg.name != "" {
			return fmt.Errorf("plugin %s: %w", cfg.name, err)
		}
		return err
	}
	return nil
}

// App returns the application owning the tree.
func (i *Instance) App() *App { return i.app }

// Parent returns the parent instance, or nil for the root.
func (i *Instance) Parent() *Instance { return i.parent }

// Children returns the encapsulated children in registration order.
func (i *Instance) Children() []*Instance {
	return append([]*Instance(nil), i.children...)
}

// Prefix returns the full URL prefix of the instance.
func (i *Instance) Prefix() string { return i.prefix }

// Name returns the plugin name given at registration.
func (i *Instance) Name() string { return i.name }

// AddHook registers fn for phase. fn must match one of the calling
// conventions accepted by the phase, otherwise ErrInvalidHandler is returned.
func (i *Instance) AddHook(phase Phase, fn any) error {
	if err := i.checkMutable("add a hook"); err != nil {
		return err
	}
	e, err := newHookEntry(i, phase, fn)
	if err != nil {
		return err
	}
	i.hooks[phase] = append(i.hooks[phase], e)
	return nil
}

func (i *Instance) OnRequest(fn HookFunc) error { return i.AddHook(PhaseOnRequest, fn) }

func (i *Instance) PreParsing(fn PayloadHookFunc) error { return i.AddHook(PhasePreParsing, fn) }

func (i *Instance) PreValidation(fn HookFunc) error { return i.AddHook(PhasePreValidation, fn) }

func (i *Instance) PreHandler(fn HookFunc) error { return i.AddHook(PhasePreHandler, fn) }

func (i *Instance) PreSerialization(fn PayloadHookFunc) error {
	return i.AddHook(PhasePreSerialization, fn)
}

func (i *Instance) OnSend(fn PayloadHookFunc) error { return i.AddHook(PhaseOnSend, fn) }

func (i *Instance) OnResponse(fn HookFunc) error { return i.AddHook(PhaseOnResponse, fn) }

func (i *Instance) OnError(fn ErrorHookFunc) error { return i.AddHook(PhaseOnError, fn) }

func (i *Instance) OnTimeout(fn HookFunc) error { return i.AddHook(PhaseOnTimeout, fn) }

func (i *Instance) OnRequestAbort(fn HookFunc) error { return i.AddHook(PhaseOnRequestAbort, fn) }

func (i *Instance) OnRoute(fn RouteHookFunc) error { return i.AddHook(PhaseOnRoute, fn) }

func (i *Instance) OnRegister(fn RegisterHookFunc) error { return i.AddHook(PhaseOnRegister, fn) }

func (i *Instance) OnReady(fn AppHookFunc) error { return i.AddHook(PhaseOnReady, fn) }

func (i *Instance) OnClose(fn AppHookFunc) error { return i.AddHook(PhaseOnClose, fn) }

// chain returns a fresh copy of the flattened hooks for phase: ancestors
// root-first, then own. Routes keep the copy taken at registration.
func (i *Instance) chain(phase Phase) []*hookEntry {
	if i.parent == nil {
		return append([]*hookEntry(nil), i.hooks[phase]...)
	}
	return append(i.parent.chain(phase), i.hooks[phase]...)
}

// Decorate attaches a named value to the instance, visible to descendants.
func (i *Instance) Decorate(name string, value any) error {
	return i.decorate("decorate", name, value, func(x *Instance) map[string]any { return x.decorations })
}

// DecorateRequest attaches a default request value, read with Request.Get.
func (i *Instance) DecorateRequest(name string, value any) error {
	return i.decorate("decorate request", name, value, func(x *Instance) map[string]any { return x.requestDecorations })
}

// DecorateReply attaches a default reply value, read with Reply.Get.
func (i *Instance) DecorateReply(name string, value any) error {
	return i.decorate("decorate reply", name, value, func(x *Instance) map[string]any { return x.replyDecorations })
}

func (i *Instance) decorate(action, name string, value any, bag func(*Instance) map[string]any) error {
	if err := i.checkMutable(action); err != nil {
		return err
	}
	if name == "" {
		return fmt.Errorf("%w: empty decoration name", ErrInvalidHandler)
	}
	if _, ok := i.lookup(name, bag); ok {
		return fmt.Errorf("%w: %q", ErrDecorationExists, name)
	}
	bag(i)[name] = value
	return nil
}

// Decoration returns the named value from this instance or the nearest ancestor.
func (i *Instance) Decoration(name string) (any, bool) {
	return i.lookup(name, func(x *Instance) map[string]any { return x.decorations })
}

// HasDecorator reports whether name is visible from this instance.
func (i *Instance) HasDecorator(name string) bool {
	_, ok := i.Decoration(name)
	return ok
}

// lookup walks the parent chain live.
func (i *Instance) lookup(name string, bag func(*Instance) map[string]any) (any, bool) {
	for x := i; x != nil; x = x.parent {
		if v, ok := bag(x)[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// SetErrorHandler sets the error handler of this instance and its descendants
// that do not set their own.
func (i *Instance) SetErrorHandler(h ErrorHandler) error {
	if err := i.checkMutable("set an error handler"); err != nil {
		return err
	}
	if h == nil {
		return fmt.Errorf("%w: nil error handler", ErrInvalidHandler)
	}
	i.errorHandler = h
	return nil
}

// nearestErrorHandler returns the closest instance, starting at i, with an
// error handler.
func (i *Instance) nearestErrorHandler() *Instance {
	for x := i; x != nil; x = x.parent {
		if x.errorHandler != nil {
			return x
		}
	}
	return nil
}

// SetReplySerializer sets the default payload serializer for routes of this
// instance and its descendants.
func (i *Instance) SetReplySerializer(fn SerializerFunc) error {
	if err := i.checkMutable("set a reply serializer"); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: nil serializer", ErrInvalidHandler)
	}
	i.serializer = fn
	return nil
}

func (i *Instance) replySerializer() SerializerFunc {
	for x := i; x != nil; x = x.parent {
		if x.serializer != nil {
			return x.serializer
		}
	}
	return nil
}

func (i *Instance) checkMutable(action string) error {
	if i.app.frozen.Load() {
		return fmt.Errorf("%w: cannot %s", ErrAlreadyBound, action)
	}
	return nil
}

// walk visits the subtree rooted at i, parents before children.
func (i *Instance) walk(fn func(*Instance)) {
	fn(i)
	for _, child := range i.children {
		child.walk(fn)
	}
}

// runReady runs onReady hooks root-first.
func (i *Instance) runReady(ctx context.Context) error {
	for _, h := range i.hooks[PhaseOnReady] {
		if err := runIsolated(func() error { return h.onApp(ctx) }); err != nil {
			return fmt.Errorf("onReady hook: %w", err)
		}
	}
	for _, child := range i.children {
		if err := child.runReady(ctx); err != nil {
			return err
		}
	}
	return nil
}

// runClose runs onClose hooks children-first. Every hook runs; errors are joined.
func (i *Instance) runClose(ctx context.Context) error {
	var errs []error
	for idx := len(i.children) - 1; idx >= 0; idx-- {
		if err := i.children[idx].runClose(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range i.hooks[PhaseOnClose] {
		if err := runIsolated(func() error { return h.onApp(ctx) }); err != nil {
			errs = append(errs, fmt.Errorf("onClose hook: %w", err))
		}
	}
	return errors.Join(errs...)
}

// joinPath joins a prefix and a path, keeping a single separator.
func joinPath(prefix, path string) string {
	prefix = strings.TrimSuffix(prefix, "/")
	if path == "" {
		return prefix
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return prefix + path
}
