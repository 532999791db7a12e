package internal

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/Masterminds/semver/v3"
)

// routeGroup holds every route sharing one method and path. The chi mux
// resolves method and path; the group then applies host and version
// constraints.
type routeGroup struct {
	method    string
	pattern   string
	routes    []*route
	versioned bool
}

// addRoute mounts rt on the mux. A GET route also mounts an implicit HEAD
// route unless an explicit one with the same constraints exists.
func (a *App) addRoute(rt *route) error {
	if err := a.mount(rt); err != nil {
		return err
	}
	if rt.method == http.MethodGet {
		if err := a.mount(rt.headRoute()); err != nil {
			return err
		}
	}
	a.routes = append(a.routes, rt)
	return nil
}

func (a *App) mount(rt *route) error {
	key := rt.method + " " + rt.pattern
	g, ok := a.groups[key]
	if ok {
		for idx, existing := range g.routes {
			if !existing.sameConstraints(rt) {
				continue
			}
			switch {
			case existing.implicit && !rt.implicit:
				g.routes[idx] = rt
				return nil
			case rt.implicit:
				return nil
			}
			return fmt.Errorf("%w: %s %s", ErrDuplicateRoute, rt.method, rt.url)
		}
		g.add(rt)
		return nil
	}

	g = &routeGroup{method: rt.method, pattern: rt.pattern}
	g.add(rt)
	if err := a.handle(g); err != nil {
		return err
	}
	a.groups[key] = g
	return nil
}

// handle registers the group on the chi mux. chi panics on malformed
// patterns; the panic is returned as ErrInvalidRoute.
func (a *App) handle(g *routeGroup) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s %s: %v", ErrInvalidRoute, g.method, g.pattern, r)
		}
	}()
	a.mux.Method(g.method, g.pattern, a.groupHandler(g))
	return nil
}

func (a *App) groupHandler(g *routeGroup) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rt := g.pick(r)
		if rt == nil {
			a.serveNotFound(w, r)
			return
		}
		d := a.newDispatch(w, r, rt)
		if g.versioned {
			d.reply.Header("Vary", "Accept-Version")
		}
		d.serve(d.lifecycle)
	}
}

func (g *routeGroup) add(rt *route) {
	g.routes = append(g.routes, rt)
	if rt.version != nil {
		g.versioned = true
	}
}

// pick selects the route serving r among those whose host constraint
// matches and whose version satisfies Accept-Version: the most specific host
// wins, then the highest version. Versioned routes never serve requests
// without Accept-Version.
func (g *routeGroup) pick(r *http.Request) *route {
	var constraint *semver.Constraints
	if accept := r.Header.Get("Accept-Version"); accept != "" {
		c, err := semver.NewConstraint(accept)
		if err != nil {
			return nil
		}
		constraint = c
	}

	var match *route
	best := -1
	for _, rt := range g.routes {
		score := 0
		if rt.host != nil {
			if !rt.host.Match(r.Host) {
				continue
			}
			score = rt.host.Specificity()
		}
		if constraint == nil && rt.version != nil {
			continue
		}
		if constraint != nil && (rt.version == nil || !constraint.Check(rt.version)) {
			continue
		}
		switch {
		case score > best:
		case score == best && rt.version != nil && rt.version.GreaterThan(match.version):
		default:
			continue
		}
		match, best = rt, score
	}
	return match
}

// Routes lists the registered routes in registration order. Implicit HEAD
// routes are omitted.
func (a *App) Routes() []RouteInfo {
	out := make([]RouteInfo, 0, len(a.routes))
	for _, rt := range a.routes {
		info := RouteInfo{Method: rt.method, URL: rt.url}
		if rt.version != nil {
			info.Version = rt.version.String()
		}
		if rt.host != nil {
			info.Host = rt.host.String()
		}
		out = append(out, info)
	}
	return slices.Clip(out)
}
