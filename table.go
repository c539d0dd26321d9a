package switchboard

import (
	"fmt"
)

// RouteHandlerFn defines the signature for route handler functions that process
// HTTP requests. Handlers receive a RouteRequest containing the HTTP request,
// captured path parameters, database pool, application context, and typed route
// state, then return an HttpResponse.
//
// A handler may answer immediately, or it may return a suspended response built
// with DeferredResponse, in which case the connection is parked and completed
// later by the async exchange (see async.go).
//
// Function signature:
//
//	func(req *RouteRequest[RouteState]) *HttpResponse
type RouteHandlerFn[RouteState RouteStateCompatible] func(*RouteRequest[RouteState]) *HttpResponse

// MiddlewareFn defines the signature for middleware functions that can intercept
// request processing. Middleware has the same signature as handlers but different
// return semantics:
//   - nil: continue to the next middleware or the handler
//   - *HttpResponse: immediately send this response and stop processing
type MiddlewareFn[RouteState RouteStateCompatible] func(*RouteRequest[RouteState]) *HttpResponse

// Route is an immutable (method, pattern, handler) binding. Routes are created
// during registration and never mutated once the table is built.
type Route[RouteState RouteStateCompatible] struct {
	Method     HttpMethod
	Pattern    Pattern
	Handler    RouteHandlerFn[RouteState]
	Middleware []MiddlewareFn[RouteState]
}

// Outcome is the result of matching a request against the route table.
//
// Exactly one of two shapes is produced:
//   - Matched: Route is non-nil and Params holds the pattern's captures for
//     this specific path.
//   - Fallback: Route is nil and Allowed lists the distinct methods, in
//     first-seen registration order, of routes whose pattern covered the path
//     but whose method did not match. An empty Allowed means no route covered
//     the path at all; the dispatcher turns that into a 404 and a non-empty
//     Allowed into a 405 with an Allow header.
type Outcome[RouteState RouteStateCompatible] struct {
	Route   *Route[RouteState]
	Params  map[string]string
	Allowed []HttpMethod
}

// Matched reports whether the outcome carries a winning route.
func (o *Outcome[RouteState]) Matched() bool {
	return o.Route != nil
}

// RouteCollection is the registration surface for an application's routes.
// It is an append-only builder: registration happens single-threaded during
// startup, in order, and Build freezes the collection into an immutable
// RouteTable before serving begins. Registration order is preserved verbatim
// and is significant — the table is matched front to back.
type RouteCollection[RouteState RouteStateCompatible] struct {
	routes []*Route[RouteState]
}

// NewRouteCollection creates an empty route collection ready for registration.
//
// Example:
//
//	routes := switchboard.NewRouteCollection[AppState]()
//	routes.Get("/users/:id", getUserHandler)
//	routes.Post("/users", createUserHandler)
func NewRouteCollection[RouteState RouteStateCompatible]() *RouteCollection[RouteState] {
	return &RouteCollection[RouteState]{
		routes: []*Route[RouteState]{},
	}
}

// AddRoute registers a handler for the given method and static path template.
// Path templates use ':' to mark parameter segments (e.g. "/users/:id").
//
// Registering a Get route also registers a Head route at the same pattern.
// The Head twin shares the Get handler's computation and suppresses the body
// on write, so the pairing required of every GET endpoint holds by
// construction rather than being synthesized at match time.
func (self *RouteCollection[RouteState]) AddRoute(method HttpMethod, path string, fn RouteHandlerFn[RouteState]) {
	self.AddRouteWithMiddleware(method, path, fn, nil)
}

// AddRouteWithMiddleware registers a route with an associated middleware chain.
// Middleware runs in slice order before the handler; the first middleware to
// return a non-nil response short-circuits the request.
func (self *RouteCollection[RouteState]) AddRouteWithMiddleware(method HttpMethod, path string, fn RouteHandlerFn[RouteState], middleware []MiddlewareFn[RouteState]) {
	self.register(method, NewStaticPattern(path), fn, middleware)
}

// AddRegexRoute registers a handler whose pattern is a regular expression
// applied to the whole request path. Capture groups become positional
// parameters ("0", "1", ...). The expression must compile; registration
// panics otherwise, which surfaces bad routes at startup rather than at
// request time. Get registrations pair a HEAD twin here too.
//
// Example:
//
//	routes.AddRegexRoute(switchboard.Get, `^/items/(\d+)$`, getItemHandler)
func (self *RouteCollection[RouteState]) AddRegexRoute(method HttpMethod, expr string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(method, MustRegexPattern(expr), fn, middleware)
}

// AddPatternRoute appends a single route against an explicit Pattern. This is
// the raw primitive: it performs no HEAD pairing, which is the registration
// DSL's job. Use it when a pattern is built programmatically or when the
// automatic HEAD twin is not wanted.
func (self *RouteCollection[RouteState]) AddPatternRoute(method HttpMethod, pattern Pattern, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.routes = append(self.routes, &Route[RouteState]{
		Method:     method,
		Pattern:    pattern,
		Handler:    fn,
		Middleware: middleware,
	})
}

// register appends the route and, for Get, its HEAD twin at the same pattern.
func (self *RouteCollection[RouteState]) register(method HttpMethod, pattern Pattern, fn RouteHandlerFn[RouteState], middleware []MiddlewareFn[RouteState]) {
	self.AddPatternRoute(method, pattern, fn, middleware...)
	if method == Get {
		self.AddPatternRoute(Head, pattern, headHandler(fn), middleware...)
	}
}

// Get registers a GET route (and its HEAD twin) at the given path template.
func (self *RouteCollection[RouteState]) Get(path string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(Get, NewStaticPattern(path), fn, middleware)
}

// Post registers a POST route at the given path template.
func (self *RouteCollection[RouteState]) Post(path string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(Post, NewStaticPattern(path), fn, middleware)
}

// Put registers a PUT route at the given path template.
func (self *RouteCollection[RouteState]) Put(path string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(Put, NewStaticPattern(path), fn, middleware)
}

// Patch registers a PATCH route at the given path template.
func (self *RouteCollection[RouteState]) Patch(path string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(Patch, NewStaticPattern(path), fn, middleware)
}

// Delete registers a DELETE route at the given path template.
func (self *RouteCollection[RouteState]) Delete(path string, fn RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) {
	self.register(Delete, NewStaticPattern(path), fn, middleware)
}

// Build freezes the collection into an immutable RouteTable. The returned
// table owns a copy of the registration list, so later registrations (which
// would be a bug anyway) cannot disturb a table already serving.
func (self *RouteCollection[RouteState]) Build() *RouteTable[RouteState] {
	routes := make([]*Route[RouteState], len(self.routes))
	copy(routes, self.routes)
	return &RouteTable[RouteState]{routes: routes}
}

// headHandler wraps a GET handler for its HEAD twin. The wrapped handler runs
// the same computation and marks the response head-only so the writer emits
// status and headers, including the Content-Length the GET body would have
// had, without the body itself.
func headHandler[RouteState RouteStateCompatible](fn RouteHandlerFn[RouteState]) RouteHandlerFn[RouteState] {
	return func(req *RouteRequest[RouteState]) *HttpResponse {
		res := fn(req)
		if res != nil {
			res.HeadOnly = true
		}
		return res
	}
}

// RouteTable is the frozen, ordered route list an application serves from.
// It is immutable after Build: concurrent matching from many worker
// goroutines needs no synchronization beyond the safe publication that
// happens when Start reads the built table.
type RouteTable[RouteState RouteStateCompatible] struct {
	routes []*Route[RouteState]
}

// Match resolves a (method, path) pair to an Outcome. Matching is a pure
// function of the table and its arguments: identical inputs always produce
// identical outcomes.
//
// The algorithm walks the table in registration order, considering only
// routes whose pattern covers the path. The first such route whose method
// equals the requested method wins, together with its captured parameters.
// If none matches by method, the outcome is a fallback carrying the distinct
// methods of the covering routes in first-seen order; if no route covers the
// path at all, the fallback's method list is empty.
func (self *RouteTable[RouteState]) Match(method HttpMethod, path string) *Outcome[RouteState] {
	var allowed []HttpMethod
	var seen map[HttpMethod]bool
	for _, route := range self.routes {
		params, ok := route.Pattern.Match(path)
		if !ok {
			continue
		}
		if route.Method == method {
			return &Outcome[RouteState]{Route: route, Params: params}
		}
		if seen == nil {
			seen = map[HttpMethod]bool{}
		}
		if !seen[route.Method] {
			seen[route.Method] = true
			allowed = append(allowed, route.Method)
		}
	}
	return &Outcome[RouteState]{Allowed: allowed}
}

// Len returns the number of registered routes, HEAD twins included.
func (self *RouteTable[RouteState]) Len() int {
	return len(self.routes)
}

// PrintTable outputs the registered routes to stdout in registration order for
// debugging and documentation. Called automatically during startup unless
// SilentMode is enabled, providing immediate feedback about registered routes
// and match precedence (earlier rows win ties).
func (self *RouteTable[RouteState]) PrintTable() {
	for _, route := range self.routes {
		fmt.Printf("%-7s %s\n", route.Method, route.Pattern.String())
	}
}
