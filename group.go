package switchboard

// RouteGroup represents a collection of related routes that can be mounted
// together under a common path prefix. This enables modular route
// organization: feature areas or API versions are defined as groups and
// mounted with Application.AddRouteGroup.
//
// Because the route table is matched in registration order, mounting a group
// splices its routes into the table in the order they appear in the group.
//
// Example:
//
//	userRoutes := switchboard.NewRouteGroup(
//	    switchboard.GetRoute("/profile", getUserProfile, authMiddleware),
//	    switchboard.PostRoute("/settings", updateSettings, authMiddleware),
//	)
//	app.AddRouteGroup("/user", userRoutes)
type RouteGroup[RouteState any] struct {
	Routes []GroupedRoute[RouteState]
}

// NewRouteGroup creates a new route group from a variable number of grouped
// routes, typically built with the verb helpers below.
func NewRouteGroup[RouteState any](routes ...GroupedRoute[RouteState]) *RouteGroup[RouteState] {
	return &RouteGroup[RouteState]{
		Routes: routes,
	}
}

// GetRoute creates a GET route configuration for use in route groups. When
// the group is mounted, the GET registration also creates the mandatory HEAD
// twin at the same pattern.
func GetRoute[RouteState RouteStateCompatible](path string, handler RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) GroupedRoute[RouteState] {
	return GroupedRoute[RouteState]{
		Route:      path,
		Method:     Get,
		Handler:    handler,
		Middleware: middleware,
	}
}

// PostRoute creates a POST route configuration for use in route groups.
func PostRoute[RouteState RouteStateCompatible](path string, handler RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) GroupedRoute[RouteState] {
	return GroupedRoute[RouteState]{
		Route:      path,
		Method:     Post,
		Handler:    handler,
		Middleware: middleware,
	}
}

// PutRoute creates a PUT route configuration for use in route groups.
func PutRoute[RouteState RouteStateCompatible](path string, handler RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) GroupedRoute[RouteState] {
	return GroupedRoute[RouteState]{
		Route:      path,
		Method:     Put,
		Handler:    handler,
		Middleware: middleware,
	}
}

// PatchRoute creates a PATCH route configuration for use in route groups.
func PatchRoute[RouteState RouteStateCompatible](path string, handler RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) GroupedRoute[RouteState] {
	return GroupedRoute[RouteState]{
		Route:      path,
		Method:     Patch,
		Handler:    handler,
		Middleware: middleware,
	}
}

// DeleteRoute creates a DELETE route configuration for use in route groups.
func DeleteRoute[RouteState RouteStateCompatible](path string, handler RouteHandlerFn[RouteState], middleware ...MiddlewareFn[RouteState]) GroupedRoute[RouteState] {
	return GroupedRoute[RouteState]{
		Route:      path,
		Method:     Delete,
		Handler:    handler,
		Middleware: middleware,
	}
}

// GroupedRoute represents a single route definition within a route group:
// the path relative to the group prefix, the HTTP method, the handler, and
// middleware applied before it. Grouped routes use static path templates;
// regex routes are registered directly on the route collection.
type GroupedRoute[RouteState any] struct {
	Route      string
	Method     HttpMethod
	Handler    RouteHandlerFn[RouteState]
	Middleware []MiddlewareFn[RouteState]
}
