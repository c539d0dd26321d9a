package switchboard

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nilState struct{}

func noopHandler(req *RouteRequest[nilState]) *HttpResponse {
	return StringResponse("ok")
}

func namedHandler(name string) RouteHandlerFn[nilState] {
	return func(req *RouteRequest[nilState]) *HttpResponse {
		return StringResponse(name)
	}
}

func TestMatchWinnerCarriesParams(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Get("/users/:id", noopHandler)
	table := routes.Build()

	outcome := table.Match(Get, "/users/42")
	require.True(t, outcome.Matched())
	assert.Equal(t, map[string]string{"id": "42"}, outcome.Params)
}

func TestMatchFirstMatchWins(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Get("/users/:id", namedHandler("first"))
	routes.Get("/users/:name", namedHandler("second"))
	table := routes.Build()

	outcome := table.Match(Get, "/users/42")
	require.True(t, outcome.Matched())
	res := outcome.Route.Handler(&RouteRequest[nilState]{})
	assert.Equal(t, "first", string(res.Body))
	assert.Equal(t, map[string]string{"id": "42"}, outcome.Params)
}

func TestMatchSkipsWrongMethodThenMatchesLater(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Post("/things/:id", namedHandler("post"))
	routes.Put("/things/:id", namedHandler("put"))
	table := routes.Build()

	outcome := table.Match(Put, "/things/9")
	require.True(t, outcome.Matched())
	res := outcome.Route.Handler(&RouteRequest[nilState]{})
	assert.Equal(t, "put", string(res.Body))
}

func TestMatchMethodMismatchFallback(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.AddRoute(Post, "/things", noopHandler)
	routes.AddRoute(Delete, "/things", noopHandler)
	routes.AddRoute(Post, "/other", noopHandler)
	table := routes.Build()

	outcome := table.Match(Put, "/things")
	require.False(t, outcome.Matched())
	assert.Equal(t, []HttpMethod{Post, Delete}, outcome.Allowed)
}

func TestMatchFallbackMethodsAreDistinctFirstSeen(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.AddRoute(Post, "/dup", namedHandler("a"))
	routes.AddRoute(Delete, "/dup", namedHandler("b"))
	routes.AddRoute(Post, "/dup", namedHandler("c"))
	table := routes.Build()

	outcome := table.Match(Get, "/dup")
	require.False(t, outcome.Matched())
	assert.Equal(t, []HttpMethod{Post, Delete}, outcome.Allowed)
}

func TestMatchNoPathMatch(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Get("/users", noopHandler)
	table := routes.Build()

	outcome := table.Match(Get, "/missing")
	require.False(t, outcome.Matched())
	assert.Empty(t, outcome.Allowed)
}

func TestMatchIsDeterministic(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Get("/users/:id", noopHandler)
	routes.Post("/users", noopHandler)
	routes.AddRegexRoute(Get, `^/items/(\d+)$`, noopHandler)
	table := routes.Build()

	for _, probe := range []struct {
		method HttpMethod
		path   string
	}{
		{Get, "/users/42"},
		{Put, "/users"},
		{Get, "/items/7"},
		{Get, "/nowhere"},
	} {
		first := table.Match(probe.method, probe.path)
		second := table.Match(probe.method, probe.path)
		assert.Equal(t, first.Matched(), second.Matched())
		assert.Equal(t, first.Params, second.Params)
		assert.Equal(t, first.Allowed, second.Allowed)
		if first.Matched() {
			assert.Same(t, first.Route, second.Route)
		}
	}
}

func TestGetRegistersHeadTwin(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.Get("/users/:id", noopHandler)
	table := routes.Build()

	getOutcome := table.Match(Get, "/users/42")
	headOutcome := table.Match(Head, "/users/42")
	require.True(t, getOutcome.Matched())
	require.True(t, headOutcome.Matched())
	assert.Equal(t, getOutcome.Params, headOutcome.Params,
		"HEAD twin must capture the same parameters as its GET route")

	res := headOutcome.Route.Handler(&RouteRequest[nilState]{})
	require.NotNil(t, res)
	assert.True(t, res.HeadOnly)
	assert.Equal(t, "ok", string(res.Body), "computation is shared; only emission is suppressed")
}

func TestExplicitHeadRouteWinsOverTwin(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.AddRoute(Head, "/users/:id", namedHandler("explicit"))
	routes.Get("/users/:id", namedHandler("get"))
	table := routes.Build()

	outcome := table.Match(Head, "/users/42")
	require.True(t, outcome.Matched())
	res := outcome.Route.Handler(&RouteRequest[nilState]{})
	assert.Equal(t, "explicit", string(res.Body))
}

func TestRegexRouteInFallback(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.AddRegexRoute(Post, `^/items/(\d+)$`, noopHandler)
	table := routes.Build()

	outcome := table.Match(Delete, "/items/7")
	require.False(t, outcome.Matched())
	assert.Equal(t, []HttpMethod{Post}, outcome.Allowed)
}

func TestBuildFreezesRegistrationOrder(t *testing.T) {
	routes := NewRouteCollection[nilState]()
	routes.AddRoute(Post, "/a", noopHandler)
	table := routes.Build()
	require.Equal(t, 1, table.Len())

	// Registrations after Build must not disturb an already-built table.
	routes.AddRoute(Post, "/b", noopHandler)
	assert.Equal(t, 1, table.Len())
	outcome := table.Match(Post, "/b")
	assert.False(t, outcome.Matched())
}

func TestRouteGroupMounting(t *testing.T) {
	app := NewInlineApplication[nilState]("0", nil, context.Background())
	group := NewRouteGroup(
		GetRoute("/profile", namedHandler("profile")),
		PostRoute("settings", namedHandler("settings")),
	)
	app.AddRouteGroup("user", group)
	table := app.Routes.Build()

	profile := table.Match(Get, "/user/profile")
	require.True(t, profile.Matched())
	settings := table.Match(Post, "/user/settings")
	require.True(t, settings.Matched())

	// Mounted GET routes carry their HEAD twin too.
	head := table.Match(Head, "/user/profile")
	assert.True(t, head.Matched())
}
