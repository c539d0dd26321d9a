package switchboard

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestApp() *Application[nilState] {
	app := NewInlineApplication[nilState]("0", nil, context.Background())
	app.SilentMode = true
	return app
}

func run(app *Application[nilState], raw string) *testConn {
	app.table = app.Routes.Build()
	conn := newTestConn(raw)
	dispatch(conn, app, app.Context, 1, 1)
	return conn
}

func TestDispatchMatchedRoute(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/users/:id", func(req *RouteRequest[nilState]) *HttpResponse {
		return StringResponse("user " + req.Request.Param("id"))
	})

	conn := run(app, "GET /users/42 HTTP/1.1\r\nHost: example\r\n\r\n")
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "user 42")
	assert.Contains(t, out, "Access-Control-Allow-Origin: *")
	assert.Equal(t, 1, conn.closeCount())
}

func TestDispatchNotFound(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/users", noopHandler)

	conn := run(app, "GET /missing HTTP/1.1\r\nHost: example\r\n\r\n")
	assert.Contains(t, conn.output(), "HTTP/1.1 404 Not Found")
}

func TestDispatchMethodNotAllowed(t *testing.T) {
	app := newTestApp()
	// Registered through the raw primitive: exactly one GET and one POST
	// route cover the path.
	app.Routes.AddPatternRoute(Get, NewStaticPattern("/things"), noopHandler)
	app.Routes.AddPatternRoute(Post, NewStaticPattern("/things"), noopHandler)

	conn := run(app, "PUT /things HTTP/1.1\r\nHost: example\r\n\r\n")
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 405 Method Not Allowed")
	assert.Contains(t, out, "Allow: GET, POST")
}

func TestDispatchHeadSuppressesBody(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/users", func(req *RouteRequest[nilState]) *HttpResponse {
		return StringResponse("payload")
	})

	conn := run(app, "HEAD /users HTTP/1.1\r\nHost: example\r\n\r\n")
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "Content-Length: 7")
	assert.NotContains(t, out, "payload")
}

func TestDispatchOptionsShortCircuit(t *testing.T) {
	app := newTestApp()

	conn := run(app, "OPTIONS /anything HTTP/1.1\r\nHost: example\r\n\r\n")
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "Access-Control-Allow-Methods")
}

func TestDispatchMiddlewareShortCircuit(t *testing.T) {
	app := newTestApp()
	deny := func(req *RouteRequest[nilState]) *HttpResponse {
		return ForbiddenResponse("no entry")
	}
	handlerRan := false
	app.Routes.Get("/secret", func(req *RouteRequest[nilState]) *HttpResponse {
		handlerRan = true
		return StringResponse("secret")
	}, deny)

	conn := run(app, "GET /secret HTTP/1.1\r\nHost: example\r\n\r\n")
	assert.Contains(t, conn.output(), "HTTP/1.1 403 Forbidden")
	assert.False(t, handlerRan)
}

func TestDispatchHandlerPanicBecomes500(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/boom", func(req *RouteRequest[nilState]) *HttpResponse {
		panic("kaput")
	})

	conn := run(app, "GET /boom HTTP/1.1\r\nHost: example\r\n\r\n")
	assert.Contains(t, conn.output(), "HTTP/1.1 500 Internal Server Error")
	assert.Equal(t, 1, conn.closeCount())
}

func TestDispatchNilHandlerResponseBecomes500(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/nil", func(req *RouteRequest[nilState]) *HttpResponse {
		return nil
	})

	conn := run(app, "GET /nil HTTP/1.1\r\nHost: example\r\n\r\n")
	assert.Contains(t, conn.output(), "HTTP/1.1 500 Internal Server Error")
}

func TestDispatchEmptyPathRequest(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/users", noopHandler)

	// A doubled space in the request line parses to an empty path, which must
	// fall through to 404 like any other unmatched path.
	conn := run(app, "GET  HTTP/1.1\r\nHost: example\r\n\r\n")
	assert.Contains(t, conn.output(), "HTTP/1.1 404 Not Found")
	assert.Equal(t, 1, conn.closeCount())
}

func TestDispatchMalformedRequestClosesConn(t *testing.T) {
	app := newTestApp()

	conn := run(app, "garbage")
	assert.Empty(t, conn.output())
	assert.Equal(t, 1, conn.closeCount())
}

func TestDispatchSuspendedResponseCompletes(t *testing.T) {
	app := newTestApp()
	c := NewCompletion()
	app.Routes.Get("/slow", func(req *RouteRequest[nilState]) *HttpResponse {
		return DeferredResponse(c, time.Hour)
	})

	conn := run(app, "GET /slow HTTP/1.1\r\nHost: example\r\n\r\n")
	// The worker returned without answering; the connection is parked.
	require.Empty(t, conn.output())
	require.Equal(t, 0, conn.closeCount())

	c.Complete(StringResponse("eventually"), nil)
	deadline := time.Now().Add(2 * time.Second)
	for conn.closeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 200 OK")
	assert.Contains(t, out, "eventually")
	assert.Equal(t, 1, conn.closeCount())
}

func TestDispatchSuspendedResponseTimesOut(t *testing.T) {
	app := newTestApp()
	app.DefaultAsyncTimeout = 5 * time.Millisecond
	app.Routes.Get("/stuck", func(req *RouteRequest[nilState]) *HttpResponse {
		return DeferredResponse(NewCompletion(), 0)
	})

	conn := run(app, "GET /stuck HTTP/1.1\r\nHost: example\r\n\r\n")
	deadline := time.Now().Add(2 * time.Second)
	for conn.closeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	out := conn.output()
	assert.Contains(t, out, "HTTP/1.1 500 Internal Server Error")
	assert.Contains(t, out, "timed out")
}

func TestDispatchSuspendedHeadRoute(t *testing.T) {
	app := newTestApp()
	c := NewCompletion()
	app.Routes.Get("/slow", func(req *RouteRequest[nilState]) *HttpResponse {
		return DeferredResponse(c, time.Hour)
	})

	conn := run(app, "HEAD /slow HTTP/1.1\r\nHost: example\r\n\r\n")
	c.Complete(StringResponse("async body"), nil)
	deadline := time.Now().Add(2 * time.Second)
	for conn.closeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	out := conn.output()
	assert.Contains(t, out, "Content-Length: 10")
	assert.NotContains(t, out, "async body")
}

func TestDispatchSuspendedRequestCountedInTotals(t *testing.T) {
	m := appMetrics()
	before := testutil.ToFloat64(m.requests.WithLabelValues("GET", "200"))

	app := newTestApp()
	c := NewCompletion()
	app.Routes.Get("/slow", func(req *RouteRequest[nilState]) *HttpResponse {
		return DeferredResponse(c, time.Hour)
	})

	conn := run(app, "GET /slow HTTP/1.1\r\nHost: example\r\n\r\n")
	c.Complete(StringResponse("done"), nil)
	deadline := time.Now().Add(2 * time.Second)
	for conn.closeCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Equal(t, 1, conn.closeCount())

	after := testutil.ToFloat64(m.requests.WithLabelValues("GET", "200"))
	assert.Equal(t, before+1, after, "suspended requests must appear in the request totals")
}

func TestDispatchRepeatedRequestsAreIdempotent(t *testing.T) {
	app := newTestApp()
	app.Routes.Get("/users/:id", func(req *RouteRequest[nilState]) *HttpResponse {
		return StringResponse(req.Request.Param("id"))
	})

	var outputs []string
	for i := 0; i < 3; i++ {
		conn := run(app, "GET /users/7 HTTP/1.1\r\nHost: example\r\n\r\n")
		outputs = append(outputs, conn.output())
	}
	assert.Equal(t, outputs[0], outputs[1])
	assert.Equal(t, outputs[1], outputs[2])
	assert.True(t, strings.Contains(outputs[0], "7"))
}
