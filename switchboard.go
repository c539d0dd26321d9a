// Package switchboard provides a lightweight embedded HTTP framework for Go
// whose core is an ordered route table with well-defined precedence and
// fallback semantics, and an asynchronous response pipeline with exactly-once
// completion.
//
// Routes are registered in order as (method, pattern, handler) bindings and
// matched front to back: among routes whose pattern covers the request path,
// the first with the request's method wins and its captured path parameters
// are handed to the handler. A path covered only by other methods yields a
// 405 with an Allow header listing those methods in first-seen order; a path
// covered by nothing yields a 404. Patterns come in two strategies, literal
// segment templates with ":name" parameters and regular expressions with
// positional captures.
//
// Handlers answer synchronously, or return a suspended response built with
// DeferredResponse: the connection is parked while the deferred computation
// races a deadline, and whichever finishes first renders the response and
// releases the connection exactly once.
//
// Key features:
//   - Generic route state management for type-safe handler contexts
//   - Ordered route table with deterministic 404/405 fallback
//   - Deferred responses with deadline arbitration and advisory cancellation
//   - Built-in worker pool for concurrent request handling
//   - Automatic CORS handling with configurable policies
//   - Automatic HEAD registration alongside every GET route
//   - Structured logging via zap and Prometheus request metrics
//   - Database connection pooling handed to every handler
//   - Graceful shutdown with context cancellation support
//
// Example usage:
//
//	type AppState struct {
//	    UserID int64
//	}
//
//	app := switchboard.NewApplication[AppState]("8080", pool)
//	app.Routes.Get("/users/:id", handleGetUser)
//	app.Start()
package switchboard

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// RouteStateCompatible is a type constraint that allows any type to be used
// as route state in the application. This enables type-safe access to shared
// data across route handlers while maintaining flexibility for different
// application architectures.
type RouteStateCompatible any

// Application represents the main HTTP server instance with generic route
// state support. The Application manages the request lifecycle from
// connection acceptance through response delivery: parsing, matching against
// the frozen route table, middleware execution, handler dispatch, and either
// synchronous delivery or suspension into the async exchange.
//
// Fields:
//   - Port: The port the server will listen on (e.g. "8080")
//   - Routes: The registration surface; frozen into an immutable table by Start
//   - CorsOrigin/CorsHeaders/CorsMethods: CORS header values (default "*" / all)
//   - SilentMode: When true, suppresses startup and route table output
//   - Database: pgx connection pool available to all route handlers (may be nil)
//   - Context: Application context for graceful shutdown
//   - WorkerCount: Number of goroutines handling requests (default 10)
//   - LogRequestsLevel: Request logging verbosity (0=none, 1=basic, 2=detailed)
//   - Logger: Structured logger used by the server and the async exchanges
//   - DefaultAsyncTimeout: Deadline applied to suspended responses that do not
//     set their own (default 30s)
//   - AsyncStackDump: When true, timeout responses embed a snapshot of all
//     goroutine stacks for postmortem diagnosis
//
// The Application uses a worker pool architecture where a configurable number
// of goroutines handle incoming requests concurrently. Requests are
// independent; the only cross-goroutine mutable state is each suspended
// request's exchange cell.
type Application[RouteState RouteStateCompatible] struct {
	Port                string
	Routes              *RouteCollection[RouteState]
	CorsOrigin          string
	CorsHeaders         string
	CorsMethods         string
	SilentMode          bool
	Database            *pgxpool.Pool
	Context             context.Context
	WorkerCount         int32
	LogRequestsLevel    int
	Logger              *zap.Logger
	DefaultAsyncTimeout time.Duration
	AsyncStackDump      bool

	table *RouteTable[RouteState]
}

// NewInlineApplication creates a new Application instance with a custom
// context, for callers that need to control server lifetime programmatically
// or integrate with an existing context hierarchy.
//
// Parameters:
//   - port: Server port (e.g. "8080")
//   - pool: Database pool handed to all route handlers; may be nil
//   - ctx: Custom context for application lifecycle management
func NewInlineApplication[RouteState any](port string, pool *pgxpool.Pool, ctx context.Context) *Application[RouteState] {
	return &Application[RouteState]{
		Port:                port,
		CorsOrigin:          "*",
		CorsHeaders:         "*",
		CorsMethods:         "GET, PUT, POST, DELETE, HEAD, PATCH",
		Routes:              NewRouteCollection[RouteState](),
		SilentMode:          false,
		Database:            pool,
		WorkerCount:         10,
		Context:             ctx,
		LogRequestsLevel:    0,
		Logger:              zap.L(),
		DefaultAsyncTimeout: 30 * time.Second,
	}
}

// NewApplication creates a new Application instance with automatic signal
// handling: the server shuts down gracefully on SIGINT and SIGKILL, making
// this the standard constructor for production deployments.
//
// Example:
//
//	pool, _ := pgxpool.New(ctx, connString)
//	app := switchboard.NewApplication[UserState]("8080", pool)
//	app.Routes.Get("/health", healthHandler)
//	app.Start() // Blocks until signal received
func NewApplication[RouteState any](port string, pool *pgxpool.Pool) *Application[RouteState] {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	return NewInlineApplication[RouteState](port, pool, ctx)
}

// NewApplicationFromConfig creates an Application from a loaded Config: the
// logger is built from the config's log block, the database pool from its
// database block (when present), and server, CORS, and async settings are
// applied. The context carries automatic signal handling as in NewApplication.
func NewApplicationFromConfig[RouteState any](cfg *Config) (*Application[RouteState], error) {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, os.Kill)
	logger, err := cfg.Log.BuildLogger()
	if err != nil {
		return nil, err
	}
	var pool *pgxpool.Pool
	if cfg.Database != nil {
		pool, err = pgxpool.New(ctx, cfg.Database.GetConnectionString())
		if err != nil {
			return nil, err
		}
	}
	app := NewInlineApplication[RouteState](cfg.Port, pool, ctx)
	app.CorsOrigin = cfg.Cors.Origin
	app.CorsHeaders = cfg.Cors.Headers
	app.CorsMethods = cfg.Cors.Methods
	app.SilentMode = cfg.Silent
	app.WorkerCount = cfg.Workers
	app.LogRequestsLevel = cfg.LogRequests
	app.Logger = logger
	app.DefaultAsyncTimeout = time.Duration(cfg.Async.Timeout)
	app.AsyncStackDump = cfg.Async.StackDump
	return app, nil
}

// AddRouteGroup registers all routes from a RouteGroup under a common prefix.
// The method normalizes the prefix (leading and trailing "/") and preserves
// each route's method, pattern kind, and middleware configuration. Relative
// registration order within the group is preserved, which matters because the
// route table is matched front to back.
//
// Example:
//
//	userRoutes := switchboard.NewRouteGroup(
//	    switchboard.GetRoute("/profile", getUserProfile),
//	    switchboard.PostRoute("/settings", updateSettings),
//	)
//	app.AddRouteGroup("/user", userRoutes)
//	// Creates: /user/profile, /user/settings
func (a *Application[RouteState]) AddRouteGroup(prefix string, rg *RouteGroup[RouteState]) {
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	for i := range rg.Routes {
		route := strings.TrimPrefix(rg.Routes[i].Route, "/")
		a.Routes.AddRouteWithMiddleware(rg.Routes[i].Method, prefix+route, rg.Routes[i].Handler, rg.Routes[i].Middleware)
	}
}

// Start begins listening for HTTP requests and blocks until the application
// context is cancelled. Registration ends here: the route collection is
// frozen into an immutable table before the first worker starts, so matching
// during serving needs no synchronization.
//
// The server uses a two-stage queueing system: a receiver goroutine accepts
// connections and queues them, and WorkerCount worker goroutines process
// requests from the queue concurrently. Shutdown closes the listener and
// waits for in-flight requests to complete.
func (a *Application[RouteState]) Start() {
	a.table = a.Routes.Build()
	if !a.SilentMode {
		fmt.Printf("Starting server on port %v.\n\nRegistered routes:\n", a.Port)
		a.table.PrintTable()
	}
	listener, err := net.Listen("tcp", fmt.Sprintf(":%s", a.Port))
	if err != nil {
		panic(err)
	}
	var wg sync.WaitGroup
	queue := make(chan net.Conn, a.WorkerCount*10)
	recvQueue := make(chan net.Conn, a.WorkerCount*10)
	for i := int32(0); i < a.WorkerCount; i++ {
		wg.Add(1)
		go func(i int32) {
			defer wg.Done()
			handleRequests(queue, a, a.Context, i)
		}(i)
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				panic(err)
			}
			if a.LogRequestsLevel > 1 {
				a.Logger.Debug("dispatching connection", zap.String("remote", conn.RemoteAddr().String()))
			}
			recvQueue <- conn
		}
	}()
	func() {
		for {
			select {
			case <-a.Context.Done():
				a.Logger.Info("stopping server")
				listener.Close()
				wg.Wait()
				return
			case conn := <-recvQueue:
				queue <- conn
			}
		}
	}()
}
