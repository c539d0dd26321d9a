package switchboard

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
)

// handleRequests processes HTTP requests in a worker goroutine. Each worker
// pulls connections off the shared queue, parses them, and runs the dispatch
// pipeline until the application context is cancelled.
func handleRequests[RouteState any](conn <-chan net.Conn, app *Application[RouteState], cn context.Context, id int32) {
	var connId int64 = 0
	app.Logger.Info("worker online", zap.Int32("worker", id))
	for {
		select {
		case <-cn.Done():
			app.Logger.Info("worker shutdown", zap.Int32("worker", id))
			return
		case conn := <-conn:
			connId++
			dispatch(conn, app, cn, id, connId)
		}
	}
}

// dispatch runs the complete pipeline for one connection:
//
//  1. Parse the HTTP request off the wire
//  2. Answer CORS preflight OPTIONS requests automatically
//  3. Match (method, path) against the frozen route table
//  4. On a fallback outcome, emit 404 (path unknown) or 405 with an Allow
//     header (path known, method not)
//  5. On a match, enrich the request with the pattern's captures, run the
//     middleware chain with early termination, then the handler
//  6. Deliver the response — or, for a deferred response, park the
//     connection and arm the async exchange instead of closing it
//
// Matching is deterministic and side-effect-free, so dispatching the same
// request against the same table always takes the same branch; there are no
// retries. Handler panics are caught here and converted to a 500 so a broken
// handler cannot take down the worker.
func dispatch[RouteState any](conn net.Conn, app *Application[RouteState], cn context.Context, id int32, connId int64) {
	log := app.Logger.With(zap.Int32("worker", id), zap.Int64("conn", connId), zap.String("remote", conn.RemoteAddr().String()))
	start := time.Now()
	request := ParseRequest(&conn)
	if request == nil {
		log.Warn("could not parse request")
		conn.Close()
		return
	}
	log = log.With(zap.String("request_id", request.Id.String()))
	if app.LogRequestsLevel > 0 {
		log.Info("request", zap.String("method", string(request.Method)), zap.String("path", request.Path))
	}

	if request.Method == Options {
		response := HttpResponse{
			StatusCode: StatusOK,
			Body:       []byte{},
			Headers: map[string]string{
				"Access-Control-Allow-Origin":  app.CorsOrigin,
				"Access-Control-Allow-Headers": app.CorsHeaders,
				"Access-Control-Allow-Methods": app.CorsMethods,
			},
		}
		response.Write(conn)
		conn.Close()
		return
	}

	outcome := app.table.Match(request.Method, request.Path)
	if !outcome.Matched() {
		var response *HttpResponse
		if len(outcome.Allowed) > 0 {
			response = MethodNotAllowedResponse(outcome.Allowed)
			if app.LogRequestsLevel > 1 {
				log.Debug("method not allowed", zap.String("allow", response.Headers["Allow"]))
			}
		} else {
			response = StringResponse("404 not found")
			response.SetStatus(StatusNotFound)
			if app.LogRequestsLevel > 1 {
				log.Debug("no route found")
			}
		}
		deliver(conn, response, app, request, start)
		return
	}

	request.Params = outcome.Params

	var routeState RouteState
	routeData := RouteRequest[RouteState]{
		Context:  cn,
		Request:  request,
		Database: app.Database,
		State:    &routeState,
	}

	response := invoke(outcome.Route, &routeData, log)
	if response.Deferred != nil {
		suspend(conn, response, app, request, log)
		return
	}
	deliver(conn, response, app, request, start)
}

// invoke runs a matched route's middleware chain and handler, converting a
// nil result or a panic into a 500. The first middleware to return a non-nil
// response short-circuits the handler.
func invoke[RouteState any](route *Route[RouteState], routeData *RouteRequest[RouteState], log *zap.Logger) (response *HttpResponse) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("handler panicked", zap.Any("panic", r))
			response = ErrorMessageResponse("An error occurred and your request could not be completed.")
		}
	}()
	for i := range route.Middleware {
		response = route.Middleware[i](routeData)
		if response != nil {
			return response
		}
	}
	response = route.Handler(routeData)
	if response == nil {
		log.Warn("handler returned nil, sending 500")
		response = ErrorMessageResponse("An error occurred and your request could not be completed.")
	}
	return response
}

// deliver applies CORS headers, writes the response, closes the connection,
// and records request metrics. This is the synchronous exit path; suspended
// responses go through the async exchange instead.
func deliver[RouteState any](conn net.Conn, response *HttpResponse, app *Application[RouteState], request *HttpRequest, start time.Time) {
	response.ApplyCors(&app.CorsOrigin, &app.CorsHeaders, &app.CorsMethods)
	response.Write(conn)
	conn.Close()
	m := appMetrics()
	m.requests.WithLabelValues(string(request.Method), strconv.Itoa(int(response.StatusCode))).Inc()
	m.requestDuration.WithLabelValues(string(request.Method)).Observe(time.Since(start).Seconds())
}

// suspend detaches the connection for asynchronous completion. The worker
// returns to its queue immediately; ownership of the connection passes to the
// exchange, which closes it exactly once when either the deferred computation
// completes or the deadline fires. A zero per-response timeout falls back to
// the application's DefaultAsyncTimeout.
func suspend[RouteState any](conn net.Conn, response *HttpResponse, app *Application[RouteState], request *HttpRequest, log *zap.Logger) {
	timeout := response.Timeout
	if timeout <= 0 {
		timeout = app.DefaultAsyncTimeout
	}
	m := appMetrics()
	m.suspended.Inc()
	ex := newAsyncExchange(conn, response.HeadOnly, log.With(zap.String("method", string(request.Method)), zap.String("path", request.Path)))
	ex.method = string(request.Method)
	ex.corsOrigin = app.CorsOrigin
	ex.corsHeaders = app.CorsHeaders
	ex.corsMethods = app.CorsMethods
	ex.stackDump = app.AsyncStackDump
	ex.onDone = func() {
		m.suspended.Dec()
	}
	if app.LogRequestsLevel > 1 {
		log.Debug("request suspended", zap.Duration("timeout", timeout))
	}
	ex.arm(response.Deferred, timeout)
}
