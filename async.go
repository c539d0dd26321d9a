package switchboard

import (
	"context"
	"io"
	"net"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// AsyncState is the per-suspended-request lifecycle cell. A request starts in
// AsyncRunning and moves by compare-and-swap to exactly one of the two
// terminal states; no transition ever leaves a terminal state.
type AsyncState int32

const (
	// AsyncRunning is the initial state: the deferred computation is in
	// flight and the deadline has not fired.
	AsyncRunning AsyncState = iota
	// AsyncRendering is terminal: the completion trigger won the race and
	// owns rendering plus cleanup.
	AsyncRendering
	// AsyncTimedout is terminal: the deadline trigger won the race and owns
	// the timeout response plus cleanup.
	AsyncTimedout
)

func (s AsyncState) String() string {
	switch s {
	case AsyncRunning:
		return "running"
	case AsyncRendering:
		return "rendering"
	case AsyncTimedout:
		return "timedout"
	}
	return "unknown"
}

// Deferred is the contract between a suspended route handler and the async
// exchange. OnComplete registers a continuation that the computation must
// invoke exactly once, with either the computed response or a failure, and
// returns a cancellation handle.
//
// Cancellation is advisory only: invoking the handle does not guarantee the
// underlying work stops, only that a result delivered afterwards will be
// discarded by the exchange's already-decided state cell. Implementations are
// free to ignore it entirely.
type Deferred interface {
	OnComplete(continuation func(*HttpResponse, error)) (cancel func())
}

// deferredFunc adapts a plain function into a Deferred by running it on its
// own goroutine. The context is cancelled when the exchange times out, which
// well-behaved computations can observe to stop early.
type deferredFunc func(ctx context.Context) (*HttpResponse, error)

// Go wraps fn as a Deferred. The function starts when the exchange registers
// its continuation and delivers its result exactly once.
//
// Example:
//
//	routes.Get("/report", func(req *switchboard.RouteRequest[State]) *switchboard.HttpResponse {
//		return switchboard.DeferredResponse(switchboard.Go(func(ctx context.Context) (*switchboard.HttpResponse, error) {
//			data, err := buildReport(ctx)
//			if err != nil {
//				return nil, err
//			}
//			return switchboard.JsonResponse(data), nil
//		}), 5*time.Second)
//	})
func Go(fn func(ctx context.Context) (*HttpResponse, error)) Deferred {
	return deferredFunc(fn)
}

func (f deferredFunc) OnComplete(continuation func(*HttpResponse, error)) func() {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		res, err := f(ctx)
		continuation(res, err)
	}()
	return cancel
}

// Completion is a single-use Deferred completed explicitly by the host, for
// computations whose lifecycle the framework does not drive (external
// callbacks, message consumers, tests). The first Complete call wins;
// subsequent calls are ignored. Complete may be called before or after the
// exchange registers its continuation; delivery happens exactly once either
// way.
type Completion struct {
	mu           sync.Mutex
	continuation func(*HttpResponse, error)
	res          *HttpResponse
	err          error
	done         bool
	delivered    bool
	cancelled    bool
}

// NewCompletion creates an empty Completion.
func NewCompletion() *Completion {
	return &Completion{}
}

// Complete records the computation's result. Only the first call has any
// effect.
func (c *Completion) Complete(res *HttpResponse, err error) {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	c.res = res
	c.err = err
	fn := c.continuation
	deliver := fn != nil && !c.delivered
	if deliver {
		c.delivered = true
	}
	c.mu.Unlock()
	if deliver {
		fn(res, err)
	}
}

// Cancelled reports whether the exchange requested cancellation. The signal
// is advisory; a computation that ignores it may still call Complete, whose
// result will then be discarded.
func (c *Completion) Cancelled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelled
}

// OnComplete implements Deferred.
func (c *Completion) OnComplete(continuation func(*HttpResponse, error)) func() {
	c.mu.Lock()
	c.continuation = continuation
	deliver := c.done && !c.delivered
	if deliver {
		c.delivered = true
	}
	res, err := c.res, c.err
	c.mu.Unlock()
	if deliver {
		continuation(res, err)
	}
	return func() {
		c.mu.Lock()
		c.cancelled = true
		c.mu.Unlock()
	}
}

// DiagnosticFunc produces formatted diagnostic text embedded into timeout
// error payloads when AsyncStackDump is enabled.
type DiagnosticFunc func() string

// DumpStacks is the default DiagnosticFunc: a snapshot of every live
// goroutine's call stack, for postmortem diagnosis of what a timed-out
// request was stuck on.
func DumpStacks() string {
	buf := make([]byte, 64*1024)
	for {
		n := runtime.Stack(buf, true)
		if n < len(buf) {
			return string(buf[:n])
		}
		buf = make([]byte, len(buf)*2)
	}
}

// countingWriter tracks whether any response bytes reached the connection.
// Once the status line is on the wire a failed or losing render can no longer
// be converted into a 500, so the exchange consults the count before writing
// an error response.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// asyncExchange arbitrates the race between a deferred computation finishing
// and its deadline elapsing. The state cell is the only mutable state shared
// between the two triggers; whichever performs the successful CAS out of
// AsyncRunning becomes the sole owner of rendering and cleanup, and the other
// trigger degenerates to a no-op. Neither trigger blocks: both run in bounded
// time on whatever goroutine invokes them.
type asyncExchange struct {
	state    atomic.Int32
	conn     net.Conn
	sink     *countingWriter
	timer    atomic.Pointer[time.Timer]
	cancel   func()
	headOnly bool
	method   string

	corsOrigin  string
	corsHeaders string
	corsMethods string

	stackDump  bool
	diagnostic DiagnosticFunc
	logger     *zap.Logger
	onDone     func()
}

func newAsyncExchange(conn net.Conn, headOnly bool, logger *zap.Logger) *asyncExchange {
	return &asyncExchange{
		conn:       conn,
		sink:       &countingWriter{w: conn},
		headOnly:   headOnly,
		diagnostic: DumpStacks,
		logger:     logger,
	}
}

// State returns the current lifecycle state.
func (ex *asyncExchange) State() AsyncState {
	return AsyncState(ex.state.Load())
}

// arm registers the completion trigger with the deferred computation and arms
// the deadline trigger. OnComplete may invoke the continuation synchronously;
// in that case the exchange is already terminal by the time the timer would
// be armed, and arming is skipped. A completion that lands between the state
// check and the timer store has already run finish with no timer to stop, so
// the state is re-checked after the store and a timer armed for an
// already-terminal exchange is stopped here.
func (ex *asyncExchange) arm(d Deferred, timeout time.Duration) {
	ex.cancel = d.OnComplete(ex.complete)
	if ex.State() != AsyncRunning {
		return
	}
	ex.timer.Store(time.AfterFunc(timeout, ex.expire))
	if ex.State() != AsyncRunning {
		if t := ex.timer.Load(); t != nil {
			t.Stop()
		}
	}
}

// complete is the completion trigger. On winning the CAS it renders the
// computed response (or a 500 for a failed computation) and performs cleanup;
// on losing it does nothing, discarding a result that arrived after the
// deadline.
func (ex *asyncExchange) complete(res *HttpResponse, err error) {
	if !ex.state.CompareAndSwap(int32(AsyncRunning), int32(AsyncRendering)) {
		return
	}
	defer ex.finish()
	appMetrics().asyncCompletions.Inc()
	if err == nil && res == nil {
		err = errNilAsyncResponse
	}
	if err != nil {
		ex.logger.Error("async computation failed", zap.Error(err))
		if ex.sink.n == 0 {
			fail := ErrorMessageResponse(err.Error())
			fail.HeadOnly = ex.headOnly
			ex.render(fail)
		}
		return
	}
	res.HeadOnly = res.HeadOnly || ex.headOnly
	ex.render(res)
}

// expire is the deadline trigger. On winning the CAS it signals advisory
// cancellation, emits a 500 timeout response (with a stack snapshot when
// diagnostics are enabled and nothing has been written yet) and performs
// cleanup; on losing it does nothing.
func (ex *asyncExchange) expire() {
	if !ex.state.CompareAndSwap(int32(AsyncRunning), int32(AsyncTimedout)) {
		return
	}
	defer ex.finish()
	appMetrics().asyncTimeouts.Inc()
	if ex.cancel != nil {
		ex.cancel()
	}
	ex.logger.Warn("async request timed out")
	if ex.sink.n > 0 {
		return
	}
	body := "Request processing timed out."
	if ex.stackDump && ex.diagnostic != nil {
		body += "\n\n" + ex.diagnostic()
	}
	res := StringResponse(body)
	res.StatusCode = StatusInternalServerError
	res.HeadOnly = ex.headOnly
	ex.render(res)
}

// render writes the final response through the counting sink. Write failures
// after the status line has gone out cannot be repaired and are swallowed; a
// render panic is caught at this boundary so a broken handler transform can
// never take down the trigger's goroutine.
func (ex *asyncExchange) render(res *HttpResponse) {
	defer func() {
		if r := recover(); r != nil {
			ex.logger.Error("panic while rendering async response", zap.Any("panic", r))
			if ex.sink.n == 0 {
				fail := ErrorMessageResponse("An error occurred and your request could not be completed.")
				fail.Write(ex.sink)
			}
		}
	}()
	res.ApplyCors(&ex.corsOrigin, &ex.corsHeaders, &ex.corsMethods)
	appMetrics().requests.WithLabelValues(ex.method, strconv.Itoa(int(res.StatusCode))).Inc()
	if err := res.Write(ex.sink); err != nil {
		ex.logger.Debug("async response write failed", zap.Error(err))
	}
}

// finish releases the suspended request's resources. It is reached only via
// the winning trigger's deferred call, so it runs exactly once per exchange
// on every exit path. Failures here are best-effort and never alter or mask
// the already-decided outcome.
func (ex *asyncExchange) finish() {
	if t := ex.timer.Load(); t != nil {
		t.Stop()
	}
	if ex.conn != nil {
		_ = ex.conn.Close()
	}
	if ex.onDone != nil {
		func() {
			defer func() { recover() }()
			ex.onDone()
		}()
	}
}

type asyncError string

func (e asyncError) Error() string { return string(e) }

const errNilAsyncResponse = asyncError("async computation returned no response")
