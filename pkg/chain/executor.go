package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// Status is the executor's lifecycle state.
type Status int32

const (
	StatusNotStarted Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusNotStarted:
		return "NOT_STARTED"
	case StatusRunning:
		return "RUNNING"
	case StatusCompleted:
		return "COMPLETED"
	case StatusFailed:
		return "FAILED"
	case StatusCancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("Status(%d)", int32(s))
	}
}

// Option customises an Executor.
type Option func(*Executor)

// WithStrategy replaces the strategy built from Config.
func WithStrategy(s Strategy) Option {
	return func(e *Executor) { e.strategy = s }
}

// WithExceptionHandler sets the global handler used by the Config-built strategy.
func WithExceptionHandler(h ExceptionHandler) Option {
	return func(e *Executor) { e.global = h }
}

// WithLogger sets the executor's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithEventHandler registers a lifecycle event callback.
func WithEventHandler(h EventHandler) Option {
	return func(e *Executor) { e.onEvent = h }
}

// Executor runs the handlers of a Registry in order against a Context.
//
// One Executor may be shared by goroutines that each drive their own
// Context; Status and LastExecutionTime then reflect the last run to update
// them.
type Executor struct {
	registry *Registry
	cfg      Config
	strategy Strategy
	global   ExceptionHandler
	logger   *slog.Logger
	onEvent  EventHandler

	status      atomic.Int32
	lastElapsed atomic.Int64
}

// NewExecutor validates cfg and builds an Executor over reg. Unless
// WithStrategy is given, the strategy is NewStrategy(cfg.Mode) wrapped in a
// RetryStrategy using cfg.Retry, or a single attempt when it is nil.
func NewExecutor(reg *Registry, cfg Config, opts ...Option) (*Executor, error) {
	if reg == nil {
		return nil, errors.New("new executor: registry must not be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("new executor: %w", err)
	}
	e := &Executor{registry: reg, cfg: cfg}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.global == nil {
		e.global = LogExceptionHandler{Logger: e.logger}
	}
	if e.strategy == nil {
		base, err := NewStrategy(cfg.Mode, e.global)
		if err != nil {
			return nil, fmt.Errorf("new executor: %w", err)
		}
		// A single-attempt policy still honours per-handler Retrier overrides.
		policy := RetryPolicy{MaxAttempts: 1}
		if cfg.Retry != nil {
			policy = *cfg.Retry
		}
		e.strategy = &RetryStrategy{Base: base, Policy: policy, Logger: e.logger}
	}
	return e, nil
}

// Status returns the current lifecycle state.
func (e *Executor) Status() Status { return Status(e.status.Load()) }

// LastExecutionTime returns the wall time of the last finished run. It stays
// zero when performance monitoring is disabled.
func (e *Executor) LastExecutionTime() time.Duration {
	return time.Duration(e.lastElapsed.Load())
}

// Execute runs every enabled handler in registry order. Handler failures
// are settled by the strategy and do not surface here unless
// PropagateErrors is set; a strategy failure or cancellation always does.
func (e *Executor) Execute(ctx context.Context, pctx *Context) error {
	if pctx == nil {
		return errors.New("execute: context must not be nil")
	}
	handlers := e.registry.Ordered()
	execID := pctx.ExecutionID()
	start := time.Now()

	e.status.Store(int32(StatusRunning))
	e.trace("chain started", "execution_id", execID, "handlers", len(handlers), "mode", e.cfg.Mode)
	e.emit(Event{Type: EventChainStarted, ExecutionID: execID, Status: StatusRunning})

	for _, h := range handlers {
		if err := ctx.Err(); err != nil {
			return e.finish(pctx, start, StatusCancelled,
				fmt.Errorf("chain cancelled before handler %q: %w", h.Name(), err))
		}
		if en, ok := h.(Enabler); ok && !en.Enabled(pctx) {
			e.trace("handler disabled, skipping", "execution_id", execID, "handler", h.Name())
			e.emit(Event{Type: EventHandlerSkipped, ExecutionID: execID, Handler: h.Name()})
			continue
		}
		stop, err := e.runHandler(ctx, h, pctx)
		if err != nil {
			var se *StrategyError
			if errors.As(err, &se) {
				return e.finish(pctx, start, StatusFailed, err)
			}
			if ctx.Err() != nil {
				return e.finish(pctx, start, StatusCancelled, err)
			}
			return e.finish(pctx, start, StatusCompleted, err)
		}
		if stop {
			if ctx.Err() != nil && pctx.Err() != nil {
				return e.finish(pctx, start, StatusCancelled,
					fmt.Errorf("chain cancelled at handler %q: %w", h.Name(), ctx.Err()))
			}
			e.trace("chain stopped early", "execution_id", execID, "handler", h.Name(), "broken", pctx.IsBroken())
			break
		}
	}
	return e.finish(pctx, start, StatusCompleted, nil)
}

func (e *Executor) finish(pctx *Context, start time.Time, status Status, err error) error {
	elapsed := time.Since(start)
	if e.cfg.EnablePerformanceMonitoring {
		e.lastElapsed.Store(int64(elapsed))
		e.logger.Info("chain finished",
			"execution_id", pctx.ExecutionID(), "status", status, "elapsed", elapsed)
	}
	e.status.Store(int32(status))

	evType := EventChainCompleted
	switch status {
	case StatusFailed:
		evType = EventChainFailed
		if err != nil {
			pctx.SetErr(err)
		}
	case StatusCancelled:
		evType = EventChainCancelled
	}
	e.emit(Event{Type: evType, ExecutionID: pctx.ExecutionID(), Status: status, Elapsed: elapsed, Err: err})
	return err
}

// runHandler invokes h until it succeeds or the strategy stops retrying. It
// reports whether the chain must stop after h.
func (e *Executor) runHandler(ctx context.Context, h Handler, pctx *Context) (bool, error) {
	name := h.Name()
	execID := pctx.ExecutionID()
	for attempt := 1; ; attempt++ {
		pctx.setCurrentHandler(name)
		e.trace("executing handler", "execution_id", execID, "handler", name, "attempt", attempt)
		e.emit(Event{Type: EventHandlerStarted, ExecutionID: execID, Handler: name, Attempt: attempt})

		began := time.Now()
		res, err := e.invoke(ctx, h, pctx)
		elapsed := time.Since(began)

		if res != nil {
			res.Handler = name
			if e.cfg.EnablePerformanceMonitoring {
				res.Elapsed = elapsed
			}
			pctx.SetResult(name, res)
		}
		e.postHandle(h, pctx, err)
		if err == nil {
			e.emit(Event{Type: EventHandlerCompleted, ExecutionID: execID, Handler: name, Attempt: attempt, Elapsed: elapsed})
			return pctx.IsBroken(), nil
		}

		failure := &HandlerError{Handler: name, Attempt: attempt, Err: err}
		e.emit(Event{Type: EventHandlerFailed, ExecutionID: execID, Handler: name, Attempt: attempt, Elapsed: elapsed, Err: failure})

		verdict, serr := e.resolve(ctx, h, pctx, failure)
		if serr != nil {
			return true, serr
		}
		e.trace("handler failure resolved", "execution_id", execID, "handler", name, "verdict", verdict, "error", err)

		switch verdict {
		case Retry:
			e.emit(Event{Type: EventHandlerRetrying, ExecutionID: execID, Handler: name, Attempt: attempt, Verdict: verdict, Err: failure})
			continue
		case Terminate:
			if e.cfg.PropagateErrors {
				return true, failure
			}
			return true, nil
		default:
			return pctx.IsBroken(), nil
		}
	}
}

// resolve runs the strategy, turning panics into strategy failures.
func (e *Executor) resolve(ctx context.Context, h Handler, pctx *Context, failure *HandlerError) (v Verdict, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = Terminate, &StrategyError{Handler: failure.Handler, Err: fmt.Errorf("strategy panicked: %v", r)}
		}
	}()
	v, err = e.strategy.Resolve(ctx, h, pctx, failure)
	if err != nil {
		var se *StrategyError
		if !errors.As(err, &se) {
			err = &StrategyError{Handler: failure.Handler, Err: err}
		}
	}
	return v, err
}

type outcome struct {
	res *Result
	err error
}

// invoke calls h.Handle, enforcing its timeout when one applies.
func (e *Executor) invoke(ctx context.Context, h Handler, pctx *Context) (*Result, error) {
	timeout := e.cfg.HandlerTimeout
	if t, ok := h.(Timeouter); ok && t.Timeout() > 0 {
		timeout = t.Timeout()
	}
	if timeout <= 0 {
		return safeHandle(ctx, h, pctx)
	}

	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	done := make(chan outcome, 1)
	go func() {
		res, err := safeHandle(tctx, h, pctx)
		done <- outcome{res: res, err: err}
	}()
	select {
	case out := <-done:
		if out.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return out.res, &TimeoutError{Handler: h.Name(), Timeout: timeout}
		}
		return out.res, out.err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The handler goroutine is abandoned; its late result is discarded.
		return nil, &TimeoutError{Handler: h.Name(), Timeout: timeout}
	}
}

// postHandle calls the PostHandler hook, if any. A panic there is logged
// and does not change the outcome of the invocation.
func (e *Executor) postHandle(h Handler, pctx *Context, err error) {
	ph, ok := h.(PostHandler)
	if !ok {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("post-handle hook panicked",
				"execution_id", pctx.ExecutionID(), "handler", h.Name(), "panic", r)
		}
	}()
	ph.PostHandle(pctx, err)
}

// safeHandle converts a handler panic into a *PanicError.
func safeHandle(ctx context.Context, h Handler, pctx *Context) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, &PanicError{Handler: h.Name(), Value: r, Stack: debug.Stack()}
		}
	}()
	return h.Handle(ctx, pctx)
}

func (e *Executor) trace(msg string, args ...any) {
	level := slog.LevelDebug
	if e.cfg.EnableVerboseLogging {
		level = slog.LevelInfo
	}
	e.logger.Log(context.Background(), level, msg, args...)
}

func (e *Executor) emit(ev Event) {
	if e.onEvent == nil {
		return
	}
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.onEvent(ev)
}
