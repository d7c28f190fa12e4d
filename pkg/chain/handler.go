package chain

import (
	"context"
	"time"
)

// Handler is one step of a chain.
//
// Handle performs the step's work; a nil Result records nothing. A returned
// error is routed through the executor's exception strategy, which first
// offers it to HandleException: returning true there means the handler
// recovered and the chain continues regardless of mode.
type Handler interface {
	Name() string
	Order() int
	Handle(ctx context.Context, pctx *Context) (*Result, error)
	HandleException(pctx *Context, err error) bool
}

// Timeouter is implemented by handlers with their own deadline. A
// non-positive value falls back to the executor's configured default.
type Timeouter interface {
	Timeout() time.Duration
}

// Retrier is implemented by handlers that override the executor's retry policy.
type Retrier interface {
	RetryPolicy() *RetryPolicy
}

// Enabler is implemented by handlers that may be skipped for an execution.
type Enabler interface {
	Enabled(pctx *Context) bool
}

// PostHandler is implemented by handlers that want a callback after every
// invocation, including each retry attempt. err is nil on success and is
// the failure as the strategy will see it otherwise.
type PostHandler interface {
	PostHandle(pctx *Context, err error)
}

// Base supplies the default Order and HandleException for embedding.
type Base struct{}

func (Base) Order() int                           { return 0 }
func (Base) HandleException(*Context, error) bool { return false }

// HandleFunc is the signature of a handler body.
type HandleFunc func(ctx context.Context, pctx *Context) (*Result, error)

// FuncHandler adapts a plain function into a Handler.
type FuncHandler struct {
	name     string
	fn       HandleFunc
	Priority int
	Recover  func(pctx *Context, err error) bool
}

// Func returns a FuncHandler named name that runs fn.
func Func(name string, fn HandleFunc) *FuncHandler {
	return &FuncHandler{name: name, fn: fn}
}

func (h *FuncHandler) Name() string { return h.name }
func (h *FuncHandler) Order() int   { return h.Priority }

func (h *FuncHandler) Handle(ctx context.Context, pctx *Context) (*Result, error) {
	return h.fn(ctx, pctx)
}

func (h *FuncHandler) HandleException(pctx *Context, err error) bool {
	if h.Recover == nil {
		return false
	}
	return h.Recover(pctx, err)
}
