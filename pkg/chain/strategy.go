package chain

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"

	"gopkg.in/yaml.v3"
)

// Verdict tells the executor what to do after a handler failure.
type Verdict int

const (
	Continue Verdict = iota
	Terminate
	Skip
	Retry
)

func (v Verdict) String() string {
	switch v {
	case Continue:
		return "CONTINUE"
	case Terminate:
		return "TERMINATE"
	case Skip:
		return "SKIP"
	case Retry:
		return "RETRY"
	default:
		return fmt.Sprintf("Verdict(%d)", int(v))
	}
}

// Mode selects how unrecovered handler failures affect the rest of the chain.
type Mode int

const (
	// BreakPipeline stops the chain at the first unrecovered failure.
	BreakPipeline Mode = iota
	// ContinuePipeline logs the failure and moves on to the next handler.
	ContinuePipeline
)

func (m Mode) String() string {
	switch m {
	case BreakPipeline:
		return "BREAK_PIPELINE"
	case ContinuePipeline:
		return "CONTINUE_PIPELINE"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode accepts BREAK_PIPELINE or CONTINUE_PIPELINE in any case, with
// dashes or underscores.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", "_")) {
	case "BREAK_PIPELINE", "BREAK":
		return BreakPipeline, nil
	case "CONTINUE_PIPELINE", "CONTINUE":
		return ContinuePipeline, nil
	}
	return 0, fmt.Errorf("unknown exception handling mode %q", s)
}

func (m Mode) MarshalYAML() (any, error) { return m.String(), nil }

func (m *Mode) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseMode(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// ExceptionHandler is the chain-wide fallback for failures a handler did not
// recover from itself. A returned error is a strategy failure.
type ExceptionHandler interface {
	HandleException(pctx *Context, failure *HandlerError) error
}

// ExceptionHandlerFunc adapts a function into an ExceptionHandler.
type ExceptionHandlerFunc func(pctx *Context, failure *HandlerError) error

func (f ExceptionHandlerFunc) HandleException(pctx *Context, failure *HandlerError) error {
	return f(pctx, failure)
}

// LogExceptionHandler logs unrecovered failures.
type LogExceptionHandler struct {
	Logger *slog.Logger
}

func (h LogExceptionHandler) HandleException(pctx *Context, failure *HandlerError) error {
	logger := h.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Error("handler failed",
		"execution_id", pctx.ExecutionID(),
		"handler", failure.Handler,
		"attempt", failure.Attempt,
		"error", failure.Err)
	return nil
}

// Strategy decides the Verdict for a handler failure. A non-nil error means
// the strategy itself failed.
type Strategy interface {
	Resolve(ctx context.Context, h Handler, pctx *Context, failure *HandlerError) (Verdict, error)
}

// ModeStrategy applies self-recovery, then the global handler, then Mode.
type ModeStrategy struct {
	Mode   Mode
	Global ExceptionHandler
}

// NewStrategy returns the strategy for mode. A nil global handler logs with
// slog.Default().
func NewStrategy(mode Mode, global ExceptionHandler) (*ModeStrategy, error) {
	if mode != BreakPipeline && mode != ContinuePipeline {
		return nil, fmt.Errorf("new strategy: unsupported mode %s", mode)
	}
	if global == nil {
		global = LogExceptionHandler{}
	}
	return &ModeStrategy{Mode: mode, Global: global}, nil
}

func (s *ModeStrategy) Resolve(_ context.Context, h Handler, pctx *Context, failure *HandlerError) (Verdict, error) {
	handled, err := selfRecover(h, pctx, failure)
	if err != nil {
		return Terminate, err
	}
	if handled {
		return Continue, nil
	}
	pctx.SetErr(failure)
	if err := callGlobal(s.Global, pctx, failure); err != nil {
		return Terminate, err
	}
	if s.Mode == ContinuePipeline {
		return Continue, nil
	}
	return Terminate, nil
}

func selfRecover(h Handler, pctx *Context, failure *HandlerError) (handled bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{Handler: failure.Handler, Err: &PanicError{
				Handler: failure.Handler, Value: r, Stack: debug.Stack(),
			}}
		}
	}()
	return h.HandleException(pctx, failure.Err), nil
}

func callGlobal(g ExceptionHandler, pctx *Context, failure *HandlerError) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &StrategyError{Handler: failure.Handler, Err: fmt.Errorf("global exception handler panicked: %v", r)}
		}
	}()
	if gerr := g.HandleException(pctx, failure); gerr != nil {
		return &StrategyError{Handler: failure.Handler, Err: gerr}
	}
	return nil
}
