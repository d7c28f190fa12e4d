package chain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors matched with errors.Is against the typed errors below.
var (
	ErrDuplicateName   = errors.New("duplicate handler name")
	ErrNotFound        = errors.New("handler not found")
	ErrTypeMismatch    = errors.New("attribute type mismatch")
	ErrHandlerFailure  = errors.New("handler failure")
	ErrStrategyFailure = errors.New("exception strategy failure")
	ErrInvalidHandler  = errors.New("invalid handler")
)

// DuplicateNameError is returned when a handler name is already registered.
type DuplicateNameError struct {
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("handler %q already registered", e.Name)
}

func (e *DuplicateNameError) Is(target error) bool { return target == ErrDuplicateName }

// NotFoundError is returned when a named handler does not exist.
type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("handler %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TypeMismatchError is returned by typed attribute and result reads when the
// stored value has a different dynamic type.
type TypeMismatchError struct {
	Key  string
	Want string
	Got  string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("key %q: want %s, got %s", e.Key, e.Want, e.Got)
}

func (e *TypeMismatchError) Is(target error) bool { return target == ErrTypeMismatch }

// HandlerError wraps a failure raised while a handler ran.
type HandlerError struct {
	Handler string
	Attempt int
	Err     error
}

func (e *HandlerError) Error() string {
	if e.Attempt > 1 {
		return fmt.Sprintf("handler %q (attempt %d): %v", e.Handler, e.Attempt, e.Err)
	}
	return fmt.Sprintf("handler %q: %v", e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

func (e *HandlerError) Is(target error) bool { return target == ErrHandlerFailure }

// StrategyError reports that resolving a handler failure itself failed:
// self-recovery or the global exception handler raised. It always forces the
// executor into StatusFailed.
type StrategyError struct {
	Handler string
	Err     error
}

func (e *StrategyError) Error() string {
	return fmt.Sprintf("exception strategy for handler %q: %v", e.Handler, e.Err)
}

func (e *StrategyError) Unwrap() error { return e.Err }

func (e *StrategyError) Is(target error) bool { return target == ErrStrategyFailure }

// TimeoutError is the failure recorded when a handler exceeds its deadline.
type TimeoutError struct {
	Handler string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("handler %q timed out after %s", e.Handler, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return context.DeadlineExceeded }

// PanicError is the failure recorded when a handler panics.
type PanicError struct {
	Handler string
	Value   any
	Stack   []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %q panicked: %v", e.Handler, e.Value)
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as non-retryable. The default retry predicate gives up
// immediately on permanent errors.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}
