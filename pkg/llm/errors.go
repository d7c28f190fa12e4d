package llm

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"
)

// LLMError is the base error type for all LLM client errors.
type LLMError struct {
	Code    int
	Message string
	Cause   error
}

func (e *LLMError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("llm error %d: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("llm error %d: %s", e.Code, e.Message)
}

func (e *LLMError) Unwrap() error { return e.Cause }

// RateLimitError is returned when the provider rate-limits the request.
type RateLimitError struct{ LLMError }

// ServerError is returned on 5xx responses from the provider.
type ServerError struct{ LLMError }

// AuthError is returned on authentication/authorization failures.
type AuthError struct{ LLMError }

// InvalidRequestError is returned when the provider rejects the request
// itself, e.g. an oversized prompt or unknown model.
type InvalidRequestError struct{ LLMError }

// ClassifyStatus maps an HTTP status from a provider to a typed error.
func ClassifyStatus(status int, message string, cause error) error {
	base := LLMError{Code: status, Message: message, Cause: cause}
	switch {
	case status == 429:
		return &RateLimitError{LLMError: base}
	case status == 401 || status == 403:
		return &AuthError{LLMError: base}
	case status >= 500:
		return &ServerError{LLMError: base}
	case status >= 400:
		return &InvalidRequestError{LLMError: base}
	}
	return &base
}

// Retryable returns true if the error is transient and the request may be retried.
func Retryable(err error) bool {
	var rl *RateLimitError
	var se *ServerError
	return errors.As(err, &rl) || errors.As(err, &se)
}

// WithRetry retries fn up to maxAttempts on retryable errors using
// exponential backoff from base (capped at 30s) with jitter. It respects
// context cancellation.
func WithRetry(ctx context.Context, maxAttempts int, base time.Duration, fn func() error) error {
	var lastErr error
	for i := range maxAttempts {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !Retryable(lastErr) {
			return lastErr
		}
		if i == maxAttempts-1 {
			break
		}
		wait := base << uint(i)
		if wait > 30*time.Second || wait <= 0 {
			wait = 30 * time.Second
		}
		wait = wait/4*3 + time.Duration(rand.Float64()*0.5*float64(wait))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return fmt.Errorf("max retries (%d) exceeded: %w", maxAttempts, lastErr)
}
