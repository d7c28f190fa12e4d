package chain

import (
	"fmt"
	"time"
)

// Result is the optional outcome a handler reports for one invocation.
type Result struct {
	Handler string        `json:"handler"`
	Success bool          `json:"success"`
	Code    string        `json:"code,omitempty"`
	Message string        `json:"message,omitempty"`
	Data    any           `json:"data,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Succeeded returns a successful Result carrying data.
func Succeeded(data any) *Result {
	return &Result{Success: true, Data: data}
}

// Failed returns an unsuccessful Result. Returning it with a nil error records
// the failure without routing it through the exception strategy.
func Failed(code, message string) *Result {
	return &Result{Code: code, Message: message}
}

func (r *Result) String() string {
	if r.Success {
		return fmt.Sprintf("%s: ok", r.Handler)
	}
	if r.Code != "" {
		return fmt.Sprintf("%s: failed [%s] %s", r.Handler, r.Code, r.Message)
	}
	return fmt.Sprintf("%s: failed %s", r.Handler, r.Message)
}
