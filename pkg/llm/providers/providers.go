// Package providers registers LLM provider adapters.
// Import this package with a blank identifier to activate all providers:
//
//	import _ "github.com/ravi-parthasarathy/handlerchain/pkg/llm/providers"
package providers

import "time"

// Shared request defaults for every adapter.
const (
	maxAttempts      = 4
	retryBase        = time.Second
	defaultMaxTokens = 4096
)
