package llm

import (
	"fmt"
	"strings"
)

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ContentType identifies what kind of content a block holds.
type ContentType string

const ContentTypeText ContentType = "text"

// ContentBlock is one element in a message's content array.
type ContentBlock struct {
	Type ContentType `json:"type"`
	Text string      `json:"text,omitempty"`
}

// Message is one turn in a conversation.
type Message struct {
	Role    Role           `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage is a convenience constructor for a plain-text message.
func TextMessage(role Role, text string) Message {
	return Message{
		Role:    role,
		Content: []ContentBlock{{Type: ContentTypeText, Text: text}},
	}
}

// GenerateRequest is the unified input to the LLM client.
type GenerateRequest struct {
	Model     string    `json:"model"`
	Messages  []Message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens,omitempty"`
}

// StopReason explains why generation stopped.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// GenerateResponse is the unified output from the LLM client.
type GenerateResponse struct {
	Content    []ContentBlock `json:"content"`
	StopReason StopReason     `json:"stop_reason"`
	Usage      Usage          `json:"usage"`
}

// Text concatenates the response's text blocks.
func (r GenerateResponse) Text() string {
	var sb strings.Builder
	for _, b := range r.Content {
		if b.Type == ContentTypeText {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// ParseModelID splits "provider:model-name" into its parts. Both parts must
// be non-empty.
func ParseModelID(id string) (provider, modelName string, err error) {
	p, m, ok := strings.Cut(id, ":")
	if !ok {
		return "", "", fmt.Errorf("model ID %q: missing 'provider:model-name' format", id)
	}
	if p == "" {
		return "", "", fmt.Errorf("model ID %q: empty provider name", id)
	}
	if m == "" {
		return "", "", fmt.Errorf("model ID %q: empty model name", id)
	}
	return p, m, nil
}
