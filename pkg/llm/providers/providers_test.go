package providers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/generative-ai-go/genai"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/ravi-parthasarathy/handlerchain/pkg/llm"
)

// ─── OpenAI ───────────────────────────────────────────────────────────────────

func newTestOpenAI(t *testing.T, handler http.HandlerFunc) *openaiClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := openai.DefaultConfig("test-key")
	cfg.BaseURL = srv.URL
	c, err := newOpenAIClient("gpt-test", cfg)
	require.NoError(t, err)
	return c
}

func TestOpenAIComplete(t *testing.T) {
	t.Parallel()
	var got openai.ChatCompletionRequest
	c := newTestOpenAI(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-test",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "pong"}, "finish_reason": "length"}],
			"usage": {"prompt_tokens": 9, "completion_tokens": 1, "total_tokens": 10}
		}`)
	})

	resp, err := c.Complete(t.Context(), llm.GenerateRequest{
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "ping")},
		System:   "be brief",
	})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Text())
	assert.Equal(t, llm.StopReasonMaxTokens, resp.StopReason)
	assert.Equal(t, llm.Usage{InputTokens: 9, OutputTokens: 1}, resp.Usage)

	require.Len(t, got.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, got.Messages[0].Role)
	assert.Equal(t, "ping", got.Messages[1].Content)
	assert.Equal(t, defaultMaxTokens, got.MaxTokens)
}

func TestOpenAIComplete_AuthError(t *testing.T) {
	t.Parallel()
	c := newTestOpenAI(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error": {"message": "bad key", "type": "invalid_request_error"}}`)
	})

	_, err := c.Complete(t.Context(), llm.GenerateRequest{
		Messages: []llm.Message{llm.TextMessage(llm.RoleUser, "ping")},
	})
	var authErr *llm.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Code)
}

func TestBuildMessages_Roles(t *testing.T) {
	t.Parallel()
	got := buildMessages([]llm.Message{
		llm.TextMessage(llm.RoleUser, "q"),
		llm.TextMessage(llm.RoleAssistant, "a"),
	}, "")
	require.Len(t, got, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, got[0].Role)
	assert.Equal(t, openai.ChatMessageRoleAssistant, got[1].Role)
}

// ─── Gemini ───────────────────────────────────────────────────────────────────

func TestBuildContents(t *testing.T) {
	t.Parallel()
	history, last := buildContents([]llm.Message{
		llm.TextMessage(llm.RoleUser, "first"),
		llm.TextMessage(llm.RoleAssistant, "reply"),
		{Role: llm.RoleUser},
		llm.TextMessage(llm.RoleUser, "second"),
	})
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
	require.NotNil(t, last)
	assert.Equal(t, []genai.Part{genai.Text("second")}, last.Parts)

	history, last = buildContents(nil)
	assert.Nil(t, history)
	assert.Nil(t, last)
}

func TestConvertGeminiResponse(t *testing.T) {
	t.Parallel()
	got := convertGeminiResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content:      &genai.Content{Role: "model", Parts: []genai.Part{genai.Text("hello")}},
			FinishReason: genai.FinishReasonMaxTokens,
		}},
		UsageMetadata: &genai.UsageMetadata{PromptTokenCount: 10, CandidatesTokenCount: 5},
	})
	assert.Equal(t, "hello", got.Text())
	assert.Equal(t, llm.StopReasonMaxTokens, got.StopReason)
	assert.Equal(t, llm.Usage{InputTokens: 10, OutputTokens: 5}, got.Usage)

	empty := convertGeminiResponse(&genai.GenerateContentResponse{})
	assert.Empty(t, empty.Content)
	assert.Equal(t, llm.StopReasonEndTurn, empty.StopReason)
}

func TestMapGeminiError(t *testing.T) {
	t.Parallel()
	assert.NoError(t, mapGeminiError(nil))
	assert.True(t, llm.Retryable(mapGeminiError(&googleapi.Error{Code: 429, Message: "quota"})))
	assert.True(t, llm.Retryable(mapGeminiError(&googleapi.Error{Code: 503, Message: "unavailable"})))

	var ae *llm.AuthError
	assert.ErrorAs(t, mapGeminiError(&googleapi.Error{Code: 403, Message: "denied"}), &ae)

	plain := errors.New("dial tcp: refused")
	err := mapGeminiError(plain)
	assert.ErrorIs(t, err, plain)
	assert.False(t, llm.Retryable(err))
}
