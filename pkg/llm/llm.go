// Package llm provides the LLM provider abstraction layer: one streaming
// turn contract implemented per vendor, plus the chunk accumulation shared
// by all streaming adapters.
package llm

import (
	"context"
	"fmt"
)

// ExtractionMode says how tool calls come back from a provider
type ExtractionMode string

const (
	// ModeNative providers emit structured tool-call deltas in the stream
	ModeNative ExtractionMode = "native"
	// ModeMarkup providers embed tool calls as XML-like markup in plain text
	ModeMarkup ExtractionMode = "markup"
)

// ImageAttachment is one inline image on a user message
type ImageAttachment struct {
	MediaType string `json:"media_type"` // e.g. "image/png"
	Base64    string `json:"base64"`
}

// Message is a chat message in provider-neutral form
type Message struct {
	Role       string            `json:"role"` // system, user, assistant, tool
	Content    string            `json:"content"`
	Images     []ImageAttachment `json:"images,omitempty"`
	ToolCalls  []ToolCall        `json:"tool_calls,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully accumulated tool invocation from a model turn.
// Arguments is the raw JSON string as the provider produced it.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolSpec describes one callable tool in OpenAI function-schema form
type ToolSpec struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Usage is cumulative token accounting for a turn
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// TurnResult is what one provider turn produced once the stream ended
type TurnResult struct {
	Text        string
	ToolCalls   []ToolCall
	SawToolCall bool
	Usage       *Usage
}

// Sink receives each text fragment as it arrives, in order
type Sink func(delta string)

// Provider is one streaming chat-completion backend
type Provider interface {
	Name() string
	Mode() ExtractionMode

	// StreamTurn runs one model turn: every content fragment is forwarded
	// to sink before the call returns, and the returned TurnResult holds
	// the accumulated text and any tool calls. The context cancels the
	// in-flight request.
	StreamTurn(ctx context.Context, messages []Message, tools []ToolSpec, sink Sink) (*TurnResult, error)
}

// Config holds provider connection settings
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
}

// New constructs a provider by name
func New(name string, cfg Config) (Provider, error) {
	switch name {
	case "openrouter":
		return NewOpenRouterProvider(cfg), nil
	case "anthropic":
		return NewAnthropicProvider(cfg), nil
	case "gemini":
		return NewGeminiProvider(cfg)
	case "gemini-compat":
		return NewGeminiCompatProvider(cfg), nil
	}
	return nil, fmt.Errorf("unknown provider: %s", name)
}
