package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

const geminiCompatBaseURL = "https://generativelanguage.googleapis.com/v1beta/openai/"

// GeminiCompatProvider talks to Gemini through its OpenAI-compatibility
// endpoint. Tool calls come back as markup in the text stream rather than
// structured deltas, so this provider reports ModeMarkup and never sends
// function schemas on the wire.
type GeminiCompatProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewGeminiCompatProvider creates a Gemini OpenAI-compat provider
func NewGeminiCompatProvider(cfg Config) *GeminiCompatProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = geminiCompatBaseURL
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &GeminiCompatProvider{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
	}
}

func (p *GeminiCompatProvider) Name() string         { return "gemini-compat" }
func (p *GeminiCompatProvider) Mode() ExtractionMode { return ModeMarkup }

// StreamTurn streams a turn as plain text. Any tool invocation is embedded
// in the text as markup and extracted downstream.
func (p *GeminiCompatProvider) StreamTurn(ctx context.Context, messages []Message, tools []ToolSpec, sink Sink) (*TurnResult, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    toOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	proc := NewChunkProcessor(sink)
	var usage *Usage

	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream recv failed: %w", err)
		}

		if response.Usage != nil {
			usage = &Usage{
				PromptTokens:     response.Usage.PromptTokens,
				CompletionTokens: response.Usage.CompletionTokens,
				TotalTokens:      response.Usage.TotalTokens,
			}
		}

		if len(response.Choices) == 0 {
			continue
		}
		proc.Feed(Chunk{Content: response.Choices[0].Delta.Content})
	}

	text, calls, saw := proc.Finish()
	return &TurnResult{Text: text, ToolCalls: calls, SawToolCall: saw, Usage: usage}, nil
}

var _ Provider = (*GeminiCompatProvider)(nil)
