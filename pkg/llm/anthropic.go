package llm

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider streams turns from the Anthropic Messages API
type AnthropicProvider struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropicProvider creates an Anthropic provider
func NewAnthropicProvider(cfg Config) *AnthropicProvider {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicProvider{
		client:      anthropic.NewClient(opts...),
		model:       cfg.Model,
		maxTokens:   int64(cfg.MaxTokens),
		temperature: cfg.Temperature,
	}
}

func (p *AnthropicProvider) Name() string         { return "anthropic" }
func (p *AnthropicProvider) Mode() ExtractionMode { return ModeNative }

// StreamTurn runs one streaming turn. Text deltas go to the sink as they
// arrive; tool_use blocks are reassembled from input_json_delta fragments.
func (p *AnthropicProvider) StreamTurn(ctx context.Context, messages []Message, tools []ToolSpec, sink Sink) (*TurnResult, error) {
	anthropicMessages, systemPrompt := toAnthropicMessages(messages)

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(p.model),
		MaxTokens:   p.maxTokens,
		Messages:    anthropicMessages,
		Temperature: anthropic.Float(p.temperature),
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	if len(tools) > 0 {
		params.Tools = toAnthropicTools(tools)
	}

	stream := p.client.Messages.NewStreaming(ctx, params)

	proc := NewChunkProcessor(sink)
	usage := &Usage{}

	for stream.Next() {
		event := stream.Current()

		switch eventVariant := event.AsAny().(type) {
		case anthropic.MessageStartEvent:
			usage.PromptTokens = int(eventVariant.Message.Usage.InputTokens)
		case anthropic.ContentBlockStartEvent:
			if block, ok := eventVariant.ContentBlock.AsAny().(anthropic.ToolUseBlock); ok {
				proc.Feed(Chunk{ToolCalls: []ToolCallDelta{{
					Index: int(eventVariant.Index),
					ID:    block.ID,
					Name:  block.Name,
				}}})
			}
		case anthropic.ContentBlockDeltaEvent:
			switch deltaVariant := eventVariant.Delta.AsAny().(type) {
			case anthropic.TextDelta:
				proc.Feed(Chunk{Content: deltaVariant.Text})
			case anthropic.InputJSONDelta:
				proc.Feed(Chunk{ToolCalls: []ToolCallDelta{{
					Index:     int(eventVariant.Index),
					Arguments: deltaVariant.PartialJSON,
				}}})
			}
		case anthropic.MessageDeltaEvent:
			usage.CompletionTokens = int(eventVariant.Usage.OutputTokens)
		}
	}
	if stream.Err() != nil {
		return nil, fmt.Errorf("stream error: %w", stream.Err())
	}
	usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens

	text, calls, saw := proc.Finish()
	return &TurnResult{Text: text, ToolCalls: calls, SawToolCall: saw, Usage: usage}, nil
}

// toAnthropicMessages converts neutral messages to the Messages API shape.
// The system prompt is returned separately since Anthropic carries it
// outside the message list.
func toAnthropicMessages(messages []Message) ([]anthropic.MessageParam, string) {
	var result []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			var blocks []anthropic.ContentBlockParamUnion
			for _, img := range msg.Images {
				blocks = append(blocks, anthropic.NewImageBlockBase64(img.MediaType, img.Base64))
			}
			if msg.Content != "" || len(blocks) == 0 {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			result = append(result, anthropic.NewUserMessage(blocks...))
		case "assistant":
			if len(msg.ToolCalls) > 0 {
				param := anthropic.MessageParam{Role: anthropic.MessageParamRoleAssistant}
				if msg.Content != "" {
					param.Content = append(param.Content, anthropic.NewTextBlock(msg.Content))
				}
				for _, tc := range msg.ToolCalls {
					var input map[string]interface{}
					_ = json.Unmarshal([]byte(tc.Arguments), &input)
					param.Content = append(param.Content, anthropic.ContentBlockParamUnion{
						OfToolUse: &anthropic.ToolUseBlockParam{
							ID:    tc.ID,
							Name:  tc.Name,
							Input: input,
						},
					})
				}
				result = append(result, param)
			} else {
				result = append(result, anthropic.NewAssistantMessage(
					anthropic.NewTextBlock(msg.Content),
				))
			}
		case "tool":
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		}
	}

	return result, systemPrompt
}

// toAnthropicTools converts tool specs to Anthropic input schemas
func toAnthropicTools(tools []ToolSpec) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, t := range tools {
		properties, _ := t.Parameters["properties"].(map[string]interface{})
		required, _ := t.Parameters["required"].([]string)

		toolParam := anthropic.ToolParam{
			Name:        t.Name,
			Description: anthropic.String(t.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   required,
			},
		}
		result[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return result
}

var _ Provider = (*AnthropicProvider)(nil)
