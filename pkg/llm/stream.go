package llm

import (
	"sort"
	"strings"
)

// ToolCallDelta is one tool-call fragment from a streaming chunk. Providers
// key fragments by a positional index; the name arrives once (or split
// across chunks) and the arguments arrive as raw JSON string pieces that
// only parse once fully accumulated.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Chunk is one provider delta in neutral form
type Chunk struct {
	Content   string
	ToolCalls []ToolCallDelta
}

// ChunkProcessor accumulates a provider turn from incremental deltas.
// Content fragments are forwarded to the sink immediately (at-least-once,
// in order); tool-call fragments are merged into per-index accumulators.
// A turn may carry both text and tool calls; neither side is dropped.
type ChunkProcessor struct {
	text  strings.Builder
	calls map[int]*ToolCall
	seen  bool
	sink  Sink
}

// NewChunkProcessor creates a processor forwarding text to sink (may be nil)
func NewChunkProcessor(sink Sink) *ChunkProcessor {
	return &ChunkProcessor{
		calls: make(map[int]*ToolCall),
		sink:  sink,
	}
}

// Feed merges one chunk into the accumulators
func (p *ChunkProcessor) Feed(chunk Chunk) {
	if chunk.Content != "" {
		p.text.WriteString(chunk.Content)
		if p.sink != nil {
			p.sink(chunk.Content)
		}
	}

	for _, delta := range chunk.ToolCalls {
		p.seen = true
		acc, ok := p.calls[delta.Index]
		if !ok {
			acc = &ToolCall{}
			p.calls[delta.Index] = acc
		}
		// First non-empty value wins for identity fields
		if acc.ID == "" {
			acc.ID = delta.ID
		}
		if acc.Name == "" {
			acc.Name = delta.Name
		}
		// Arguments are a serialized-JSON string built incrementally
		acc.Arguments += delta.Arguments
	}
}

// Finish returns the accumulated turn: full text, tool calls in index
// order, and whether any tool-call fragment was seen at all.
func (p *ChunkProcessor) Finish() (string, []ToolCall, bool) {
	indexes := make([]int, 0, len(p.calls))
	for i := range p.calls {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)

	calls := make([]ToolCall, 0, len(indexes))
	for _, i := range indexes {
		calls = append(calls, *p.calls[i])
	}

	return p.text.String(), calls, p.seen
}
