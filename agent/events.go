package agent

import "context"

// EventType classifies one stream event
type EventType string

const (
	EventText     EventType = "text"
	EventTool     EventType = "tool"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// StreamEvent is one unit of observable progress from a running check.
// Events are delivered in causal order and complete (or error) is always
// terminal.
type StreamEvent struct {
	Type    EventType `json:"type"`
	Content string    `json:"content"`
}

// Emitter pushes events onto a bounded channel, dropping nothing: a full
// channel blocks the loop until the transport drains it or the context
// is cancelled.
type Emitter struct {
	ch chan StreamEvent
}

// NewEmitter creates an emitter with the given queue size
func NewEmitter(size int) *Emitter {
	if size <= 0 {
		size = 1
	}
	return &Emitter{ch: make(chan StreamEvent, size)}
}

// Events is the read side consumed by the transport
func (e *Emitter) Events() <-chan StreamEvent {
	return e.ch
}

// Emit delivers one event, giving up if the context is cancelled
func (e *Emitter) Emit(ctx context.Context, typ EventType, content string) {
	select {
	case e.ch <- StreamEvent{Type: typ, Content: content}:
	case <-ctx.Done():
	}
}

// Close signals that no further events will be emitted
func (e *Emitter) Close() {
	close(e.ch)
}
