package agent

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/veribrand/brandgate/pkg/cache"
	"github.com/veribrand/brandgate/pkg/config"
	"github.com/veribrand/brandgate/pkg/llm"
	"github.com/veribrand/brandgate/tools"
)

// scriptedProvider plays back canned turns in order
type scriptedProvider struct {
	turns []llm.TurnResult
	errs  []error
	calls int
}

func (p *scriptedProvider) Name() string             { return "scripted" }
func (p *scriptedProvider) Mode() llm.ExtractionMode { return llm.ModeNative }

func (p *scriptedProvider) StreamTurn(_ context.Context, _ []llm.Message, _ []llm.ToolSpec, sink llm.Sink) (*llm.TurnResult, error) {
	i := p.calls
	p.calls++
	if i < len(p.errs) && p.errs[i] != nil {
		return nil, p.errs[i]
	}
	if i >= len(p.turns) {
		i = len(p.turns) - 1
	}
	turn := p.turns[i]
	if sink != nil && turn.Text != "" {
		sink(turn.Text)
	}
	return &turn, nil
}

// countingTool records how many times it actually executed
type countingTool struct {
	name  string
	count int
}

func (c *countingTool) Name() string        { return c.name }
func (c *countingTool) Description() string { return "counting tool" }
func (c *countingTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (c *countingTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	c.count++
	return map[string]interface{}{"ok": true}, nil
}

// memStore captures persistence calls in memory
type memStore struct {
	messages []string
	traces   []ToolTrace
}

func (m *memStore) SaveMessage(_, role, content string) error {
	m.messages = append(m.messages, role+": "+content)
	return nil
}

func (m *memStore) SaveToolTrace(trace ToolTrace) error {
	m.traces = append(m.traces, trace)
	return nil
}

func testAgent(p llm.Provider, reg *tools.Registry) *Agent {
	cfg := config.AgentConfig{
		MaxIterations: 5,
		MaxRetries:    0,
		ResultBudget:  5000,
	}
	return New(p, reg, cache.New(cache.Config{DefaultTTL: time.Hour}), cfg)
}

func runAgent(t *testing.T, a *Agent, req Request) ([]StreamEvent, *Result) {
	t.Helper()
	emitter := NewEmitter(64)
	var result *Result
	done := make(chan struct{})
	go func() {
		result = a.Run(context.Background(), req, emitter)
		emitter.Close()
		close(done)
	}()

	var events []StreamEvent
	for ev := range emitter.Events() {
		events = append(events, ev)
	}
	<-done
	return events, result
}

func toolCallTurn(name, args string) llm.TurnResult {
	return llm.TurnResult{
		ToolCalls:   []llm.ToolCall{{ID: "c_" + name, Name: name, Arguments: args}},
		SawToolCall: true,
	}
}

func TestRunTwoTurnCompletion(t *testing.T) {
	provider := &scriptedProvider{turns: []llm.TurnResult{
		toolCallTurn("get_region_color_scheme", `{"region":"eu"}`),
		toolCallTurn("attempt_completion", `{"result":"Compliant"}`),
	}}

	reg := tools.NewRegistry()
	reg.Register(&tools.RegionColorSchemeTool{})
	reg.Register(&tools.CompletionTool{})

	store := &memStore{}
	a := testAgent(provider, reg).WithStore(store)

	events, result := runAgent(t, a, Request{SessionKey: "s1", Prompt: "check the eu creative"})

	if result.Err != nil {
		t.Fatalf("Expected success, got %v", result.Err)
	}
	if result.Answer != "Compliant" {
		t.Errorf("Expected answer 'Compliant', got %q", result.Answer)
	}

	if len(events) != 4 {
		t.Fatalf("Expected tool request, tool result, completion request, complete; got %d events: %+v", len(events), events)
	}
	if events[0].Type != EventTool || !strings.Contains(events[0].Content, "get_region_color_scheme") {
		t.Errorf("Expected tool request event first, got %+v", events[0])
	}
	if events[1].Type != EventTool || !strings.Contains(events[1].Content, "result") {
		t.Errorf("Expected tool result event second, got %+v", events[1])
	}
	if events[2].Type != EventTool || !strings.Contains(events[2].Content, tools.CompletionToolName) {
		t.Errorf("Expected completion request event third, got %+v", events[2])
	}
	if events[3].Type != EventComplete {
		t.Errorf("Expected terminal complete event, got %+v", events[3])
	}
	var answer string
	if err := json.Unmarshal([]byte(events[3].Content), &answer); err != nil || answer != "Compliant" {
		t.Errorf("Expected JSON-encoded final answer, got %q", events[3].Content)
	}

	if len(store.traces) != 1 || store.traces[0].Tool != "get_region_color_scheme" {
		t.Errorf("Expected exactly one tool trace for get_region_color_scheme, got %+v", store.traces)
	}
	if len(store.messages) == 0 {
		t.Error("Expected conversation persisted")
	}
}

func TestRunPlainTextAnswer(t *testing.T) {
	provider := &scriptedProvider{turns: []llm.TurnResult{
		{Text: "No tools needed. The creative is compliant."},
	}}
	a := testAgent(provider, tools.NewRegistry())

	events, result := runAgent(t, a, Request{Prompt: "quick check"})

	if result.Err != nil {
		t.Fatalf("Expected success, got %v", result.Err)
	}
	if result.Answer != "No tools needed. The creative is compliant." {
		t.Errorf("Expected text answer, got %q", result.Answer)
	}
	if events[0].Type != EventText {
		t.Errorf("Expected text delta forwarded, got %+v", events[0])
	}
	if events[len(events)-1].Type != EventComplete {
		t.Errorf("Expected complete terminal event, got %+v", events[len(events)-1])
	}
}

func TestRunIterationBound(t *testing.T) {
	// provider never completes
	provider := &scriptedProvider{turns: []llm.TurnResult{
		toolCallTurn("spin", `{}`),
	}}
	reg := tools.NewRegistry()
	spin := &countingTool{name: "spin"}
	reg.Register(spin)

	cfg := config.AgentConfig{MaxIterations: 3, ResultBudget: 5000}
	// non-cacheable so every iteration really executes
	c := cache.New(cache.Config{DefaultTTL: time.Hour, NonCacheable: []string{"spin"}})
	a := New(provider, reg, c, cfg)

	events, result := runAgent(t, a, Request{Prompt: "loop forever"})

	if result.Err == nil {
		t.Fatal("Expected iteration bound error")
	}
	if result.Iterations != 3 {
		t.Errorf("Expected 3 iterations, got %d", result.Iterations)
	}
	if spin.count != 3 {
		t.Errorf("Expected tool executed 3 times, got %d", spin.count)
	}
	last := events[len(events)-1]
	if last.Type != EventError {
		t.Errorf("Expected terminal error event, got %+v", last)
	}
}

func TestRunNonRetryableProviderError(t *testing.T) {
	provider := &scriptedProvider{
		errs:  []error{errors.New("status 401: invalid api key")},
		turns: []llm.TurnResult{{Text: "unreachable"}},
	}
	a := testAgent(provider, tools.NewRegistry())

	events, result := runAgent(t, a, Request{Prompt: "check"})

	if result.Err == nil {
		t.Fatal("Expected provider error surfaced")
	}
	if provider.calls != 1 {
		t.Errorf("Expected no retry on non-retryable error, got %d calls", provider.calls)
	}
	if events[len(events)-1].Type != EventError {
		t.Errorf("Expected error event, got %+v", events[len(events)-1])
	}
}

func TestRunToolErrorStaysInBand(t *testing.T) {
	provider := &scriptedProvider{turns: []llm.TurnResult{
		toolCallTurn("missing_tool", `{}`),
		toolCallTurn("attempt_completion", `{"result":"gave up"}`),
	}}
	a := testAgent(provider, tools.NewRegistry())

	events, result := runAgent(t, a, Request{Prompt: "check"})

	if result.Err != nil {
		t.Fatalf("Expected loop to survive tool failure, got %v", result.Err)
	}
	if result.Answer != "gave up" {
		t.Errorf("Expected completion after tool error, got %q", result.Answer)
	}
	// the tool result event carries the in-band error payload
	found := false
	for _, ev := range events {
		if ev.Type == EventTool && strings.Contains(ev.Content, "error") {
			found = true
		}
	}
	if !found {
		t.Error("Expected an error-bearing tool result event")
	}
}

func TestRunCacheSkipsSecondExecution(t *testing.T) {
	provider := &scriptedProvider{turns: []llm.TurnResult{
		toolCallTurn("counted", `{"key":"same"}`),
		toolCallTurn("counted", `{"key":"same"}`),
		toolCallTurn("attempt_completion", `{"result":"done"}`),
	}}
	reg := tools.NewRegistry()
	counted := &countingTool{name: "counted"}
	reg.Register(counted)

	a := testAgent(provider, reg)
	_, result := runAgent(t, a, Request{Prompt: "check twice"})

	if result.Err != nil {
		t.Fatalf("Expected success, got %v", result.Err)
	}
	if counted.count != 1 {
		t.Errorf("Expected second call served from cache, tool ran %d times", counted.count)
	}
}

func TestTrimHistoryDropsWholeExchanges(t *testing.T) {
	cfg := config.AgentConfig{MaxIterations: 5, ResultBudget: 5000, ContextTokens: 1}
	a := New(&scriptedProvider{}, tools.NewRegistry(), cache.New(cache.Config{DefaultTTL: time.Hour}), cfg)

	long := strings.Repeat("brand compliance ", 40)
	history := []llm.Message{
		{Role: "system", Content: long},
		{Role: "user", Content: long},
		{Role: "assistant", Content: long, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "counted", Arguments: `{}`}}},
		{Role: "tool", Content: long, ToolCallID: "c1"},
		{Role: "assistant", Content: long},
		{Role: "user", Content: long},
	}

	a.trimHistory(&history)

	var roles []string
	for _, msg := range history {
		roles = append(roles, msg.Role)
	}
	for i, msg := range history {
		if msg.Role == "tool" && (i == 0 || history[i-1].Role != "assistant" || len(history[i-1].ToolCalls) == 0) {
			t.Fatalf("Expected no orphaned tool message, got roles %v", roles)
		}
	}
	if len(history) != 3 || roles[0] != "system" || roles[2] != "user" {
		t.Errorf("Expected [system assistant user] after trimming, got %v", roles)
	}
}

func TestTrimHistoryKeepsLastExchangeIntact(t *testing.T) {
	cfg := config.AgentConfig{MaxIterations: 5, ResultBudget: 5000, ContextTokens: 1}
	a := New(&scriptedProvider{}, tools.NewRegistry(), cache.New(cache.Config{DefaultTTL: time.Hour}), cfg)

	long := strings.Repeat("brand compliance ", 40)
	history := []llm.Message{
		{Role: "system", Content: long},
		{Role: "assistant", Content: long, ToolCalls: []llm.ToolCall{{ID: "c1", Name: "counted", Arguments: `{}`}}},
		{Role: "tool", Content: long, ToolCallID: "c1"},
	}

	a.trimHistory(&history)

	if len(history) != 3 {
		t.Errorf("Expected the final tool exchange kept whole, got %d messages", len(history))
	}
}

func TestRunScrubsBinaryArgsFromEvents(t *testing.T) {
	provider := &scriptedProvider{turns: []llm.TurnResult{
		toolCallTurn("counted", `{"region":"us","image_base64":"SHOULDNOTAPPEAR"}`),
		toolCallTurn("attempt_completion", `{"result":"ok"}`),
	}}
	reg := tools.NewRegistry()
	reg.Register(&countingTool{name: "counted"})

	store := &memStore{}
	a := testAgent(provider, reg).WithStore(store)

	events, _ := runAgent(t, a, Request{SessionKey: "s2", Prompt: "check"})

	for _, ev := range events {
		if strings.Contains(ev.Content, "SHOULDNOTAPPEAR") {
			t.Errorf("Expected binary payload scrubbed from events, found in %+v", ev)
		}
	}
	for _, trace := range store.traces {
		if strings.Contains(trace.ArgsJSON, "SHOULDNOTAPPEAR") {
			t.Error("Expected binary payload scrubbed from persisted trace")
		}
	}
	for _, msg := range store.messages {
		if strings.Contains(msg, "SHOULDNOTAPPEAR") {
			t.Error("Expected binary payload scrubbed from persisted history")
		}
	}
}
