// Agent module - the conversation loop driving one compliance check
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/veribrand/brandgate/pkg/cache"
	"github.com/veribrand/brandgate/pkg/config"
	"github.com/veribrand/brandgate/pkg/llm"
	"github.com/veribrand/brandgate/tools"
)

// binaryArgFields never enter events, history or persistence
var binaryArgFields = map[string]bool{
	"image_base64":  true,
	"images_base64": true,
}

// Store persists conversation history and tool traces. Failures are
// logged, never fatal to a request.
type Store interface {
	SaveMessage(session, role, content string) error
	SaveToolTrace(trace ToolTrace) error
}

// ToolTrace is one tool invocation record for a session
type ToolTrace struct {
	Session  string
	Tool     string
	ArgsJSON string
	Result   string
	Duration time.Duration
	CacheHit bool
}

// Request is one compliance check to run
type Request struct {
	SessionKey string
	Prompt     string
	Media      *tools.Media
}

// Result is the structured outcome of a loop run. Err is set when the
// loop terminated without a final answer; the loop itself never panics
// past its boundary.
type Result struct {
	Answer     string
	Iterations int
	Usage      llm.Usage
	Err        error
}

// Agent owns the message history and drives provider turns until the
// model signals completion or a bound is hit.
type Agent struct {
	provider llm.Provider
	registry *tools.Registry
	cache    *cache.Cache
	store    Store
	cfg      config.AgentConfig
}

// New creates an agent loop over the given provider and tool set
func New(provider llm.Provider, registry *tools.Registry, c *cache.Cache, cfg config.AgentConfig) *Agent {
	return &Agent{
		provider: provider,
		registry: registry,
		cache:    c,
		cfg:      cfg,
	}
}

// WithStore attaches a persistence backend
func (a *Agent) WithStore(s Store) *Agent {
	a.store = s
	return a
}

// Run drives the loop for one request, emitting progress events in order.
// It always returns a Result; provider failures, tool failures and bound
// violations come back as Result.Err after an error event, never as a
// panic or a silently dropped stream.
func (a *Agent) Run(ctx context.Context, req Request, emitter *Emitter) (result *Result) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] agent: panic in loop: %v", rec)
			emitter.Emit(ctx, EventError, fmt.Sprintf("internal error: %v", rec))
			result = &Result{Err: fmt.Errorf("agent loop panicked: %v", rec)}
		}
	}()

	specs := a.registry.Specs()
	history := a.seedHistory(req, specs)
	result = &Result{}

	for iter := 0; iter < a.cfg.MaxIterations; iter++ {
		result.Iterations = iter + 1
		a.trimHistory(&history)

		turn, err := a.streamTurn(ctx, history, specs, emitter)
		if err != nil {
			log.Printf("[ERROR] agent: provider turn failed: %v", err)
			emitter.Emit(ctx, EventError, err.Error())
			result.Err = err
			a.persist(req.SessionKey, history)
			return result
		}
		if turn.Usage != nil {
			result.Usage.PromptTokens += turn.Usage.PromptTokens
			result.Usage.CompletionTokens += turn.Usage.CompletionTokens
			result.Usage.TotalTokens += turn.Usage.TotalTokens
		}

		inv := ExtractNative(turn.ToolCalls)
		if inv == nil {
			inv = ExtractMarkup(turn.Text)
		}

		if inv == nil {
			history = append(history, llm.Message{Role: "assistant", Content: turn.Text})
			result.Answer = turn.Text
			a.finish(ctx, req.SessionKey, history, result, emitter)
			return result
		}

		if inv.Name == tools.CompletionToolName {
			emitter.Emit(ctx, EventTool, toolEventJSON(map[string]interface{}{
				"tool": inv.Name,
				"args": scrubArgs(inv.Args),
			}))
			answer := tools.GetString(inv.Args, "result")
			if answer == "" {
				answer = turn.Text
			}
			history = append(history, llm.Message{Role: "assistant", Content: answer})
			result.Answer = answer
			a.finish(ctx, req.SessionKey, history, result, emitter)
			return result
		}

		history = a.executeTool(ctx, req, history, turn, inv, iter, emitter)
	}

	err := fmt.Errorf("max iterations (%d) reached without completion", a.cfg.MaxIterations)
	log.Printf("[ERROR] agent: %v", err)
	emitter.Emit(ctx, EventError, err.Error())
	result.Err = err
	a.persist(req.SessionKey, history)
	return result
}

// seedHistory builds the opening messages: system prompt (with the markup
// tool catalog when the provider needs it) plus the user's request and any
// attached image.
func (a *Agent) seedHistory(req Request, specs []llm.ToolSpec) []llm.Message {
	var history []llm.Message

	system := a.cfg.SystemPrompt
	if a.provider.Mode() == llm.ModeMarkup {
		catalog := renderMarkupCatalog(specs)
		if system != "" {
			system += "\n\n" + catalog
		} else {
			system = catalog
		}
	}
	if system != "" {
		history = append(history, llm.Message{Role: "system", Content: system})
	}

	user := llm.Message{Role: "user", Content: req.Prompt}
	if req.Media != nil && req.Media.Image != "" {
		user.Images = []llm.ImageAttachment{{
			MediaType: sniffMediaType(req.Media.Image),
			Base64:    req.Media.Image,
		}}
	}
	return append(history, user)
}

// streamTurn runs one provider call with per-call timeout and transient
// error retries. Text deltas are forwarded as events while the call runs.
func (a *Agent) streamTurn(ctx context.Context, history []llm.Message, specs []llm.ToolSpec, emitter *Emitter) (*llm.TurnResult, error) {
	sink := func(delta string) {
		if delta != "" {
			emitter.Emit(ctx, EventText, delta)
		}
	}

	var lastErr error
	for attempt := 0; attempt <= a.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := llm.Backoff(attempt - 1)
			log.Printf("[Agent] retrying provider call in %v (attempt %d/%d)", wait, attempt, a.cfg.MaxRetries)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		turnCtx := ctx
		var cancel context.CancelFunc
		if a.cfg.TurnTimeout > 0 {
			turnCtx, cancel = context.WithTimeout(ctx, a.cfg.TurnTimeout)
		}
		turn, err := a.provider.StreamTurn(turnCtx, history, specs, sink)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			return turn, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !llm.IsRetryable(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("provider retries exhausted: %w", lastErr)
}

// executeTool runs one extracted tool call through the injector, cache
// and executor, appends the exchange to history and returns it.
func (a *Agent) executeTool(ctx context.Context, req Request, history []llm.Message, turn *llm.TurnResult, inv *Invocation, iter int, emitter *Emitter) []llm.Message {
	// snapshot before media injection so binaries stay out of history
	cleanArgs := scrubArgs(inv.Args)
	argsJSON, _ := json.Marshal(cleanArgs)

	callID := inv.ID
	if callID == "" {
		callID = fmt.Sprintf("call_%d", iter)
	}

	emitter.Emit(ctx, EventTool, toolEventJSON(map[string]interface{}{
		"tool": inv.Name,
		"args": cleanArgs,
	}))

	history = append(history, llm.Message{
		Role:    "assistant",
		Content: turn.Text,
		ToolCalls: []llm.ToolCall{{
			ID:        callID,
			Name:      inv.Name,
			Arguments: string(argsJSON),
		}},
	})

	if req.Media != nil {
		req.Media.Inject(inv.Name, inv.Args)
	}

	start := time.Now()
	cached := false
	resultVal, hit := a.cache.Get(inv.Name, inv.Args)
	if hit {
		cached = true
	} else {
		var err error
		resultVal, err = a.registry.CallTool(ctx, inv.Name, inv.Args)
		if err != nil {
			// in-band error result so the model can react to the failure
			resultVal = map[string]interface{}{"error": err.Error()}
		} else {
			a.cache.Set(inv.Name, inv.Args, resultVal)
		}
	}
	duration := time.Since(start)

	resultStr := TruncateResult(tools.FormatResult(resultVal), a.cfg.ResultBudget)

	emitter.Emit(ctx, EventTool, toolEventJSON(map[string]interface{}{
		"tool":   inv.Name,
		"result": resultStr,
		"cached": cached,
	}))

	history = append(history, llm.Message{
		Role:       "tool",
		Content:    resultStr,
		ToolCallID: callID,
	})

	if a.store != nil {
		err := a.store.SaveToolTrace(ToolTrace{
			Session:  req.SessionKey,
			Tool:     inv.Name,
			ArgsJSON: string(argsJSON),
			Result:   resultStr,
			Duration: duration,
			CacheHit: cached,
		})
		if err != nil {
			log.Printf("[WARN] agent: tool trace persistence failed: %v", err)
		}
	}

	return history
}

// finish emits the terminal complete event and persists the conversation
func (a *Agent) finish(ctx context.Context, session string, history []llm.Message, result *Result, emitter *Emitter) {
	payload, err := json.Marshal(result.Answer)
	if err != nil {
		payload = []byte(`""`)
	}
	emitter.Emit(ctx, EventComplete, string(payload))
	a.persist(session, history)
}

// persist writes the conversation once, after loop termination
func (a *Agent) persist(session string, history []llm.Message) {
	if a.store == nil || session == "" {
		return
	}
	for _, msg := range history {
		content := msg.Content
		if len(msg.ToolCalls) > 0 {
			b, _ := json.Marshal(msg.ToolCalls)
			content = content + "\n[tool_calls] " + string(b)
		}
		if err := a.store.SaveMessage(session, msg.Role, content); err != nil {
			log.Printf("[WARN] agent: message persistence failed: %v", err)
			return
		}
	}
}

// trimHistory drops the oldest non-system exchanges when the estimated
// token count exceeds the context guard.
func (a *Agent) trimHistory(history *[]llm.Message) {
	if a.cfg.ContextTokens <= 0 {
		return
	}
	for historyTokens(*history) > a.cfg.ContextTokens {
		h := *history
		drop := 0
		if len(h) > 0 && h[0].Role == "system" {
			drop = 1
		}
		if len(h) <= drop+2 {
			return
		}
		// drop whole exchanges: an assistant tool call and the tool
		// messages answering it leave together, so a tool message never
		// ends up without its call
		width := 1
		if h[drop].Role == "assistant" && len(h[drop].ToolCalls) > 0 {
			for drop+width < len(h) && h[drop+width].Role == "tool" {
				width++
			}
		}
		// always keep the most recent exchange
		if len(h) < drop+width+2 {
			return
		}
		*history = append(h[:drop], h[drop+width:]...)
		log.Printf("[Agent] history trimmed to %d messages", len(*history))
	}
}

func historyTokens(history []llm.Message) int {
	total := 0
	for _, msg := range history {
		total += EstimateTokens(msg.Content)
		for _, tc := range msg.ToolCalls {
			total += EstimateTokens(tc.Arguments)
		}
	}
	return total
}

// scrubArgs copies args without binary payload fields
func scrubArgs(args map[string]interface{}) map[string]interface{} {
	clean := make(map[string]interface{}, len(args))
	for k, v := range args {
		if binaryArgFields[k] {
			continue
		}
		clean[k] = v
	}
	return clean
}

func toolEventJSON(payload map[string]interface{}) string {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf(`{"tool":"unknown","error":%q}`, err.Error())
	}
	return string(b)
}

// sniffMediaType guesses an image MIME type from its base64 prefix
func sniffMediaType(b64 string) string {
	switch {
	case strings.HasPrefix(b64, "/9j/"):
		return "image/jpeg"
	case strings.HasPrefix(b64, "R0lGO"):
		return "image/gif"
	default:
		return "image/png"
	}
}

// renderMarkupCatalog describes the tool set for providers without native
// function calling. The model answers with a fenced xml block naming the
// tool and its JSON parameters.
func renderMarkupCatalog(specs []llm.ToolSpec) string {
	var b strings.Builder
	b.WriteString("You can call backend tools. To call one, reply with exactly one block:\n")
	b.WriteString("```xml\n<tool>\n<name>TOOL_NAME</name>\n<parameters>{\"arg\": \"value\"}</parameters>\n</tool>\n```\n")
	b.WriteString("Call attempt_completion with a result parameter when the check is done.\n\nAvailable tools:\n")
	for _, spec := range specs {
		params, _ := json.Marshal(spec.Parameters)
		fmt.Fprintf(&b, "- %s: %s\n  parameters: %s\n", spec.Name, spec.Description, params)
	}
	return b.String()
}
