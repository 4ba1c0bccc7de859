// Tools module - tool invocation framework
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"

	"github.com/veribrand/brandgate/pkg/llm"
)

// CompletionToolName is the terminal sentinel: the agent loop handles it
// locally and never dispatches it through the registry.
const CompletionToolName = "attempt_completion"

// VideoTools are the tools that operate on frame sequences. The media
// injector gives these an images_base64 array instead of a single image.
var VideoTools = map[string]bool{
	"extract_frame_palette": true,
	"compare_frames":        true,
}

// Tool defines the tool interface
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) (interface{}, error)
}

// Registry holds registered tools
type Registry struct {
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register a tool
func (r *Registry) Register(t Tool) {
	r.tools[t.Name()] = t
	log.Printf("[OK] tool registered: %s", t.Name())
}

// Get returns a tool by name
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// List all tool names, sorted
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallTool dispatches a tool and returns its result. Unknown names are a
// hard error; a panic inside a tool comes back as an error instead of
// unwinding into the agent loop.
func (r *Registry) CallTool(ctx context.Context, name string, args map[string]interface{}) (result interface{}, err error) {
	t, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("tool not found: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[ERROR] tool panicked: %s - %v", name, rec)
			result = nil
			err = fmt.Errorf("tool panicked: %s: %v", name, rec)
		}
	}()

	log.Printf("[TOOL] calling tool: %s", name)
	result, err = t.Execute(ctx, args)
	if err != nil {
		log.Printf("[ERROR] tool failed: %s - %v", name, err)
		return nil, err
	}

	log.Printf("[OK] tool succeeded: %s", name)
	return result, nil
}

// Specs returns the registered tools as provider-neutral schemas, sorted
// by name so prompt rendering is stable.
func (r *Registry) Specs() []llm.ToolSpec {
	specs := make([]llm.ToolSpec, 0, len(r.tools))
	for _, name := range r.List() {
		t := r.tools[name]
		specs = append(specs, llm.ToolSpec{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Parameters(),
		})
	}
	return specs
}

// FormatResult renders a tool result as the string placed in the
// conversation history.
func FormatResult(result interface{}) string {
	switch v := result.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(b)
	}
}

// ParseArgs parses JSON args
func ParseArgs(argsJSON string) (map[string]interface{}, error) {
	var args map[string]interface{}
	if err := json.Unmarshal([]byte(argsJSON), &args); err != nil {
		return nil, fmt.Errorf("failed to parse args: %w", err)
	}
	return args, nil
}

// GetString gets a string arg
func GetString(args map[string]interface{}, key string) string {
	if v, ok := args[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetInt gets an int arg
func GetInt(args map[string]interface{}, key string) int {
	if v, ok := args[key]; ok {
		switch f := v.(type) {
		case float64:
			return int(f)
		case int:
			return f
		case string:
			var i int
			fmt.Sscanf(f, "%d", &i)
			return i
		}
	}
	return 0
}

// GetFloat64 gets a float arg
func GetFloat64(args map[string]interface{}, key string) float64 {
	if v, ok := args[key]; ok {
		switch f := v.(type) {
		case float64:
			return f
		case int:
			return float64(f)
		case string:
			var x float64
			fmt.Sscanf(f, "%f", &x)
			return x
		}
	}
	return 0
}

// GetStringSlice gets a []string arg, tolerating []interface{} from JSON
func GetStringSlice(args map[string]interface{}, key string) []string {
	v, ok := args[key]
	if !ok {
		return nil
	}
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
