package tools

import (
	"context"
	"testing"
)

type fakeTool struct {
	name   string
	result interface{}
	err    error
	panics bool
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake tool" }
func (f *fakeTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object", "properties": map[string]interface{}{}}
}
func (f *fakeTool) Execute(_ context.Context, _ map[string]interface{}) (interface{}, error) {
	if f.panics {
		panic("tool exploded")
	}
	return f.result, f.err
}

func TestCallToolUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.CallTool(context.Background(), "missing", nil)
	if err == nil {
		t.Fatal("Expected error for unknown tool")
	}
}

func TestCallToolSuccess(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "echo", result: "ok"})

	result, err := r.CallTool(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if result != "ok" {
		t.Errorf("Expected 'ok', got %v", result)
	}
}

func TestCallToolPanicRecovered(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "boom", panics: true})

	_, err := r.CallTool(context.Background(), "boom", nil)
	if err == nil {
		t.Fatal("Expected error from panicking tool")
	}
}

func TestSpecsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(&fakeTool{name: "zeta"})
	r.Register(&fakeTool{name: "alpha"})

	specs := r.Specs()
	if len(specs) != 2 {
		t.Fatalf("Expected 2 specs, got %d", len(specs))
	}
	if specs[0].Name != "alpha" || specs[1].Name != "zeta" {
		t.Errorf("Expected sorted spec names, got %s then %s", specs[0].Name, specs[1].Name)
	}
}

func TestParseArgs(t *testing.T) {
	args, err := ParseArgs(`{"region": "eu", "max_colors": 3}`)
	if err != nil {
		t.Fatalf("Expected parse to succeed, got %v", err)
	}
	if GetString(args, "region") != "eu" {
		t.Errorf("Expected region 'eu', got %q", GetString(args, "region"))
	}
	if GetInt(args, "max_colors") != 3 {
		t.Errorf("Expected max_colors 3, got %d", GetInt(args, "max_colors"))
	}
}

func TestParseArgsInvalid(t *testing.T) {
	if _, err := ParseArgs("not json"); err == nil {
		t.Fatal("Expected error for invalid JSON")
	}
}

func TestGetStringSlice(t *testing.T) {
	args := map[string]interface{}{
		"frames": []interface{}{"a", "b"},
	}
	got := GetStringSlice(args, "frames")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("Expected [a b], got %v", got)
	}
	if GetStringSlice(args, "missing") != nil {
		t.Error("Expected nil for missing key")
	}
}

func TestFormatResult(t *testing.T) {
	if got := FormatResult("plain"); got != "plain" {
		t.Errorf("Expected 'plain', got %q", got)
	}
	if got := FormatResult(map[string]interface{}{"ok": true}); got != `{"ok":true}` {
		t.Errorf("Expected JSON encoding, got %q", got)
	}
}
