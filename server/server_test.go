package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/veribrand/brandgate/agent"
	"github.com/veribrand/brandgate/pkg/cache"
	"github.com/veribrand/brandgate/pkg/config"
	"github.com/veribrand/brandgate/storage"
)

// scriptedLoop emits canned events and returns a fixed result
type scriptedLoop struct {
	events []agent.StreamEvent
	result agent.Result
	gotReq agent.Request
}

func (l *scriptedLoop) Run(ctx context.Context, req agent.Request, emitter *agent.Emitter) *agent.Result {
	l.gotReq = req
	for _, ev := range l.events {
		emitter.Emit(ctx, ev.Type, ev.Content)
	}
	r := l.result
	return &r
}

func testServer(loop Loop, history History) *Server {
	cfg := config.Default().Server
	return New(cfg, loop, cache.New(cache.Config{DefaultTTL: time.Hour}), history)
}

func TestHealthz(t *testing.T) {
	srv := testServer(&scriptedLoop{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "ok") {
		t.Errorf("Expected ok body, got %q", rec.Body.String())
	}
}

func TestCheckNonStreaming(t *testing.T) {
	loop := &scriptedLoop{
		events: []agent.StreamEvent{
			{Type: agent.EventTool, Content: `{"tool":"get_brand_guidelines"}`},
			{Type: agent.EventComplete, Content: `"Compliant"`},
		},
		result: agent.Result{Answer: "Compliant", Iterations: 2},
	}
	srv := testServer(loop, nil)

	body := `{"prompt":"check the hero banner","session_key":"s1"}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checks", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp CheckResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Expected JSON response, got %v", err)
	}
	if resp.Answer != "Compliant" {
		t.Errorf("Expected answer 'Compliant', got %q", resp.Answer)
	}
	if resp.Iterations != 2 {
		t.Errorf("Expected 2 iterations, got %d", resp.Iterations)
	}
	if loop.gotReq.SessionKey != "s1" {
		t.Errorf("Expected session key forwarded, got %q", loop.gotReq.SessionKey)
	}
}

func TestCheckStreamingSSE(t *testing.T) {
	loop := &scriptedLoop{
		events: []agent.StreamEvent{
			{Type: agent.EventText, Content: "checking"},
			{Type: agent.EventTool, Content: `{"tool":"analyze_image_colors"}`},
			{Type: agent.EventComplete, Content: `"Compliant"`},
		},
	}
	srv := testServer(loop, nil)

	body := `{"prompt":"check","stream":true}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checks", strings.NewReader(body)))

	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Expected SSE content type, got %q", ct)
	}

	out := rec.Body.String()
	wantLines := []string{
		"data: text:checking\n\n",
		"data: tool:{\"tool\":\"analyze_image_colors\"}\n\n",
		"data: complete:\"Compliant\"\n\n",
	}
	pos := 0
	for _, line := range wantLines {
		idx := strings.Index(out[pos:], line)
		if idx < 0 {
			t.Fatalf("Expected %q in SSE body (in order), got:\n%s", line, out)
		}
		pos += idx + len(line)
	}
}

func TestCheckRejectsMissingPrompt(t *testing.T) {
	srv := testServer(&scriptedLoop{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checks", strings.NewReader(`{}`)))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing prompt, got %d", rec.Code)
	}
}

func TestCheckRejectsGet(t *testing.T) {
	srv := testServer(&scriptedLoop{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/checks", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected 405, got %d", rec.Code)
	}
}

func TestCheckBuildsMedia(t *testing.T) {
	loop := &scriptedLoop{}
	srv := testServer(loop, nil)

	body := `{"prompt":"check","frames":[{"timestamp":0,"frame_number":1,"base64":"F0"},{"timestamp":5,"frame_number":2,"base64":"F5"}]}`
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/checks", strings.NewReader(body)))

	if loop.gotReq.Media == nil {
		t.Fatal("Expected media attached to request")
	}
	if len(loop.gotReq.Media.Frames) != 2 || loop.gotReq.Media.Frames[1].Timestamp != 5 {
		t.Errorf("Expected frames forwarded, got %+v", loop.gotReq.Media.Frames)
	}
	if loop.gotReq.Media.Frames[1].FrameNumber != 2 {
		t.Errorf("Expected frame number forwarded, got %d", loop.gotReq.Media.Frames[1].FrameNumber)
	}
}

func TestCacheStats(t *testing.T) {
	srv := testServer(&scriptedLoop{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", rec.Code)
	}

	var stats cache.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("Expected stats JSON, got %v", err)
	}
}

func TestSessionHistory(t *testing.T) {
	store, err := storage.New(t.TempDir() + "/history.db")
	if err != nil {
		t.Fatalf("Failed to open storage: %v", err)
	}
	defer store.Close()
	if err := store.SaveMessage("s9", "user", "check it"); err != nil {
		t.Fatalf("SaveMessage failed: %v", err)
	}

	srv := testServer(&scriptedLoop{}, store)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s9/history", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "check it") {
		t.Errorf("Expected persisted message in history, got %s", rec.Body.String())
	}
}

func TestSessionHistoryDisabled(t *testing.T) {
	srv := testServer(&scriptedLoop{}, nil)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions/s9/history", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 when persistence is disabled, got %d", rec.Code)
	}
}
