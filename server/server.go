// Server module - HTTP surface for compliance checks

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/veribrand/brandgate/agent"
	"github.com/veribrand/brandgate/pkg/cache"
	"github.com/veribrand/brandgate/pkg/config"
	"github.com/veribrand/brandgate/storage"
	"github.com/veribrand/brandgate/tools"
)

// Loop runs one compliance check and emits progress events
type Loop interface {
	Run(ctx context.Context, req agent.Request, emitter *agent.Emitter) *agent.Result
}

// History reads persisted conversations
type History interface {
	GetMessages(session string, limit int) ([]storage.Message, error)
}

// CheckRequest is the JSON body of POST /v1/checks
type CheckRequest struct {
	SessionKey  string       `json:"session_key"`
	Prompt      string       `json:"prompt"`
	ImageBase64 string       `json:"image_base64,omitempty"`
	Frames      []FrameInput `json:"frames,omitempty"`
	Stream      bool         `json:"stream"`
}

// FrameInput is one video frame in a check request
type FrameInput struct {
	Timestamp   float64 `json:"timestamp"`
	FrameNumber int     `json:"frame_number"`
	Base64      string  `json:"base64"`
}

// CheckResponse is the non-streaming result shape
type CheckResponse struct {
	Answer     string   `json:"answer"`
	Iterations int      `json:"iterations"`
	Usage      llmUsage `json:"usage"`
	Error      string   `json:"error,omitempty"`
}

type llmUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Server struct {
	cfg     config.ServerConfig
	loop    Loop
	cache   *cache.Cache
	history History
	server  *http.Server
}

func New(cfg config.ServerConfig, loop Loop, c *cache.Cache, history History) *Server {
	s := &Server{cfg: cfg, loop: loop, cache: c, history: history}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/checks", s.handleCheck)
	mux.HandleFunc("/v1/checks/ws", s.handleCheckWS)
	mux.HandleFunc("/v1/cache/stats", s.handleCacheStats)
	mux.HandleFunc("/v1/sessions/", s.handleSessionHistory)

	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the route table for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	log.Printf("[OK] Server: listening on %s", s.server.Addr)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() {
	if s.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.server.Shutdown(ctx); err != nil {
			log.Printf("Server graceful shutdown failed: %v", err)
			s.server.Close()
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.cache.Stats())
}

// handleSessionHistory serves GET /v1/sessions/{key}/history
func (s *Server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[WARN] handleSessionHistory panic recovered: %v", rec)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.history == nil {
		http.Error(w, "Persistence disabled", http.StatusServiceUnavailable)
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "history" {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	messages, err := s.history.GetMessages(parts[0], 0)
	if err != nil {
		log.Printf("[WARN] history read failed: %v", err)
		http.Error(w, "History read failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"session": parts[0], "messages": messages})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[WARN] handleCheck panic recovered: %v", rec)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}()

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyCheck)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Read error", http.StatusBadRequest)
		return
	}

	var req CheckRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Parse error", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		http.Error(w, "prompt is required", http.StatusBadRequest)
		return
	}

	agentReq := toAgentRequest(req)
	if req.Stream {
		s.streamCheck(w, r, agentReq)
		return
	}

	emitter := agent.NewEmitter(s.cfg.EventQueueSize)
	go func() {
		// non-streaming callers only want the final result
		for range emitter.Events() {
		}
	}()
	result := s.loop.Run(r.Context(), agentReq, emitter)
	emitter.Close()

	resp := CheckResponse{
		Answer:     result.Answer,
		Iterations: result.Iterations,
		Usage: llmUsage{
			PromptTokens:     result.Usage.PromptTokens,
			CompletionTokens: result.Usage.CompletionTokens,
			TotalTokens:      result.Usage.TotalTokens,
		},
	}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	writeJSON(w, resp)
}

// streamCheck drives the loop in a goroutine and relays its events as SSE.
// The request context cancels the loop when the client goes away.
func (s *Server) streamCheck(w http.ResponseWriter, r *http.Request, req agent.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	emitter := agent.NewEmitter(s.cfg.EventQueueSize)
	go func() {
		s.loop.Run(ctx, req, emitter)
		emitter.Close()
	}()

	poll := s.cfg.EventPollEvery
	if poll <= 0 {
		poll = 500 * time.Millisecond
	}

	for {
		select {
		case ev, open := <-emitter.Events():
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s:%s\n\n", ev.Type, ev.Content)
			flusher.Flush()
		case <-ctx.Done():
			log.Printf("[Server] client disconnected, check cancelled")
			return
		case <-time.After(poll):
			// idle tick keeps the disconnect check responsive
		}
	}
}

func toAgentRequest(req CheckRequest) agent.Request {
	media := &tools.Media{Image: req.ImageBase64}
	for _, f := range req.Frames {
		media.Frames = append(media.Frames, tools.Frame{Timestamp: f.Timestamp, FrameNumber: f.FrameNumber, Base64: f.Base64})
	}
	if !media.HasAny() {
		media = nil
	}
	return agent.Request{
		SessionKey: req.SessionKey,
		Prompt:     req.Prompt,
		Media:      media,
	}
}

// writeJSON writes a JSON response with proper Content-Type header
func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[WARN] Failed to encode JSON response: %v", err)
	}
}
