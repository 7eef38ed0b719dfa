// Package api is Kotoba's HTTP surface.
//
// Endpoints:
//
//	POST /chat        {message, userId} → {message}
//	GET  /health      → HealthResponse
//	GET  /status      → StatusResponse             (control token)
//	GET  /tools       → ToolsResponse              (control token)
//	POST /tools/call  {name, arguments} → ToolCallResponse (control token)
//
// The caller's backend credential travels in "Authorization: Bearer <token>"
// on /chat and /tools/call and is forwarded untouched. The control endpoints
// are gated separately by the X-Control-Token header when Handlers.Token is
// set, so the two never collide.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/common/version"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

// ControlHeader carries the control token.
const ControlHeader = "X-Control-Token"

// maxBodyBytes caps inbound request bodies.
const maxBodyBytes = 1 << 20

const (
	msgMessageRequired = "Message is required"
	msgInternal        = "Internal server error"
	msgBadBody         = "Invalid request body"
)

// Turner runs one conversational turn. *turn.Controller implements it.
type Turner interface {
	HandleTurn(ctx context.Context, req turn.Request) (string, error)
}

// Executor runs a single named operation. *ops.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, name string, args ops.Args, caller ops.Caller) (*ops.Result, error)
	Registry() *registry.Registry
}

// AuditStats reports on the audit trail. *store.Store implements it.
type AuditStats interface {
	Ping(ctx context.Context) error
	CountCalls(ctx context.Context, outcome string) (int, error)
	SchemaVersion(ctx context.Context) (int, error)
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message string `json:"message"`
	UserID  int64  `json:"userId,omitempty"`
}

// ChatResponse is returned by POST /chat.
type ChatResponse struct {
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health. Status is "degraded" when the
// database does not answer.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Version       string    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	Uptime        float64   `json:"uptime_seconds"`
	LLMEnabled    bool      `json:"llm_enabled"`
	Operations    int       `json:"operations"`
	SchemaVersion int       `json:"schema_version,omitempty"`
	CallsTotal    int       `json:"calls_total"`
	CallsFailed   int       `json:"calls_failed"`
}

// Tool describes one operation as a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolsResponse is returned by GET /tools.
type ToolsResponse struct {
	Tools []Tool `json:"tools"`
}

// ToolCallRequest is the body of POST /tools/call.
type ToolCallRequest struct {
	Name      string   `json:"name"`
	Arguments ops.Args `json:"arguments"`
}

// ToolCallResponse is returned by POST /tools/call. Content holds the
// operation's data as indented JSON, or "Error: <message>".
type ToolCallResponse struct {
	Content string `json:"content"`
	IsError bool   `json:"isError"`
}

// Handlers bundles what the server delegates to.
type Handlers struct {
	// Version is the running build's version string.
	Version string
	// StartedAt is when the process started.
	StartedAt time.Time
	// Token, when set, is required in X-Control-Token on the control
	// endpoints. Empty disables the check.
	Token string
	// LLMEnabled is reported by /status.
	LLMEnabled bool

	Turns    Turner
	Executor Executor
	// Audit is optional; /status omits audit figures without it.
	Audit AuditStats
}

// Server is the HTTP server.
type Server struct {
	addr     string
	handlers Handlers
	server   *http.Server
}

// New creates a Server listening on addr.
func New(addr string, h Handlers) *Server {
	s := &Server{addr: addr, handlers: h}

	control := http.NewServeMux()
	control.HandleFunc("/status", s.handleStatus)
	control.HandleFunc("/tools", s.handleTools)
	control.HandleFunc("/tools/call", s.handleToolCall)

	mux := http.NewServeMux()
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", s.controlAuth(control))

	s.server = &http.Server{
		Addr:         addr,
		Handler:      withTrace(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	return s
}

// withTrace attaches a trace id to every request and echoes it back.
func withTrace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := trace.FromRequest(r)
		w.Header().Set(trace.Header, trace.FromContext(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) controlAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.handlers.Token != "" && r.Header.Get(ControlHeader) != s.handlers.Token {
			writeError(w, http.StatusUnauthorized, "invalid control token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins listening. It returns once the listener is bound.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("api listen %s: %w", s.addr, err)
	}
	slog.Info("API server listening", "addr", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server error", "err", err)
		}
	}()
	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.server.Shutdown(ctx)
}

// TestHandler exposes the server's HTTP handler for use in httptest.NewServer.
func (s *Server) TestHandler() http.Handler {
	return s.server.Handler
}

// bearer returns the token from "Authorization: Bearer <token>", or "".
func bearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < len("Bearer ") || !strings.EqualFold(auth[:len("Bearer ")], "Bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[len("Bearer "):])
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil
	}
	return json.Unmarshal(body, dst)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ChatRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	reply, err := s.handlers.Turns.HandleTurn(r.Context(), turn.Request{
		Utterance:  req.Message,
		UserID:     req.UserID,
		Credential: bearer(r),
	})
	switch {
	case errors.Is(err, turn.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, msgMessageRequired)
	case err != nil:
		observability.WithTrace(r.Context()).Error("chat turn failed", "err", err)
		writeError(w, http.StatusInternalServerError, msgInternal)
	default:
		writeJSON(w, http.StatusOK, ChatResponse{Message: reply})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := HealthResponse{Status: "ok", Version: s.handlers.Version, Commit: version.GitCommit}
	if a := s.handlers.Audit; a != nil {
		if err := a.Ping(r.Context()); err != nil {
			observability.WithTrace(r.Context()).Warn("health: database ping failed", "err", err)
			resp.Status = "degraded"
			writeJSON(w, http.StatusServiceUnavailable, resp)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	resp := StatusResponse{
		Version:    s.handlers.Version,
		StartedAt:  s.handlers.StartedAt,
		Uptime:     time.Since(s.handlers.StartedAt).Seconds(),
		LLMEnabled: s.handlers.LLMEnabled,
		Operations: s.handlers.Executor.Registry().Len(),
	}
	if a := s.handlers.Audit; a != nil {
		log := observability.WithTrace(r.Context())
		var err error
		if resp.SchemaVersion, err = a.SchemaVersion(r.Context()); err != nil {
			log.Warn("status: schema version", "err", err)
		}
		if resp.CallsTotal, err = a.CountCalls(r.Context(), ""); err != nil {
			log.Warn("status: count calls", "err", err)
		}
		ok, err := a.CountCalls(r.Context(), "ok")
		if err != nil {
			log.Warn("status: count ok calls", "err", err)
		} else {
			resp.CallsFailed = resp.CallsTotal - ok
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	list := s.handlers.Executor.Registry().List()
	resp := ToolsResponse{Tools: make([]Tool, 0, len(list))}
	for _, op := range list {
		resp.Tools = append(resp.Tools, Tool{
			Name:        op.Name,
			Description: op.Description,
			InputSchema: op.Schema(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToolCall(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ToolCallRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, msgBadBody)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if req.Arguments == nil {
		req.Arguments = ops.Args{}
	}
	caller := ops.Caller{Credential: bearer(r)}
	if id, ok := req.Arguments["userId"].(float64); ok {
		caller.UserID = int64(id)
	}

	res, err := s.handlers.Executor.Execute(r.Context(), req.Name, req.Arguments, caller)
	if err != nil {
		observability.WithTrace(r.Context()).Error("tool call failed", "tool", req.Name, "err", err)
		writeJSON(w, http.StatusOK, ToolCallResponse{Content: "Error: " + err.Error(), IsError: true})
		return
	}
	if !res.Succeeded() {
		writeJSON(w, http.StatusOK, ToolCallResponse{Content: "Error: " + res.Failure.Message, IsError: true})
		return
	}
	data := []byte("null")
	if res.Data != nil {
		if data, err = json.MarshalIndent(res.Data, "", "  "); err != nil {
			writeError(w, http.StatusInternalServerError, msgInternal)
			return
		}
	}
	writeJSON(w, http.StatusOK, ToolCallResponse{Content: string(data)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
