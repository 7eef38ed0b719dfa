package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/retry"
	"github.com/bdobrica/Kotoba/common/version"
)

const (
	defaultOpenAIBase  = "https://api.openai.com/v1"
	defaultOpenAIModel = "gpt-3.5-turbo"
)

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	// APIKey is the bearer token for the API.
	APIKey string
	// BaseURL overrides the API endpoint (useful for local models like Ollama).
	// Defaults to https://api.openai.com/v1.
	BaseURL string
	// Model is used when CompletionRequest.Model is empty. Defaults to
	// gpt-3.5-turbo.
	Model string
	// Timeout for each HTTP request. Defaults to 60s.
	Timeout time.Duration
	// MaxAttempts is the number of tries for transport failures and 5xx
	// answers. Defaults to 2. Rate limits are never retried.
	MaxAttempts int
	// RetryDelay is the wait before the first retry. Defaults to 500ms.
	RetryDelay time.Duration
	// HTTPClient overrides the client used for requests.
	HTTPClient *http.Client
}

// OpenAI implements Provider using the chat completions API.
type OpenAI struct {
	cfg    OpenAIConfig
	client *http.Client
}

var _ Provider = (*OpenAI)(nil)

// NewOpenAI returns a Provider backed by the OpenAI (or compatible) API.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultOpenAIBase
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 2
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = 500 * time.Millisecond
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAI{cfg: cfg, client: hc}
}

// Model returns the default model name.
func (p *OpenAI) Model() string { return p.cfg.Model }

// --- wire types (subset of the OpenAI API) ---

type oaiRequest struct {
	Model      string       `json:"model"`
	Messages   []oaiMessage `json:"messages"`
	Tools      []oaiTool    `json:"tools,omitempty"`
	ToolChoice string       `json:"tool_choice,omitempty"`
	MaxTokens  int          `json:"max_tokens,omitempty"`
}

type oaiMessage struct {
	Role       string        `json:"role"`
	Content    any           `json:"content"` // string or null
	ToolCalls  []oaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
	Name       string        `json:"name,omitempty"`
}

type oaiToolCall struct {
	ID       string          `json:"id"`
	Type     string          `json:"type"`
	Function oaiFunctionCall `json:"function"`
}

type oaiFunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type oaiTool struct {
	Type     string         `json:"type"`
	Function oaiFunctionDef `json:"function"`
}

type oaiFunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type oaiResponse struct {
	Choices []oaiChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type oaiChoice struct {
	Message      oaiMessage `json:"message"`
	FinishReason string     `json:"finish_reason"`
}

// Complete sends a chat completion request, retrying transport failures and
// 5xx answers up to MaxAttempts times.
func (p *OpenAI) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	data, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}
	rc := retry.Config{
		MaxAttempts:  p.cfg.MaxAttempts,
		InitialDelay: p.cfg.RetryDelay,
		ShouldRetry:  isTransient,
		Name:         "llm.complete",
	}
	return retry.Value(ctx, rc, func() (*CompletionResponse, error) {
		return p.send(ctx, data)
	})
}

func (p *OpenAI) buildRequest(req CompletionRequest) oaiRequest {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	msgs := make([]oaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		om := oaiMessage{
			Role:       string(m.Role),
			ToolCallID: m.ToolCallID,
			Name:       m.Name,
		}
		if m.Content != "" {
			om.Content = m.Content
		}
		for _, tc := range m.ToolCalls {
			om.ToolCalls = append(om.ToolCalls, oaiToolCall{
				ID:       tc.ID,
				Type:     tc.Type,
				Function: oaiFunctionCall(tc.Function),
			})
		}
		msgs = append(msgs, om)
	}

	tools := make([]oaiTool, 0, len(req.Tools))
	for _, t := range req.Tools {
		tools = append(tools, oaiTool{
			Type:     t.Type,
			Function: oaiFunctionDef(t.Function),
		})
	}

	out := oaiRequest{
		Model:     model,
		Messages:  msgs,
		Tools:     tools,
		MaxTokens: req.MaxTokens,
	}
	if len(tools) > 0 {
		out.ToolChoice = string(req.ToolChoice)
	}
	return out
}

func (p *OpenAI) send(ctx context.Context, data []byte) (*CompletionResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		p.cfg.BaseURL+"/chat/completions",
		bytes.NewReader(data),
	)
	if err != nil {
		return nil, fmt.Errorf("llm: create http request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("User-Agent", version.UserAgent())

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("llm: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w (HTTP 429)", ErrRateLimit)
	}

	var oaiResp oaiResponse
	decodeErr := json.Unmarshal(respBody, &oaiResp)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
		if decodeErr == nil && oaiResp.Error != nil {
			se.Type = oaiResp.Error.Type
			se.Message = oaiResp.Error.Message
		}
		return nil, se
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("%w: decode API response: %v", ErrMalformedOutput, decodeErr)
	}
	if oaiResp.Error != nil {
		return nil, &StatusError{StatusCode: resp.StatusCode, Type: oaiResp.Error.Type, Message: oaiResp.Error.Message}
	}

	out := &CompletionResponse{
		Usage: TokenUsage{
			PromptTokens:     oaiResp.Usage.PromptTokens,
			CompletionTokens: oaiResp.Usage.CompletionTokens,
			TotalTokens:      oaiResp.Usage.TotalTokens,
		},
	}
	if len(oaiResp.Choices) == 0 {
		out.Empty = true
		return out, nil
	}

	choice := oaiResp.Choices[0]
	out.FinishReason = choice.FinishReason
	out.Message.Role = Role(choice.Message.Role)
	if s, ok := choice.Message.Content.(string); ok {
		out.Message.Content = s
	}
	for _, tc := range choice.Message.ToolCalls {
		out.Message.ToolCalls = append(out.Message.ToolCalls, ToolCall{
			ID:       tc.ID,
			Type:     tc.Type,
			Function: FunctionCall(tc.Function),
		})
	}
	return out, nil
}

// isTransient reports whether err is worth another attempt: transport
// failures and 5xx answers. Rate limits, malformed bodies, 4xx answers and
// context errors are not.
func isTransient(err error) bool {
	if errors.Is(err, ErrRateLimit) || errors.Is(err, ErrMalformedOutput) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode >= 500
	}
	return true
}
