// Package llm defines the language-model completion capability used by the
// LLM-mediated resolver, and an OpenAI-compatible implementation.
//
// A single Complete call sends a system instruction, the user's utterance and
// the operation catalog as tool definitions. The model answers either with
// free text or with an ordered list of tool calls whose arguments are raw
// JSON strings.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimit is returned when the upstream API reports HTTP 429.
var ErrRateLimit = errors.New("llm: upstream rate limit exceeded")

// ErrMalformedOutput is returned when the upstream API answers with a body
// that cannot be decoded, or when a tool call carries arguments that are not
// a JSON object.
var ErrMalformedOutput = errors.New("llm: malformed response from model")

// StatusError is a non-2xx answer from the upstream API.
type StatusError struct {
	StatusCode int
	Type       string
	Message    string
}

func (e *StatusError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("llm: API error (HTTP %d, %s): %s", e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("llm: API error (HTTP %d): %s", e.StatusCode, e.Message)
}

// Role is the role of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message represents a single message in a conversation.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"` // when Role == RoleTool
	Name       string     `json:"name,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // always "function"
	Function FunctionCall `json:"function"`
}

// FunctionCall holds the tool name and raw JSON-encoded arguments.
type FunctionCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolDefinition describes a tool the model may call.
type ToolDefinition struct {
	Type     string      `json:"type"` // "function"
	Function FunctionDef `json:"function"`
}

// FunctionDef is the schema of a callable function.
type FunctionDef struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"` // JSON Schema object
}

// ToolChoice controls whether the model may call tools.
type ToolChoice string

const (
	ToolChoiceAuto     ToolChoice = "auto"
	ToolChoiceNone     ToolChoice = "none"
	ToolChoiceRequired ToolChoice = "required"
)

// CompletionRequest is the input to a single inference call.
type CompletionRequest struct {
	Model      string
	Messages   []Message
	Tools      []ToolDefinition
	ToolChoice ToolChoice // empty omits the field
	MaxTokens  int
}

// CompletionResponse is the output of a single inference call.
type CompletionResponse struct {
	// Message is the first choice's assistant message.
	Message Message
	// Empty is true when the API answered without any choice; Message is
	// then the zero value.
	Empty bool
	// FinishReason explains why the model stopped: "stop" or "tool_calls".
	FinishReason string
	Usage        TokenUsage
}

// TokenUsage reports token consumption.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Provider is the interface every completion backend implements.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
