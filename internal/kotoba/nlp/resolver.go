package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

// SystemPrompt is the instruction sent ahead of every utterance.
const SystemPrompt = `あなたはソーシャルメディアアプリのAIアシスタントです。
ユーザーの自然言語での要求を理解し、適切なAPI関数を呼び出してください。

利用可能な機能:
- 投稿の作成、取得、検索
- いいね、リポスト、引用投稿
- ユーザー情報の取得
- お知らせの確認

ユーザーが明確に指示していない場合は、まず詳細を確認してください。
エラーが発生した場合は、分かりやすく説明してください。`

const (
	noChoiceReply     = "すみません、応答を生成できませんでした。"
	emptyContentReply = "申し訳ありませんが、適切な応答を生成できませんでした。"
)

// callerScoped lists the operations whose userId argument always comes from
// the caller, never from the model.
var callerScoped = map[string]bool{
	registry.LikePost:  true,
	registry.PostReply: true,
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	// Model overrides the provider's default model.
	Model string
	// MaxTokens caps the completion length; 0 leaves it to the provider.
	MaxTokens int
	// Limiter, when set, gates every Resolve call per caller.
	Limiter *Limiter
}

// Resolver is the LLM-mediated resolver: the model picks the operations and
// their arguments, the Executor runs them, and each result is rendered into
// one sentence of the reply.
type Resolver struct {
	provider llm.Provider
	exec     Executor
	tools    []llm.ToolDefinition
	cfg      ResolverConfig
}

// NewResolver returns a Resolver offering every operation in reg as a tool.
func NewResolver(p llm.Provider, exec Executor, reg *registry.Registry, cfg ResolverConfig) *Resolver {
	return &Resolver{
		provider: p,
		exec:     exec,
		tools:    Tools(reg),
		cfg:      cfg,
	}
}

// Tools derives the tool definitions from reg, in registry order.
func Tools(reg *registry.Registry) []llm.ToolDefinition {
	list := reg.List()
	tools := make([]llm.ToolDefinition, 0, len(list))
	for _, op := range list {
		tools = append(tools, llm.ToolDefinition{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        op.Name,
				Description: op.Description,
				Parameters:  op.Schema(),
			},
		})
	}
	return tools
}

// CallerKey identifies caller for rate limiting.
func CallerKey(c ops.Caller) string {
	if c.UserID == 0 {
		return "anonymous"
	}
	return "user:" + strconv.FormatInt(c.UserID, 10)
}

// invocation is one parsed tool call.
type invocation struct {
	name string
	args ops.Args
}

// Resolve asks the model what to do with utterance and carries it out.
//
// Errors from the limiter, the provider, or a tool call whose arguments are
// not a JSON object are returned unchanged so the caller can fall back. No
// operation runs in that case. Errors from individual executions are
// rendered into the reply instead.
func (r *Resolver) Resolve(ctx context.Context, utterance string, caller ops.Caller) (string, error) {
	log := observability.WithTrace(ctx)
	key := CallerKey(caller)

	if r.cfg.Limiter != nil {
		if err := r.cfg.Limiter.Admit(key); err != nil {
			return "", err
		}
	}

	resp, err := r.provider.Complete(ctx, llm.CompletionRequest{
		Model: r.cfg.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: SystemPrompt},
			{Role: llm.RoleUser, Content: utterance},
		},
		Tools:      r.tools,
		ToolChoice: llm.ToolChoiceAuto,
		MaxTokens:  r.cfg.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("nlp: completion: %w", err)
	}
	if r.cfg.Limiter != nil {
		r.cfg.Limiter.Charge(key, resp.Usage.TotalTokens)
	}
	log.Info("nlp: token usage",
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"total_tokens", resp.Usage.TotalTokens,
		"tool_calls", len(resp.Message.ToolCalls))

	if resp.Empty {
		return noChoiceReply, nil
	}
	if len(resp.Message.ToolCalls) == 0 {
		if resp.Message.Content == "" {
			return emptyContentReply, nil
		}
		return resp.Message.Content, nil
	}

	calls, err := parseToolCalls(resp.Message.ToolCalls)
	if err != nil {
		return "", err
	}

	sentences := make([]string, 0, len(calls))
	for _, call := range calls {
		decorate(call, caller)
		res, err := r.exec.Execute(ctx, call.name, call.args, caller)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			log.Warn("nlp: tool execution raised", "op", call.name, "err", err)
			sentences = append(sentences, fmt.Sprintf("%sの実行中にエラーが発生しました: %s", call.name, err.Error()))
			continue
		}
		sentences = append(sentences, Render(res, call.args))
	}
	return strings.Join(sentences, "\n"), nil
}

// parseToolCalls decodes every call's arguments before anything runs, so a
// single malformed payload aborts the whole resolution.
func parseToolCalls(tcs []llm.ToolCall) ([]invocation, error) {
	out := make([]invocation, 0, len(tcs))
	for _, tc := range tcs {
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		args := ops.Args{}
		raw := strings.TrimSpace(tc.Function.Arguments)
		if raw != "" {
			dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
			dec.UseNumber()
			if err := dec.Decode(&args); err != nil {
				return nil, fmt.Errorf("%w: arguments for %q: %v", llm.ErrMalformedOutput, tc.Function.Name, err)
			}
			if args == nil {
				args = ops.Args{}
			}
		}
		out = append(out, invocation{name: tc.Function.Name, args: args})
	}
	return out, nil
}

// decorate sets userId to the caller's id on caller-scoped operations. A
// model-supplied id is dropped when the caller is anonymous.
func decorate(call invocation, caller ops.Caller) {
	if !callerScoped[call.name] {
		return
	}
	if caller.UserID != 0 {
		call.args["userId"] = caller.UserID
	} else {
		delete(call.args, "userId")
	}
}
