package nlp_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/nlp"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

// mockProvider is a test double for llm.Provider.
type mockProvider struct {
	resp     *llm.CompletionResponse
	err      error
	captured llm.CompletionRequest
	calls    int
}

func (m *mockProvider) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	m.calls++
	m.captured = req
	return m.resp, m.err
}

var _ llm.Provider = (*mockProvider)(nil)

func toolCalls(pairs ...string) *llm.CompletionResponse {
	resp := &llm.CompletionResponse{Message: llm.Message{Role: llm.RoleAssistant}}
	for i := 0; i+1 < len(pairs); i += 2 {
		resp.Message.ToolCalls = append(resp.Message.ToolCalls, llm.ToolCall{
			Type:     "function",
			Function: llm.FunctionCall{Name: pairs[i], Arguments: pairs[i+1]},
		})
	}
	return resp
}

func TestResolver_RequestCarriesRegistryTools(t *testing.T) {
	p := &mockProvider{resp: &llm.CompletionResponse{Message: llm.Message{Content: "こんにちは！"}}}
	r := nlp.NewResolver(p, &fakeExecutor{}, registry.Default(), nlp.ResolverConfig{})

	reply, err := r.Resolve(context.Background(), "やあ", ops.Caller{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "こんにちは！" {
		t.Errorf("plain text should be returned verbatim, got %q", reply)
	}
	req := p.captured
	if req.ToolChoice != llm.ToolChoiceAuto {
		t.Errorf("tool choice: got %q", req.ToolChoice)
	}
	if len(req.Tools) != registry.Default().Len() {
		t.Errorf("tools: got %d", len(req.Tools))
	}
	if req.Tools[0].Function.Name != registry.Signup {
		t.Errorf("tools must follow registry order, first=%q", req.Tools[0].Function.Name)
	}
	if len(req.Messages) != 2 || req.Messages[0].Content != nlp.SystemPrompt || req.Messages[1].Content != "やあ" {
		t.Errorf("messages: %+v", req.Messages)
	}
}

func TestResolver_EmptyAnswers(t *testing.T) {
	p := &mockProvider{resp: &llm.CompletionResponse{}}
	r := nlp.NewResolver(p, &fakeExecutor{}, registry.Default(), nlp.ResolverConfig{})
	reply, _ := r.Resolve(context.Background(), "x", ops.Caller{})
	if reply != "申し訳ありませんが、適切な応答を生成できませんでした。" {
		t.Errorf("empty content: got %q", reply)
	}

	p.resp = &llm.CompletionResponse{Empty: true}
	reply, _ = r.Resolve(context.Background(), "x", ops.Caller{})
	if reply != "すみません、応答を生成できませんでした。" {
		t.Errorf("no choice: got %q", reply)
	}
}

func TestResolver_SequentialInModelOrder(t *testing.T) {
	ex := &fakeExecutor{results: map[string]*ops.Result{
		registry.FetchMe: ops.Success(registry.FetchMe, &backend.User{Name: "alice", Email: "a@example.com"}),
	}}
	p := &mockProvider{resp: toolCalls(
		registry.CreatePost, `{"content":"hello"}`,
		registry.FetchMe, `{}`,
	)}
	r := nlp.NewResolver(p, ex, registry.Default(), nlp.ResolverConfig{})

	reply, err := r.Resolve(context.Background(), "投稿して自分の情報も見せて", ops.Caller{Credential: "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "投稿を作成しました: \"hello\"\nユーザー情報:\n名前: alice\nメール: a@example.com"
	if reply != want {
		t.Errorf("reply:\n got %q\nwant %q", reply, want)
	}
	calls := ex.Calls()
	if len(calls) != 2 || calls[0].Name != registry.CreatePost || calls[1].Name != registry.FetchMe {
		t.Fatalf("calls: %+v", calls)
	}
	if calls[0].Caller.Credential != "tok" {
		t.Errorf("credential not forwarded")
	}
}

func TestResolver_CallerIDOverridesModel(t *testing.T) {
	ex := &fakeExecutor{}
	p := &mockProvider{resp: toolCalls(
		registry.LikePost, `{"postId":5,"userId":999}`,
		registry.PostReply, `{"content":"hi","replyToId":5}`,
		registry.Repost, `{"postId":5,"userId":999}`,
	)}
	r := nlp.NewResolver(p, ex, registry.Default(), nlp.ResolverConfig{})

	if _, err := r.Resolve(context.Background(), "x", ops.Caller{UserID: 7}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := ex.Calls()
	if calls[0].Args["userId"] != int64(7) {
		t.Errorf("likePost userId: got %#v", calls[0].Args["userId"])
	}
	if calls[1].Args["userId"] != int64(7) {
		t.Errorf("postReply userId: got %#v", calls[1].Args["userId"])
	}
	if calls[2].Args["userId"] != json.Number("999") {
		t.Errorf("repost args must be left alone: %#v", calls[2].Args)
	}
}

func TestResolver_AnonymousCallerDropsModelUserID(t *testing.T) {
	ex := &fakeExecutor{}
	p := &mockProvider{resp: toolCalls(registry.LikePost, `{"postId":5,"userId":999}`)}
	r := nlp.NewResolver(p, ex, registry.Default(), nlp.ResolverConfig{})
	_, _ = r.Resolve(context.Background(), "x", ops.Caller{})
	if _, ok := ex.Calls()[0].Args["userId"]; ok {
		t.Errorf("model-supplied userId must not reach the executor")
	}
}

func TestResolver_MalformedArgumentsRunNothing(t *testing.T) {
	ex := &fakeExecutor{}
	p := &mockProvider{resp: toolCalls(
		registry.FetchMe, `{}`,
		registry.CreatePost, `{"content":`,
	)}
	r := nlp.NewResolver(p, ex, registry.Default(), nlp.ResolverConfig{})
	_, err := r.Resolve(context.Background(), "x", ops.Caller{})
	if !errors.Is(err, llm.ErrMalformedOutput) {
		t.Fatalf("want ErrMalformedOutput, got %v", err)
	}
	if n := len(ex.Calls()); n != 0 {
		t.Errorf("executor called %d times", n)
	}
}

func TestResolver_ExecutionErrorIsRendered(t *testing.T) {
	ex := &fakeExecutor{
		errs: map[string]error{registry.FetchMe: ops.ErrHandlerPanic},
		results: map[string]*ops.Result{
			registry.LikePost: ops.Fail(registry.LikePost, ops.KindNotFound, "post not found"),
		},
	}
	p := &mockProvider{resp: toolCalls(
		registry.FetchMe, `{}`,
		registry.LikePost, `{"postId":1}`,
	)}
	r := nlp.NewResolver(p, ex, registry.Default(), nlp.ResolverConfig{})
	reply, err := r.Resolve(context.Background(), "x", ops.Caller{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	lines := strings.Split(reply, "\n")
	if len(lines) != 2 {
		t.Fatalf("want 2 lines, got %q", reply)
	}
	if !strings.HasPrefix(lines[0], "fetchMeの実行中にエラーが発生しました: ") {
		t.Errorf("line 1: %q", lines[0])
	}
	if lines[1] != "いいねに失敗しました: post not found" {
		t.Errorf("line 2: %q", lines[1])
	}
}

func TestResolver_ProviderErrorPropagates(t *testing.T) {
	p := &mockProvider{err: llm.ErrRateLimit}
	r := nlp.NewResolver(p, &fakeExecutor{}, registry.Default(), nlp.ResolverConfig{})
	if _, err := r.Resolve(context.Background(), "x", ops.Caller{}); !errors.Is(err, llm.ErrRateLimit) {
		t.Fatalf("want ErrRateLimit, got %v", err)
	}
}

func TestResolver_LimiterGates(t *testing.T) {
	p := &mockProvider{resp: &llm.CompletionResponse{
		Message: llm.Message{Content: "ok"},
		Usage:   llm.TokenUsage{TotalTokens: 100},
	}}
	lim := nlp.NewLimiter(nlp.LimiterConfig{CallLimit: 5, TokenBudget: 150})
	r := nlp.NewResolver(p, &fakeExecutor{}, registry.Default(), nlp.ResolverConfig{Limiter: lim})
	caller := ops.Caller{UserID: 1}

	for i := range 2 {
		if _, err := r.Resolve(context.Background(), "x", caller); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if _, err := r.Resolve(context.Background(), "x", caller); !errors.Is(err, nlp.ErrBudgetExhausted) {
		t.Fatalf("want ErrBudgetExhausted, got %v", err)
	}
	if p.calls != 2 {
		t.Errorf("provider calls: got %d, want 2", p.calls)
	}
	// Another caller is unaffected.
	if _, err := r.Resolve(context.Background(), "x", ops.Caller{UserID: 2}); err != nil {
		t.Errorf("other caller: %v", err)
	}
}
