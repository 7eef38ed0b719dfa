package turn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/llm"
	"github.com/bdobrica/Kotoba/internal/kotoba/nlp"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

type stubResolver struct {
	reply  string
	err    error
	called int
	last   ops.Caller
}

func (s *stubResolver) Resolve(_ context.Context, _ string, c ops.Caller) (string, error) {
	s.called++
	s.last = c
	return s.reply, s.err
}

type failingProvider struct{ err error }

func (p failingProvider) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return nil, p.err
}

type staticExecutor struct{}

func (staticExecutor) Execute(_ context.Context, name string, _ ops.Args, _ ops.Caller) (*ops.Result, error) {
	if name == registry.FetchTimeline {
		return ops.Success(name, []backend.Post{{Content: "hello", User: &backend.User{Name: "a"}}}), nil
	}
	return ops.Success(name, nil), nil
}

func TestHandleTurn_EmptyUtterance(t *testing.T) {
	c := turn.New(&stubResolver{}, &stubResolver{})
	for _, u := range []string{"", "   "} {
		if _, err := c.HandleTurn(context.Background(), turn.Request{Utterance: u}); !errors.Is(err, turn.ErrInvalidInput) {
			t.Errorf("%q: want ErrInvalidInput, got %v", u, err)
		}
	}
}

func TestHandleTurn_PrimaryWins(t *testing.T) {
	primary := &stubResolver{reply: "from llm"}
	fallback := &stubResolver{reply: "from fallback"}
	c := turn.New(primary, fallback)

	reply, err := c.HandleTurn(context.Background(), turn.Request{Utterance: "hi", UserID: 3, Credential: "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "from llm" || fallback.called != 0 {
		t.Errorf("reply=%q fallback calls=%d", reply, fallback.called)
	}
	if primary.last.UserID != 3 || primary.last.Credential != "tok" {
		t.Errorf("caller: %+v", primary.last)
	}
}

func TestHandleTurn_NoPrimary(t *testing.T) {
	fallback := &stubResolver{reply: "kw"}
	c := turn.New(nil, fallback)
	reply, err := c.HandleTurn(context.Background(), turn.Request{Utterance: "hi"})
	if err != nil || reply != "kw" {
		t.Fatalf("reply=%q err=%v", reply, err)
	}
}

func TestHandleTurn_BothFail(t *testing.T) {
	c := turn.New(&stubResolver{err: errors.New("llm down")}, &stubResolver{err: context.Canceled})
	_, err := c.HandleTurn(context.Background(), turn.Request{Utterance: "hi"})
	if !errors.Is(err, turn.ErrInternal) {
		t.Fatalf("want ErrInternal, got %v", err)
	}
}

// When the LLM path fails the reply must be exactly what the fallback alone
// would say.
func TestHandleTurn_FallbackByteIdentical(t *testing.T) {
	utterances := []string{
		"タイムラインを表示して",
		"「今日は良い天気です」という投稿を作成して",
		"投稿123にいいねして",
		"なにかして",
	}
	for _, u := range utterances {
		fb := nlp.NewFallback(staticExecutor{})
		primary := nlp.NewResolver(failingProvider{err: llm.ErrRateLimit}, staticExecutor{}, registry.Default(), nlp.ResolverConfig{})
		c := turn.New(primary, fb)

		got, err := c.HandleTurn(context.Background(), turn.Request{Utterance: u, UserID: 9, Credential: "tok"})
		if err != nil {
			t.Fatalf("%q: %v", u, err)
		}
		want, _ := fb.Resolve(context.Background(), u, ops.Caller{UserID: 9, Credential: "tok"})
		if got != want {
			t.Errorf("%q:\n got %q\nwant %q", u, got, want)
		}
	}
}
