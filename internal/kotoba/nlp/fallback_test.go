package nlp_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/nlp"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

func TestFallback_IntentRouting(t *testing.T) {
	cases := []struct {
		utterance string
		op        string
		key       string
		want      any
	}{
		{"「今日は良い天気です」という投稿を作成して", registry.CreatePost, "content", "今日は良い天気です"},
		{"投稿を作成して「朝ごはん美味しい」", registry.CreatePost, "content", "朝ごはん美味しい"},
		{"タイムラインを表示して", registry.FetchTimeline, "", nil},
		{"投稿一覧を見せて", registry.FetchTimeline, "", nil},
		{"「プログラミング」で検索して", registry.SearchPosts, "query", "プログラミング"},
		{"Goで検索", registry.SearchPosts, "query", "Goで"},
		{"投稿123にいいねして", registry.LikePost, "postId", int64(123)},
		{"ユーザー情報を表示して", registry.FetchMe, "", nil},
		{"プロフィールを見せて", registry.FetchMe, "", nil},
		{"お知らせを表示して", registry.FetchNotice, "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.utterance, func(t *testing.T) {
			ex := &fakeExecutor{}
			f := nlp.NewFallback(ex)
			if _, err := f.Resolve(context.Background(), tc.utterance, ops.Caller{}); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			calls := ex.Calls()
			if len(calls) != 1 {
				t.Fatalf("want 1 call, got %d", len(calls))
			}
			if calls[0].Name != tc.op {
				t.Errorf("op: got %q, want %q", calls[0].Name, tc.op)
			}
			if tc.key != "" && calls[0].Args[tc.key] != tc.want {
				t.Errorf("%s: got %#v, want %#v", tc.key, calls[0].Args[tc.key], tc.want)
			}
		})
	}
}

func TestFallback_LikeCarriesCallerID(t *testing.T) {
	ex := &fakeExecutor{}
	f := nlp.NewFallback(ex)
	reply, err := f.Resolve(context.Background(), "投稿123にいいねして", ops.Caller{UserID: 42, Credential: "tok"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "投稿123にいいねしました" {
		t.Errorf("reply: got %q", reply)
	}
	c := ex.Calls()[0]
	if c.Args["userId"] != int64(42) || c.Caller.Credential != "tok" {
		t.Errorf("call: %+v", c)
	}
}

func TestFallback_HelpWithoutExecuting(t *testing.T) {
	ex := &fakeExecutor{}
	f := nlp.NewFallback(ex)
	reply, err := f.Resolve(context.Background(), "こんにちは", ops.Caller{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "申し訳ありませんが、「こんにちは」のご要望を理解できませんでした。\n\n以下のような操作が可能です:\n" +
		"・「今日は良い天気です」という投稿を作成して\n・タイムラインを表示して\n・「プログラミング」で検索して\n" +
		"・投稿123にいいねして\n・ユーザー情報を表示して\n・お知らせを表示して"
	if reply != want {
		t.Errorf("reply:\n got %q\nwant %q", reply, want)
	}
	if n := len(ex.Calls()); n != 0 {
		t.Errorf("executor called %d times", n)
	}
}

func TestFallback_PromptsWithoutExecuting(t *testing.T) {
	cases := map[string]string{
		"投稿を作成して":  nlp.PromptPostContent,
		"検索":       nlp.PromptSearchQuery,
		"投稿にいいねして": nlp.PromptPostID,
	}
	for utterance, want := range cases {
		ex := &fakeExecutor{}
		reply, err := nlp.NewFallback(ex).Resolve(context.Background(), utterance, ops.Caller{})
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", utterance, err)
		}
		if reply != want {
			t.Errorf("%q: got %q, want %q", utterance, reply, want)
		}
		if n := len(ex.Calls()); n != 0 {
			t.Errorf("%q: executor called %d times", utterance, n)
		}
	}
}

func TestFallback_FirstMatchWins(t *testing.T) {
	// Mentions both the create-post and the timeline keywords.
	ex := &fakeExecutor{}
	_, _ = nlp.NewFallback(ex).Resolve(context.Background(), "「テスト」という投稿を作成してタイムラインを表示して", ops.Caller{})
	if c := ex.Calls(); len(c) != 1 || c[0].Name != registry.CreatePost {
		t.Fatalf("calls: %+v", c)
	}
}

func TestFallback_FailureAndApology(t *testing.T) {
	ex := &fakeExecutor{
		results: map[string]*ops.Result{
			registry.FetchTimeline: ops.Fail(registry.FetchTimeline, ops.KindServer, "maintenance"),
		},
		errs: map[string]error{
			registry.FetchNotice: errors.New("boom"),
		},
	}
	f := nlp.NewFallback(ex)

	reply, _ := f.Resolve(context.Background(), "タイムラインを表示して", ops.Caller{})
	if reply != "タイムラインの取得に失敗しました: maintenance" {
		t.Errorf("failure reply: got %q", reply)
	}
	reply, err := f.Resolve(context.Background(), "お知らせを表示して", ops.Caller{})
	if err != nil {
		t.Fatalf("fallback must not propagate execution errors: %v", err)
	}
	if reply != "お知らせの取得中にエラーが発生しました" {
		t.Errorf("apology: got %q", reply)
	}
}

func TestFallback_CancelledContextIsReturned(t *testing.T) {
	ex := &fakeExecutor{errs: map[string]error{registry.FetchMe: context.Canceled}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := nlp.NewFallback(ex).Resolve(ctx, "プロフィール", ops.Caller{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
}

func TestFallback_Idempotent(t *testing.T) {
	posts := []backend.Post{
		{ID: 1, Content: "one", User: &backend.User{Name: "a"}},
		{ID: 2, Content: "two"},
	}
	ex := &fakeExecutor{results: map[string]*ops.Result{
		registry.FetchTimeline: ops.Success(registry.FetchTimeline, posts),
	}}
	f := nlp.NewFallback(ex)
	first, _ := f.Resolve(context.Background(), "タイムライン", ops.Caller{})
	second, _ := f.Resolve(context.Background(), "タイムライン", ops.Caller{})
	if first != second {
		t.Errorf("replies differ:\n%q\n%q", first, second)
	}
	if !strings.HasPrefix(first, "最新の投稿（2件中2件表示）:") {
		t.Errorf("reply: %q", first)
	}
}
