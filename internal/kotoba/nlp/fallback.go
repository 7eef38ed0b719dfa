package nlp

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

// Executor runs one operation. *ops.Executor implements it.
type Executor interface {
	Execute(ctx context.Context, name string, args ops.Args, caller ops.Caller) (*ops.Result, error)
}

var _ Executor = (*ops.Executor)(nil)

// Prompts returned when an intent matched but its argument is missing.
const (
	PromptPostContent = "投稿内容を指定してください。例: 「今日は良い天気です」という投稿を作成して"
	PromptSearchQuery = "検索キーワードを指定してください。例: 「プログラミング」で検索して"
	PromptPostID      = "投稿IDを指定してください。例: 投稿123にいいねして"
)

const helpFormat = "申し訳ありませんが、「%s」のご要望を理解できませんでした。\n\n" +
	"以下のような操作が可能です:\n" +
	"・「今日は良い天気です」という投稿を作成して\n" +
	"・タイムラインを表示して\n" +
	"・「プログラミング」で検索して\n" +
	"・投稿123にいいねして\n" +
	"・ユーザー情報を表示して\n" +
	"・お知らせを表示して"

// HelpMessage is the reply for an utterance no rule understood.
func HelpMessage(utterance string) string {
	return fmt.Sprintf(helpFormat, utterance)
}

// extractor pulls one argument out of an utterance.
type extractor func(s string) (string, bool)

// capture returns an extractor yielding the first submatch of re, unless it
// is empty or equal to reject.
func capture(re *regexp.Regexp, reject string) extractor {
	return func(s string) (string, bool) {
		m := re.FindStringSubmatch(s)
		if len(m) < 2 || m[1] == "" || (reject != "" && m[1] == reject) {
			return "", false
		}
		return m[1], true
	}
}

// quoted returns the three quoted-span extractors for keyword: quote before
// keyword, keyword before quote, then any quote.
func quoted(keyword string) []extractor {
	k := regexp.QuoteMeta(keyword)
	return []extractor{
		capture(regexp.MustCompile(`「([^」]+)」.*`+k), ""),
		capture(regexp.MustCompile(k+`.*「([^」]+)」`), ""),
		capture(regexp.MustCompile(`「([^」]+)」`), ""),
	}
}

// firstOf applies extractors in order and returns the first hit.
func firstOf(s string, chain []extractor) (string, bool) {
	for _, ex := range chain {
		if v, ok := ex(s); ok {
			return v, true
		}
	}
	return "", false
}

var (
	postContentChain = quoted("投稿")

	// Search falls back to unquoted tokens next to the keyword.
	searchQueryChain = append(quoted("検索"),
		capture(regexp.MustCompile(`「([^」]+)」.*検索`), "検索"),
		capture(regexp.MustCompile(`検索.*「([^」]+)」`), "検索"),
		capture(regexp.MustCompile(`([^\s]+).*検索`), "検索"),
		capture(regexp.MustCompile(`検索.*([^\s]+)`), "検索"),
	)

	postIDPattern = regexp.MustCompile(`投稿(\d+)`)
)

// rule is one intent of the fallback resolver. Rules are tried in order and
// the first whose match reports true handles the utterance.
type rule struct {
	intent  string
	match   func(lower string) bool
	apology string
	run     func(ctx context.Context, f *Fallback, utterance string, caller ops.Caller) (string, error)
}

func containsAll(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if !strings.Contains(s, w) {
				return false
			}
		}
		return true
	}
}

func containsAny(words ...string) func(string) bool {
	return func(s string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}
}

var rules = []rule{
	{
		intent:  registry.CreatePost,
		match:   containsAll("投稿", "作成"),
		apology: "投稿の作成中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, u string, c ops.Caller) (string, error) {
			content, ok := firstOf(u, postContentChain)
			if !ok {
				return PromptPostContent, nil
			}
			return f.execute(ctx, registry.CreatePost, ops.Args{"content": content}, c)
		},
	},
	{
		intent:  registry.FetchTimeline,
		match:   containsAny("タイムライン", "投稿一覧"),
		apology: "タイムラインの取得中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, _ string, c ops.Caller) (string, error) {
			return f.execute(ctx, registry.FetchTimeline, ops.Args{}, c)
		},
	},
	{
		intent:  registry.SearchPosts,
		match:   containsAll("検索"),
		apology: "検索中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, u string, c ops.Caller) (string, error) {
			query, ok := firstOf(u, searchQueryChain)
			if !ok {
				return PromptSearchQuery, nil
			}
			return f.execute(ctx, registry.SearchPosts, ops.Args{"query": query}, c)
		},
	},
	{
		intent:  registry.LikePost,
		match:   containsAll("いいね", "投稿"),
		apology: "いいね中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, u string, c ops.Caller) (string, error) {
			m := postIDPattern.FindStringSubmatch(u)
			if m == nil {
				return PromptPostID, nil
			}
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return PromptPostID, nil
			}
			args := ops.Args{"postId": id}
			if c.UserID != 0 {
				args["userId"] = c.UserID
			}
			return f.execute(ctx, registry.LikePost, args, c)
		},
	},
	{
		intent:  registry.FetchMe,
		match:   containsAny("ユーザー情報", "プロフィール"),
		apology: "ユーザー情報の取得中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, _ string, c ops.Caller) (string, error) {
			return f.execute(ctx, registry.FetchMe, ops.Args{}, c)
		},
	},
	{
		intent:  registry.FetchNotice,
		match:   containsAll("お知らせ"),
		apology: "お知らせの取得中にエラーが発生しました",
		run: func(ctx context.Context, f *Fallback, _ string, c ops.Caller) (string, error) {
			return f.execute(ctx, registry.FetchNotice, ops.Args{}, c)
		},
	},
}

// Fallback is the deterministic, keyword-driven resolver. It holds no state
// between calls.
type Fallback struct {
	exec Executor
}

// NewFallback returns a Fallback dispatching through exec.
func NewFallback(exec Executor) *Fallback {
	return &Fallback{exec: exec}
}

// Resolve maps utterance to at most one operation and returns the reply.
//
// Failures of the executed operation are rendered into the reply. An error
// is returned only when ctx is done; every other error becomes the matched
// intent's apology sentence.
func (f *Fallback) Resolve(ctx context.Context, utterance string, caller ops.Caller) (string, error) {
	lower := strings.ToLower(utterance)
	log := observability.WithTrace(ctx)
	for _, r := range rules {
		if !r.match(lower) {
			continue
		}
		log.Debug("fallback: intent matched", "intent", r.intent)
		reply, err := r.run(ctx, f, utterance, caller)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", ctxErr
			}
			log.Warn("fallback: execution failed", "intent", r.intent, "err", err)
			return r.apology, nil
		}
		return reply, nil
	}
	log.Debug("fallback: no intent matched")
	return HelpMessage(utterance), nil
}

func (f *Fallback) execute(ctx context.Context, op string, args ops.Args, caller ops.Caller) (string, error) {
	res, err := f.exec.Execute(ctx, op, args, caller)
	if err != nil {
		return "", err
	}
	return Render(res, args), nil
}
