package nlp

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

const (
	// ContentLimit is the number of characters of post content shown before
	// truncation.
	ContentLimit = 50
	// SummaryLimit is the number of collection items listed in a summary.
	SummaryLimit = 3

	ellipsis      = "..."
	anonymousName = "匿名"
	unknownValue  = "不明"
)

// Truncate cuts s to ContentLimit characters followed by "..." when it is
// longer; shorter strings are returned unchanged. Characters are Unicode
// code points.
func Truncate(s string) string {
	r := []rune(s)
	if len(r) <= ContentLimit {
		return s
	}
	return string(r[:ContentLimit]) + ellipsis
}

// summary renders a collection header and at most SummaryLimit lines. The
// header always carries the true total.
func summary(title string, total int, lines []string) string {
	shown := min(total, SummaryLimit)
	var b strings.Builder
	fmt.Fprintf(&b, "%s（%d件中%d件表示）:", title, total, shown)
	for _, l := range lines[:shown] {
		b.WriteString("\n")
		b.WriteString(l)
	}
	return b.String()
}

func postLine(p backend.Post) string {
	name := anonymousName
	if p.User != nil && p.User.Name != "" {
		name = p.User.Name
	}
	return "・" + name + ": " + Truncate(p.Content)
}

func postLines(posts []backend.Post) []string {
	n := min(len(posts), SummaryLimit)
	lines := make([]string, 0, n)
	for _, p := range posts[:n] {
		lines = append(lines, postLine(p))
	}
	return lines
}

// NoticeTitle is the one-line headline for a notice.
func NoticeTitle(n backend.Notice) string {
	name := n.User.Name
	if name == "" {
		name = anonymousName
	}
	switch n.NotifiableType {
	case backend.NotifiableLike:
		return name + "さんがいいねしました"
	case backend.NotifiableRepost:
		return name + "さんがリポストしました"
	case backend.NotifiableReply:
		return name + "さんが返信しました"
	case backend.NotifiableFollow:
		return name + "さんにフォローされました"
	default:
		return name + "さんからのお知らせ"
	}
}

func noticeLine(n backend.Notice) string {
	content := ""
	if n.Post != nil {
		content = n.Post.Content
	}
	return "・" + NoticeTitle(n) + ": " + Truncate(content)
}

func orUnknown(s string) string {
	if s == "" {
		return unknownValue
	}
	return s
}

func argString(args ops.Args, key string) string {
	switch v := args[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// RenderSuccess turns a successful operation result into a reply sentence.
// args are the arguments the operation was executed with.
func RenderSuccess(op string, args ops.Args, data any) string {
	switch op {
	case registry.CreatePost:
		return fmt.Sprintf("投稿を作成しました: \"%s\"", argString(args, "content"))

	case registry.FetchTimeline:
		posts, _ := data.([]backend.Post)
		if len(posts) == 0 {
			return "現在、タイムラインに投稿がありません。"
		}
		return summary("最新の投稿", len(posts), postLines(posts))

	case registry.SearchPosts:
		query := argString(args, "query")
		posts, _ := data.([]backend.Post)
		if len(posts) == 0 {
			return fmt.Sprintf("「%s」に関する投稿が見つかりませんでした。", query)
		}
		return summary(fmt.Sprintf("「%s」の検索結果", query), len(posts), postLines(posts))

	case registry.SearchUsers:
		query := argString(args, "query")
		users, _ := data.([]backend.User)
		if len(users) == 0 {
			return fmt.Sprintf("「%s」に一致するユーザーが見つかりませんでした。", query)
		}
		n := min(len(users), SummaryLimit)
		lines := make([]string, 0, n)
		for _, u := range users[:n] {
			lines = append(lines, "・"+orUnknown(u.Name))
		}
		return summary(fmt.Sprintf("「%s」のユーザー検索結果", query), len(users), lines)

	case registry.LikePost:
		return fmt.Sprintf("投稿%sにいいねしました", argString(args, "postId"))

	case registry.Repost:
		return fmt.Sprintf("投稿%sをリポストしました", argString(args, "postId"))

	case registry.QuotePost:
		return fmt.Sprintf("投稿を引用しました: \"%s\"", argString(args, "content"))

	case registry.PostReply:
		return fmt.Sprintf("返信を投稿しました: \"%s\"", argString(args, "content"))

	case registry.FetchMe:
		var name, email string
		if u, ok := data.(*backend.User); ok && u != nil {
			name, email = u.Name, u.Email
		}
		return fmt.Sprintf("ユーザー情報:\n名前: %s\nメール: %s", orUnknown(name), orUnknown(email))

	case registry.FetchNotice:
		notices, _ := data.([]backend.Notice)
		if len(notices) == 0 {
			return "現在、お知らせはありません。"
		}
		n := min(len(notices), SummaryLimit)
		lines := make([]string, 0, n)
		for _, nt := range notices[:n] {
			lines = append(lines, noticeLine(nt))
		}
		return summary("お知らせ", len(notices), lines)

	case registry.HideNotice:
		return fmt.Sprintf("お知らせ%sを非表示にしました", argString(args, "id"))

	case registry.FetchPostDetail:
		p, ok := data.(*backend.Post)
		if !ok || p == nil {
			return "操作が正常に完了しました。"
		}
		name := anonymousName
		if p.User != nil && p.User.Name != "" {
			name = p.User.Name
		}
		return fmt.Sprintf("投稿%sの詳細:\n%s: %s\n返信: %d件",
			argString(args, "postId"), name, Truncate(p.Content), max(p.RepliesCount, len(p.Replies)))

	case registry.Signup:
		if a, ok := data.(*backend.AuthResponse); ok && a != nil {
			return fmt.Sprintf("ユーザー登録が完了しました: %s", orUnknown(a.User.Name))
		}
		return "ユーザー登録が完了しました"

	case registry.Signin:
		if a, ok := data.(*backend.AuthResponse); ok && a != nil {
			return fmt.Sprintf("ログインしました: %s", orUnknown(a.User.Name))
		}
		return "ログインしました"

	default:
		return "操作が正常に完了しました。"
	}
}

// failureLabels maps an operation to the lead-in of its failure sentence.
var failureLabels = map[string]string{
	registry.Signup:          "ユーザー登録に失敗しました",
	registry.Signin:          "ログインに失敗しました",
	registry.FetchMe:         "ユーザー情報の取得に失敗しました",
	registry.FetchNotice:     "お知らせの取得に失敗しました",
	registry.HideNotice:      "お知らせの非表示に失敗しました",
	registry.FetchTimeline:   "タイムラインの取得に失敗しました",
	registry.FetchPostDetail: "投稿の取得に失敗しました",
	registry.CreatePost:      "投稿の作成に失敗しました",
	registry.PostReply:       "返信に失敗しました",
	registry.LikePost:        "いいねに失敗しました",
	registry.Repost:          "リポストに失敗しました",
	registry.QuotePost:       "引用投稿に失敗しました",
	registry.SearchPosts:     "検索に失敗しました",
	registry.SearchUsers:     "ユーザー検索に失敗しました",
}

// RenderFailure turns a failed operation result into a reply sentence.
func RenderFailure(op string, f *ops.Failure) string {
	msg := "不明なエラーが発生しました"
	if f != nil && f.Message != "" {
		msg = f.Message
	}
	label, ok := failureLabels[op]
	if !ok {
		label = "操作に失敗しました"
	}
	return label + ": " + msg
}

// Render renders res with RenderSuccess or RenderFailure.
func Render(res *ops.Result, args ops.Args) string {
	if res.Succeeded() {
		return RenderSuccess(res.Operation, args, res.Data)
	}
	return RenderFailure(res.Operation, res.Failure)
}
