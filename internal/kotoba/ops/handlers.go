package ops

import (
	"context"
	"encoding/json"

	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

// handler invokes one backend adapter with a schema-checked JSON argument
// object.
type handler func(ctx context.Context, b Backend, raw []byte, c Caller) (any, error)

// bind adapts a typed handler to the generic handler signature by decoding
// raw into A.
func bind[A any](fn func(ctx context.Context, b Backend, a A, c Caller) (any, error)) handler {
	return func(ctx context.Context, b Backend, raw []byte, c Caller) (any, error) {
		var a A
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &a); err != nil {
				return nil, &argError{msg: "引数の形式が正しくありません", err: err}
			}
		}
		return fn(ctx, b, a, c)
	}
}

type (
	noArgs struct{}

	signupArgs struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	signinArgs struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	hideNoticeArgs struct {
		ID int64 `json:"id"`
	}
	timelineArgs struct {
		Tab string `json:"tab"`
	}
	postDetailArgs struct {
		PostID string `json:"postId"`
	}
	createPostArgs struct {
		Content string `json:"content"`
	}
	postReplyArgs struct {
		Content   string `json:"content"`
		ReplyToID int64  `json:"replyToId"`
	}
	likePostArgs struct {
		PostID int64 `json:"postId"`
		UserID int64 `json:"userId"`
	}
	repostArgs struct {
		PostID int64 `json:"postId"`
	}
	quotePostArgs struct {
		QuotedPostID int64  `json:"quotedPostId"`
		Content      string `json:"content"`
	}
	searchArgs struct {
		Query string `json:"query"`
	}
)

// handlers is the dispatch table. NewExecutor checks it against the registry.
var handlers = map[string]handler{
	registry.Signup: bind(func(ctx context.Context, b Backend, a signupArgs, _ Caller) (any, error) {
		return b.Signup(ctx, backend.SignupParams{Name: a.Name, Email: a.Email, Password: a.Password})
	}),
	registry.Signin: bind(func(ctx context.Context, b Backend, a signinArgs, _ Caller) (any, error) {
		return b.Signin(ctx, a.Email, a.Password)
	}),
	registry.FetchMe: bind(func(ctx context.Context, b Backend, _ noArgs, c Caller) (any, error) {
		return b.FetchMe(ctx, c.Credential)
	}),
	registry.FetchNotice: bind(func(ctx context.Context, b Backend, _ noArgs, c Caller) (any, error) {
		return b.FetchNotices(ctx, c.Credential)
	}),
	registry.HideNotice: bind(func(ctx context.Context, b Backend, a hideNoticeArgs, c Caller) (any, error) {
		return nil, b.HideNotice(ctx, c.Credential, a.ID)
	}),
	registry.FetchTimeline: bind(func(ctx context.Context, b Backend, a timelineArgs, c Caller) (any, error) {
		return b.FetchTimeline(ctx, c.Credential, a.Tab)
	}),
	registry.FetchPostDetail: bind(func(ctx context.Context, b Backend, a postDetailArgs, c Caller) (any, error) {
		return b.FetchPostDetail(ctx, c.Credential, a.PostID)
	}),
	registry.CreatePost: bind(func(ctx context.Context, b Backend, a createPostArgs, c Caller) (any, error) {
		return nil, b.CreatePost(ctx, c.Credential, a.Content)
	}),
	registry.PostReply: bind(func(ctx context.Context, b Backend, a postReplyArgs, c Caller) (any, error) {
		return nil, b.PostReply(ctx, c.Credential, a.Content, a.ReplyToID)
	}),
	registry.LikePost: bind(func(ctx context.Context, b Backend, a likePostArgs, c Caller) (any, error) {
		userID := a.UserID
		if userID == 0 {
			userID = c.UserID
		}
		return b.LikePost(ctx, c.Credential, a.PostID, userID)
	}),
	registry.Repost: bind(func(ctx context.Context, b Backend, a repostArgs, c Caller) (any, error) {
		return b.Repost(ctx, c.Credential, a.PostID)
	}),
	registry.QuotePost: bind(func(ctx context.Context, b Backend, a quotePostArgs, c Caller) (any, error) {
		return b.QuotePost(ctx, c.Credential, a.QuotedPostID, a.Content)
	}),
	registry.SearchPosts: bind(func(ctx context.Context, b Backend, a searchArgs, c Caller) (any, error) {
		return b.SearchPosts(ctx, c.Credential, a.Query)
	}),
	registry.SearchUsers: bind(func(ctx context.Context, b Backend, a searchArgs, c Caller) (any, error) {
		return b.SearchUsers(ctx, c.Credential, a.Query)
	}),
}
