package backend

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

// Signup registers a new account. It never sends a credential.
func (c *Client) Signup(ctx context.Context, p SignupParams) (*AuthResponse, error) {
	body := map[string]any{
		"user": map[string]any{
			"name":                  p.Name,
			"email":                 p.Email,
			"password":              p.Password,
			"password_confirmation": p.Password,
			"image":                 nil,
		},
	}
	var out AuthResponse
	err := c.do(ctx, call{op: "Signup", method: http.MethodPost, path: "/api/v1/auth/signup", body: body, anonymous: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Signin exchanges email and password for a token. It never sends a
// credential.
func (c *Client) Signin(ctx context.Context, email, password string) (*AuthResponse, error) {
	body := map[string]string{"email": email, "password": password}
	var out AuthResponse
	err := c.do(ctx, call{op: "Signin", method: http.MethodPost, path: "/api/v1/auth/signin", body: body, anonymous: true}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchMe returns the profile of the credential's owner.
func (c *Client) FetchMe(ctx context.Context, credential string) (*User, error) {
	var out User
	if err := c.do(ctx, call{op: "FetchMe", method: http.MethodGet, path: "/api/v1/auth/me", credential: credential}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// FetchNotices returns the caller's notifications.
func (c *Client) FetchNotices(ctx context.Context, credential string) ([]Notice, error) {
	var out []Notice
	if err := c.do(ctx, call{op: "FetchNotices", method: http.MethodGet, path: "/api/v1/notice/", credential: credential}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// HideNotice marks a notification as hidden.
func (c *Client) HideNotice(ctx context.Context, credential string, id int64) error {
	path := "/api/v1/notice/" + strconv.FormatInt(id, 10) + "/"
	return c.do(ctx, call{op: "HideNotice", method: http.MethodPost, path: path, credential: credential}, nil)
}

// FetchTimeline returns the timeline for tab ("default" or "follow"). An
// empty tab selects "default".
func (c *Client) FetchTimeline(ctx context.Context, credential, tab string) ([]Post, error) {
	if tab == "" {
		tab = "default"
	}
	var out []Post
	q := url.Values{"tab": {tab}}
	if err := c.do(ctx, call{op: "FetchTimeline", method: http.MethodGet, path: "/api/v1/", query: q, credential: credential}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchPostDetail returns a post with its replies.
func (c *Client) FetchPostDetail(ctx context.Context, credential, postID string) (*Post, error) {
	var out Post
	path := "/api/v1/posts/" + url.PathEscape(postID)
	if err := c.do(ctx, call{op: "FetchPostDetail", method: http.MethodGet, path: path, credential: credential}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreatePost publishes a new post.
func (c *Client) CreatePost(ctx context.Context, credential, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, call{op: "CreatePost", method: http.MethodPost, path: "/api/v1/posts", body: body, credential: credential}, nil)
}

// PostReply replies to an existing post.
func (c *Client) PostReply(ctx context.Context, credential, content string, replyToID int64) error {
	body := map[string]any{"content": content, "reply_to_id": replyToID}
	path := "/api/v1/posts/" + strconv.FormatInt(replyToID, 10) + "/replies"
	return c.do(ctx, call{op: "PostReply", method: http.MethodPost, path: path, body: body, credential: credential}, nil)
}

// LikePost likes a post and returns the refreshed post. userID is sent as
// the liking user when non-zero. The refresh uses the same credential.
func (c *Client) LikePost(ctx context.Context, credential string, postID, userID int64) (*Post, error) {
	body := map[string]any{"post_id": postID}
	if userID != 0 {
		body["user_id"] = userID
	}
	id := strconv.FormatInt(postID, 10)
	if err := c.do(ctx, call{op: "LikePost", method: http.MethodPost, path: "/api/v1/posts/" + id + "/likes", body: body, credential: credential}, nil); err != nil {
		return nil, err
	}
	return c.FetchPostDetail(ctx, credential, id)
}

// Repost reposts a post and returns the refreshed post.
func (c *Client) Repost(ctx context.Context, credential string, postID int64) (*Post, error) {
	body := map[string]any{"post_id": postID}
	id := strconv.FormatInt(postID, 10)
	if err := c.do(ctx, call{op: "Repost", method: http.MethodPost, path: "/api/v1/posts/" + id + "/reposts", body: body, credential: credential}, nil); err != nil {
		return nil, err
	}
	return c.FetchPostDetail(ctx, credential, id)
}

// QuotePost publishes a post quoting quotedPostID and returns it.
func (c *Client) QuotePost(ctx context.Context, credential string, quotedPostID int64, content string) (*Post, error) {
	body := map[string]any{"content": content, "quoted_post_id": quotedPostID}
	var out Post
	if err := c.do(ctx, call{op: "QuotePost", method: http.MethodPost, path: "/api/v1/posts", body: body, credential: credential}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchPosts returns posts matching query, newest first.
func (c *Client) SearchPosts(ctx context.Context, credential, query string) ([]Post, error) {
	return c.search(ctx, "SearchPosts", credential, query, "live")
}

// SearchUsers returns users matching query.
func (c *Client) SearchUsers(ctx context.Context, credential, query string) ([]User, error) {
	var out []User
	q := url.Values{"q": {query}, "f": {"users"}}
	if err := c.do(ctx, call{op: "SearchUsers", method: http.MethodGet, path: "/api/v1/search", query: q, credential: credential}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) search(ctx context.Context, op, credential, query, filter string) ([]Post, error) {
	var out []Post
	q := url.Values{"q": {query}, "f": {filter}}
	if err := c.do(ctx, call{op: op, method: http.MethodGet, path: "/api/v1/search", query: q, credential: credential}, &out); err != nil {
		return nil, err
	}
	return out, nil
}
