// Package backend is the REST client for the social-media backend. Each
// exported method is one Backend Call Adapter: it maps typed arguments to a
// single outbound request (two for like/repost, which re-fetch the post) and
// decodes the response into the operation's result shape.
//
// Authentication is explicit. Every authenticated method takes the caller's
// bearer credential as an argument; the client keeps no per-user state and
// is safe for concurrent use by turns belonging to different users.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/version"
)

const defaultTimeout = 15 * time.Second

// maxErrorBodyBytes caps how much of an error response is read.
const maxErrorBodyBytes = 64 * 1024

// Config configures the backend client.
type Config struct {
	// BaseURL is the backend origin, e.g. "https://api.example.com".
	BaseURL string
	// Timeout is the per-request HTTP timeout. Defaults to 15 s.
	Timeout time.Duration
	// HTTPClient overrides the client used for requests. Timeout is ignored
	// when set.
	HTTPClient *http.Client
}

// Client calls the backend REST API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for cfg.
func New(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = defaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    hc,
	}
}

// call describes one outbound request.
type call struct {
	op         string
	method     string
	path       string
	query      url.Values
	body       any
	credential string
	// anonymous requests never carry the Authorization header.
	anonymous bool
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// do performs c and decodes a 2xx JSON response into out (which may be nil).
// Non-2xx responses and transport failures are returned as *Error.
// Cancellation of ctx is returned as the bare context error.
func (cl *Client) do(ctx context.Context, c call, out any) error {
	u := cl.baseURL + c.path
	if len(c.query) > 0 {
		u += "?" + c.query.Encode()
	}

	var body io.Reader
	if c.body != nil && c.method != http.MethodGet {
		data, err := json.Marshal(c.body)
		if err != nil {
			return &Error{Kind: KindValidation, Op: c.op, Message: unexpectedMessage, Err: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, c.method, u, body)
	if err != nil {
		return &Error{Kind: KindUnknown, Op: c.op, Message: unexpectedMessage, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())
	if !c.anonymous && c.credential != "" {
		req.Header.Set("Authorization", "Bearer "+c.credential)
	}

	resp, err := cl.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &Error{Kind: KindNetwork, Op: c.op, Message: networkMessage, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(c.op, resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return &Error{Kind: KindUnknown, Status: resp.StatusCode, Op: c.op, Message: unexpectedMessage,
			Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError builds the *Error for a non-2xx response. The user-facing
// message prefers the backend's "error" field, then "message", then the
// status line.
func statusError(op string, resp *http.Response) *Error {
	msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	var eb errorBody
	if len(data) > 0 && json.Unmarshal(data, &eb) == nil {
		switch {
		case eb.Error != "":
			msg = eb.Error
		case eb.Message != "":
			msg = eb.Message
		}
	}
	return &Error{
		Kind:    kindForStatus(resp.StatusCode),
		Status:  resp.StatusCode,
		Op:      op,
		Message: msg,
	}
}
