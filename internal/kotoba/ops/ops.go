// Package ops is the Operation Executor: the single place where an operation
// name and an argument bag become a backend call.
//
// Both resolvers go through Execute. It looks the name up in the registry,
// checks the argument bag against the operation's JSON schema, decodes it
// into the operation's typed argument struct and invokes the matching backend
// adapter. Backend failures never escape as errors; they come back as a
// Result carrying a Failure. Execute only returns an error when the context
// is done or a handler panics.
package ops

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bdobrica/Kotoba/common/redact"
	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/internal/kotoba/backend"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

// ErrHandlerPanic is returned by Execute when an operation handler panicked.
var ErrHandlerPanic = errors.New("ops: handler panicked")

// Args is an argument bag: parameter name to JSON-compatible value.
type Args map[string]any

// Caller is the identity a turn runs as. It is passed explicitly through
// every Execute call and never stored on the Executor.
type Caller struct {
	// UserID is the authenticated user's id; 0 when unknown.
	UserID int64
	// Credential is the bearer token forwarded to the backend; empty for
	// anonymous callers.
	Credential string
}

// Backend is the set of adapter calls the Executor dispatches to.
// *backend.Client implements it.
type Backend interface {
	Signup(ctx context.Context, p backend.SignupParams) (*backend.AuthResponse, error)
	Signin(ctx context.Context, email, password string) (*backend.AuthResponse, error)
	FetchMe(ctx context.Context, credential string) (*backend.User, error)
	FetchNotices(ctx context.Context, credential string) ([]backend.Notice, error)
	HideNotice(ctx context.Context, credential string, id int64) error
	FetchTimeline(ctx context.Context, credential, tab string) ([]backend.Post, error)
	FetchPostDetail(ctx context.Context, credential, postID string) (*backend.Post, error)
	CreatePost(ctx context.Context, credential, content string) error
	PostReply(ctx context.Context, credential, content string, replyToID int64) error
	LikePost(ctx context.Context, credential string, postID, userID int64) (*backend.Post, error)
	Repost(ctx context.Context, credential string, postID int64) (*backend.Post, error)
	QuotePost(ctx context.Context, credential string, quotedPostID int64, content string) (*backend.Post, error)
	SearchPosts(ctx context.Context, credential, query string) ([]backend.Post, error)
	SearchUsers(ctx context.Context, credential, query string) ([]backend.User, error)
}

var _ Backend = (*backend.Client)(nil)

// CallRecord describes one finished Execute call for auditing. Args are
// already redacted.
type CallRecord struct {
	TraceID   string
	Operation string
	UserID    int64
	Args      map[string]any
	Outcome   string // "ok" or the failure kind
	Message   string
	Duration  time.Duration
	At        time.Time
}

// Recorder persists CallRecords. Recording errors are logged and otherwise
// ignored.
type Recorder interface {
	RecordCall(ctx context.Context, rec CallRecord) error
}

// Options configures an Executor.
type Options struct {
	// Recorder, when set, receives one record per Execute call.
	Recorder Recorder
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Executor dispatches operations. It is safe for concurrent use.
type Executor struct {
	reg      *registry.Registry
	backend  Backend
	handlers map[string]handler
	schemas  map[string]*compiledSchema
	recorder Recorder
	now      func() time.Time
}

// NewExecutor builds an Executor for reg. It fails when reg and the handler
// table disagree, or when an operation's schema does not compile.
func NewExecutor(reg *registry.Registry, b Backend, opts Options) (*Executor, error) {
	if reg == nil {
		return nil, errors.New("ops: nil registry")
	}
	if b == nil {
		return nil, errors.New("ops: nil backend")
	}
	if err := checkHandlers(reg, handlers); err != nil {
		return nil, err
	}
	schemas := make(map[string]*compiledSchema, reg.Len())
	for _, op := range reg.List() {
		s, err := compileSchema(op)
		if err != nil {
			return nil, fmt.Errorf("ops: compile schema for %q: %w", op.Name, err)
		}
		schemas[op.Name] = s
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		reg:      reg,
		backend:  b,
		handlers: handlers,
		schemas:  schemas,
		recorder: opts.Recorder,
		now:      now,
	}, nil
}

// checkHandlers verifies that every registry operation has a handler and
// every handler has a registry operation.
func checkHandlers(reg *registry.Registry, table map[string]handler) error {
	var missing, extra []string
	for _, name := range reg.Names() {
		if _, ok := table[name]; !ok {
			missing = append(missing, name)
		}
	}
	for name := range table {
		if !reg.Has(name) {
			extra = append(extra, name)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		return fmt.Errorf("ops: registry/handler mismatch: missing handlers %v, unregistered handlers %v", missing, extra)
	}
	return nil
}

// Registry returns the registry the Executor was built with.
func (e *Executor) Registry() *registry.Registry { return e.reg }

// Execute runs operation name with args as caller.
//
// Unknown names and arguments that fail the schema are returned as Failure
// results without reaching the backend. The returned error is non-nil only
// when ctx is done or the handler panicked.
func (e *Executor) Execute(ctx context.Context, name string, args Args, caller Caller) (res *Result, err error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := e.now()
	log := observability.WithTrace(ctx).With("op", name)

	defer func() {
		if res == nil {
			return
		}
		e.record(ctx, name, args, caller, res, e.now().Sub(start), start)
	}()

	op, ok := e.reg.Lookup(name)
	if !ok {
		log.Warn("ops: unknown operation")
		return Fail(name, KindUnknownOperation, fmt.Sprintf("不明な操作です: %s", name)), nil
	}

	raw, verr := e.schemas[name].check(op, args)
	if verr != nil {
		log.Info("ops: argument validation failed", "args", redact.Args(args), "err", verr)
		return Fail(name, KindValidation, verr.Error()), nil
	}

	data, herr := e.invoke(ctx, name, raw, caller)
	if herr != nil {
		if errors.Is(herr, ErrHandlerPanic) {
			log.Error("ops: handler panicked", "err", herr)
			return nil, herr
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(herr, ctxErr) {
			return nil, herr
		}
		f := failureFromError(herr)
		log.Info("ops: operation failed", "kind", f.Kind, "err", herr)
		return &Result{Operation: name, Failure: f}, nil
	}

	log.Debug("ops: operation succeeded", "duration", e.now().Sub(start))
	return Success(name, data), nil
}

// invoke calls the handler, converting a panic into ErrHandlerPanic.
func (e *Executor) invoke(ctx context.Context, name string, raw []byte, caller Caller) (data any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrHandlerPanic, name, r)
		}
	}()
	return e.handlers[name](ctx, e.backend, raw, caller)
}

func (e *Executor) record(ctx context.Context, name string, args Args, caller Caller, res *Result, d time.Duration, at time.Time) {
	if e.recorder == nil {
		return
	}
	rec := CallRecord{
		TraceID:   trace.FromContext(ctx),
		Operation: name,
		UserID:    caller.UserID,
		Args:      redact.Args(args),
		Outcome:   "ok",
		Duration:  d,
		At:        at,
	}
	if res.Failure != nil {
		rec.Outcome = string(res.Failure.Kind)
		rec.Message = res.Failure.Message
	}
	// The turn may already be cancelled; the audit row is still wanted.
	if err := e.recorder.RecordCall(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("audit write failed", "op", name, "err", err)
	}
}
