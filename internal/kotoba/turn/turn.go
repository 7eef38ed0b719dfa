// Package turn is the entry point for one conversational turn: validate the
// utterance, try the LLM-mediated resolver, fall back to the deterministic
// resolver when it fails.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
)

var (
	// ErrInvalidInput is returned when the utterance is empty.
	ErrInvalidInput = errors.New("turn: message is required")
	// ErrInternal is returned when both resolvers failed.
	ErrInternal = errors.New("turn: internal error")
)

// Resolver turns an utterance into a reply. *nlp.Resolver and *nlp.Fallback
// implement it.
type Resolver interface {
	Resolve(ctx context.Context, utterance string, caller ops.Caller) (string, error)
}

// Request is one inbound turn.
type Request struct {
	Utterance  string
	UserID     int64
	Credential string
}

// Controller runs turns. Primary may be nil, in which case every turn goes
// straight to Fallback.
type Controller struct {
	primary  Resolver
	fallback Resolver
}

// New returns a Controller. fallback must not be nil.
func New(primary, fallback Resolver) *Controller {
	if fallback == nil {
		panic("turn: nil fallback resolver")
	}
	return &Controller{primary: primary, fallback: fallback}
}

// HandleTurn returns the reply for req.
//
// Any error from the primary resolver routes the turn to the fallback with
// the same inputs; the caller never sees it. ErrInvalidInput and ErrInternal
// are the only errors returned.
func (c *Controller) HandleTurn(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Utterance) == "" {
		return "", ErrInvalidInput
	}
	ctx = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("user_id", req.UserID)
	caller := ops.Caller{UserID: req.UserID, Credential: req.Credential}
	start := time.Now()

	if c.primary != nil {
		reply, err := c.primary.Resolve(ctx, req.Utterance, caller)
		if err == nil {
			log.Info("turn: resolved", "resolver", "llm", "duration", time.Since(start))
			return reply, nil
		}
		log.Warn("turn: llm resolution failed; falling back to keyword path", "err", err)
	}

	reply, err := c.fallback.Resolve(ctx, req.Utterance, caller)
	if err != nil {
		log.Error("turn: fallback failed", "err", err)
		return "", fmt.Errorf("%w: %v", ErrInternal, err)
	}
	log.Info("turn: resolved", "resolver", "fallback", "duration", time.Since(start))
	return reply, nil
}
