package nlp

import (
	"errors"
	"sync"
	"time"
)

const (
	// DefaultCallLimit is the number of LLM calls allowed per caller per
	// window when no explicit limit is configured.
	DefaultCallLimit = 20
	// DefaultTokenBudget is the number of LLM tokens allowed per caller per
	// UTC day when no explicit budget is configured.
	DefaultTokenBudget = 50_000

	defaultCallWindow = time.Minute
)

var (
	// ErrRateLimited is returned by Limiter.Admit when the caller has used
	// up its calls for the current window.
	ErrRateLimited = errors.New("nlp: per-caller call limit reached")
	// ErrBudgetExhausted is returned by Limiter.Admit when the caller has
	// spent today's token budget.
	ErrBudgetExhausted = errors.New("nlp: daily token budget exhausted")
)

// LimiterConfig configures a Limiter. Zero values select the defaults.
type LimiterConfig struct {
	CallLimit   int
	Window      time.Duration
	TokenBudget int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Limiter gates LLM use per caller with a sliding-window call limit and a
// daily token budget that resets at midnight UTC. It is safe for concurrent
// use.
type Limiter struct {
	mu     sync.Mutex
	limit  int
	window time.Duration
	budget int
	now    func() time.Time
	calls  map[string][]time.Time
	spent  map[string]*dailySpend
}

type dailySpend struct {
	tokens  int
	resetAt time.Time
}

// NewLimiter returns a Limiter for cfg.
func NewLimiter(cfg LimiterConfig) *Limiter {
	l := &Limiter{
		limit:  cfg.CallLimit,
		window: cfg.Window,
		budget: cfg.TokenBudget,
		now:    cfg.Now,
		calls:  make(map[string][]time.Time),
		spent:  make(map[string]*dailySpend),
	}
	if l.limit <= 0 {
		l.limit = DefaultCallLimit
	}
	if l.window <= 0 {
		l.window = defaultCallWindow
	}
	if l.budget <= 0 {
		l.budget = DefaultTokenBudget
	}
	if l.now == nil {
		l.now = time.Now
	}
	return l
}

// Admit records one call for key, or returns ErrBudgetExhausted or
// ErrRateLimited without recording anything.
func (l *Limiter) Admit(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if s := l.daily(key, now); s != nil && s.tokens >= l.budget {
		return ErrBudgetExhausted
	}

	recent := l.prune(key, now)
	if len(recent) >= l.limit {
		return ErrRateLimited
	}
	l.calls[key] = append(recent, now)
	return nil
}

// Charge adds tokens to key's spend for the current UTC day.
func (l *Limiter) Charge(key string, tokens int) {
	if tokens <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	s := l.daily(key, now)
	if s == nil {
		s = &dailySpend{resetAt: nextMidnightUTC(now)}
		l.spent[key] = s
	}
	s.tokens += tokens
}

// Remaining reports the calls left in the current window and the tokens
// left today for key.
func (l *Limiter) Remaining(key string) (calls, tokens int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	calls = max(l.limit-len(l.prune(key, now)), 0)
	tokens = l.budget
	if s := l.daily(key, now); s != nil {
		tokens = max(l.budget-s.tokens, 0)
	}
	return calls, tokens
}

// daily returns key's spend for today, dropping a stale entry. Must be
// called with l.mu held.
func (l *Limiter) daily(key string, now time.Time) *dailySpend {
	s := l.spent[key]
	if s != nil && !now.UTC().Before(s.resetAt) {
		delete(l.spent, key)
		return nil
	}
	return s
}

// prune drops key's call timestamps outside the window and returns the
// rest. Must be called with l.mu held.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cutoff := now.Add(-l.window)
	existing := l.calls[key]
	valid := existing[:0]
	for _, t := range existing {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	l.calls[key] = valid
	return valid
}

func nextMidnightUTC(now time.Time) time.Time {
	u := now.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}
