package nlp_test

import (
	"context"
	"sync"

	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
)

// call is one Execute invocation seen by fakeExecutor.
type call struct {
	Name   string
	Args   ops.Args
	Caller ops.Caller
}

// fakeExecutor is a test double for nlp.Executor. Results are looked up by
// operation name; a missing entry yields Success(nil).
type fakeExecutor struct {
	mu      sync.Mutex
	calls   []call
	results map[string]*ops.Result
	errs    map[string]error
}

func (f *fakeExecutor) Execute(_ context.Context, name string, args ops.Args, caller ops.Caller) (*ops.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := ops.Args{}
	for k, v := range args {
		cp[k] = v
	}
	f.calls = append(f.calls, call{Name: name, Args: cp, Caller: caller})
	if err := f.errs[name]; err != nil {
		return nil, err
	}
	if r, ok := f.results[name]; ok {
		return r, nil
	}
	return ops.Success(name, nil), nil
}

func (f *fakeExecutor) Calls() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}
