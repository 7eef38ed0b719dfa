package trace_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/bdobrica/Kotoba/common/trace"
)

func TestGenerateID_Format(t *testing.T) {
	id := trace.GenerateID()
	if !strings.HasPrefix(id, "t_") {
		t.Fatalf("expected t_ prefix, got %q", id)
	}
	if len(id) != 34 {
		t.Errorf("expected 34 chars, got %d (%q)", len(id), id)
	}
	if id == trace.GenerateID() {
		t.Error("two generated IDs must differ")
	}
}

func TestEnsure_KeepsExistingID(t *testing.T) {
	ctx := trace.WithTraceID(context.Background(), "t_existing")
	if got := trace.FromContext(trace.Ensure(ctx)); got != "t_existing" {
		t.Errorf("got %q, want t_existing", got)
	}
}

func TestEnsure_GeneratesWhenMissing(t *testing.T) {
	if got := trace.FromContext(trace.Ensure(context.Background())); got == "" {
		t.Error("expected a generated trace ID")
	}
}

func TestFromRequest_UsesHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/chat", nil)
	r.Header.Set(trace.Header, "t_from_header")
	if got := trace.FromContext(trace.FromRequest(r)); got != "t_from_header" {
		t.Errorf("got %q, want t_from_header", got)
	}
}

func TestFromRequest_RejectsOversizedHeader(t *testing.T) {
	r := httptest.NewRequest("POST", "/chat", nil)
	r.Header.Set(trace.Header, strings.Repeat("x", 200))
	got := trace.FromContext(trace.FromRequest(r))
	if !strings.HasPrefix(got, "t_") || len(got) != 34 {
		t.Errorf("expected generated ID, got %q", got)
	}
}
