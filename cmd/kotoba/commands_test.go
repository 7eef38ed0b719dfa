package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/bdobrica/Kotoba/internal/kotoba/ops"
	"github.com/bdobrica/Kotoba/internal/kotoba/registry"
)

func TestPrintOperations(t *testing.T) {
	var buf bytes.Buffer
	if err := printOperations(&buf, registry.Default()); err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != registry.Default().Len()+1 {
		t.Fatalf("got %d lines:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(buf.String(), "postId:number") {
		t.Errorf("missing likePost params:\n%s", buf.String())
	}
}

func TestPrintCalls(t *testing.T) {
	var buf bytes.Buffer
	err := printCalls(&buf, []ops.CallRecord{{
		TraceID:   "t_1",
		Operation: "createPost",
		UserID:    3,
		Outcome:   "ok",
		Duration:  12 * time.Millisecond,
		At:        time.Now(),
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "createPost") || !strings.Contains(buf.String(), "12ms") {
		t.Errorf("output:\n%s", buf.String())
	}
}
