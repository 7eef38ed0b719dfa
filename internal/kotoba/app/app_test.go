package app_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/app"
	"github.com/bdobrica/Kotoba/internal/kotoba/config"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

// fakeBackend answers the timeline endpoint and records the Authorization
// header it saw.
type fakeBackend struct {
	mu   sync.Mutex
	auth []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = append(f.auth, r.Header.Get("Authorization"))
	f.mu.Unlock()
	if r.URL.Path == "/api/v1/" {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[]`))
		return
	}
	http.NotFound(w, r)
}

func newConfig(t *testing.T, backendURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Backend.BaseURL = backendURL
	cfg.DBPath = filepath.Join(t.TempDir(), "kotoba.db")
	cfg.MasterKey = strings.Repeat("ab", 32)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestApp_FallbackOnlyTurnIsAudited(t *testing.T) {
	fb := &fakeBackend{}
	ts := httptest.NewServer(fb)
	defer ts.Close()

	a, err := app.New(newConfig(t, ts.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	reply, err := a.Turns().HandleTurn(context.Background(), turn.Request{
		Utterance:  "タイムラインを見せて",
		UserID:     5,
		Credential: "tok-5",
	})
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	if reply != "現在、タイムラインに投稿がありません。" {
		t.Errorf("reply = %q", reply)
	}
	if len(fb.auth) != 1 || fb.auth[0] != "Bearer tok-5" {
		t.Errorf("backend saw auth %v", fb.auth)
	}

	recs, err := a.Store().RecentCalls(context.Background(), 10)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(recs) != 1 || recs[0].Operation != "fetchTimeline" || recs[0].UserID != 5 || recs[0].Outcome != "ok" {
		t.Errorf("audit = %+v", recs)
	}
}

func TestApp_HandlersReflectConfig(t *testing.T) {
	cfg := newConfig(t, "http://127.0.0.1:1")
	cfg.ControlToken = "ctl"
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	h := a.Handlers()
	if h.Token != "ctl" || h.LLMEnabled || h.Audit == nil || h.Executor.Registry().Len() != 14 {
		t.Errorf("handlers = %+v", h)
	}
}

func TestApp_WithoutDatabase(t *testing.T) {
	cfg := newConfig(t, "http://127.0.0.1:1")
	cfg.DBPath = ""
	a, err := app.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()
	if a.Store() != nil || a.Handlers().Audit != nil {
		t.Error("store should be absent")
	}
}

func TestApp_RejectsBadMasterKey(t *testing.T) {
	cfg := newConfig(t, "http://127.0.0.1:1")
	cfg.MasterKey = strings.Repeat("zz", 32)
	if _, err := app.New(cfg); err == nil {
		t.Fatal("expected error for non-hex master key")
	}
}
