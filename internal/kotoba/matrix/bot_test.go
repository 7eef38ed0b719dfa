package matrix_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/bdobrica/Kotoba/internal/kotoba/matrix"
	"github.com/bdobrica/Kotoba/internal/kotoba/store"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

type fakeTurner struct {
	got []turn.Request
	err error
}

func (f *fakeTurner) HandleTurn(_ context.Context, req turn.Request) (string, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return "", f.err
	}
	return "reply:" + req.Utterance, nil
}

type fakeAccounts struct {
	mu    sync.Mutex
	links map[string]store.LinkedAccount
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{links: map[string]store.LinkedAccount{}}
}

func (f *fakeAccounts) Link(_ context.Context, acc store.LinkedAccount) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links[acc.MXID] = acc
	return nil
}

func (f *fakeAccounts) Lookup(_ context.Context, mxid string) (*store.LinkedAccount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	acc, ok := f.links[mxid]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &acc, nil
}

func (f *fakeAccounts) Unlink(_ context.Context, mxid string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, mxid)
	return nil
}

type sent struct{ room, event, text string }

type fakeSender struct {
	replies  []sent
	redacted []string
}

func (f *fakeSender) ReplyToMessage(_ context.Context, roomID, eventID, text string) error {
	f.replies = append(f.replies, sent{roomID, eventID, text})
	return nil
}

func (f *fakeSender) Redact(_ context.Context, _, eventID string) error {
	f.redacted = append(f.redacted, eventID)
	return nil
}

func msg(body string) matrix.Message {
	return matrix.Message{RoomID: "!room:test", EventID: "$evt", Sender: "@alice:test", Body: body}
}

func (f *fakeSender) last(t *testing.T) string {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatal("no reply sent")
	}
	return f.replies[len(f.replies)-1].text
}

func TestBot_AnonymousTurn(t *testing.T) {
	turner, out := &fakeTurner{}, &fakeSender{}
	bot := matrix.NewBot(turner, newFakeAccounts(), out)

	bot.Handle(context.Background(), msg("タイムラインを見せて"))

	if len(turner.got) != 1 || turner.got[0].UserID != 0 || turner.got[0].Credential != "" {
		t.Fatalf("turn requests = %+v", turner.got)
	}
	if got := out.replies[0]; got.event != "$evt" || got.text != "reply:タイムラインを見せて" {
		t.Errorf("reply = %+v", got)
	}
}

func TestBot_LinkThenTurnRunsAsAccount(t *testing.T) {
	turner, out, accounts := &fakeTurner{}, &fakeSender{}, newFakeAccounts()
	bot := matrix.NewBot(turner, accounts, out)

	bot.Handle(context.Background(), msg("!link 42 secret-token"))
	if !strings.Contains(out.last(t), "42") {
		t.Errorf("link reply = %q", out.last(t))
	}
	if len(out.redacted) != 1 || out.redacted[0] != "$evt" {
		t.Errorf("link command not redacted: %v", out.redacted)
	}

	bot.Handle(context.Background(), msg("自分の情報を見せて"))
	if got := turner.got[0]; got.UserID != 42 || got.Credential != "secret-token" {
		t.Errorf("turn request = %+v", got)
	}

	bot.Handle(context.Background(), msg("!whoami"))
	if !strings.Contains(out.last(t), "42") {
		t.Errorf("whoami = %q", out.last(t))
	}

	bot.Handle(context.Background(), msg("!unlink"))
	bot.Handle(context.Background(), msg("!whoami"))
	if !strings.Contains(out.last(t), "連携されていません") {
		t.Errorf("whoami after unlink = %q", out.last(t))
	}
}

func TestBot_LinkUsage(t *testing.T) {
	out := &fakeSender{}
	bot := matrix.NewBot(&fakeTurner{}, newFakeAccounts(), out)

	for _, body := range []string{"!link", "!link abc tok", "!link -1 tok"} {
		bot.Handle(context.Background(), msg(body))
		if !strings.HasPrefix(out.last(t), "使い方") {
			t.Errorf("%q: reply = %q", body, out.last(t))
		}
	}
}

func TestBot_NoAccountStore(t *testing.T) {
	turner, out := &fakeTurner{}, &fakeSender{}
	bot := matrix.NewBot(turner, nil, out)

	bot.Handle(context.Background(), msg("!link 1 tok"))
	if out.last(t) != "アカウント連携は無効です。" {
		t.Errorf("reply = %q", out.last(t))
	}
	bot.Handle(context.Background(), msg("hello"))
	if len(turner.got) != 1 {
		t.Errorf("turn not run without account store")
	}
}

func TestBot_TurnFailureRepliesApology(t *testing.T) {
	out := &fakeSender{}
	bot := matrix.NewBot(&fakeTurner{err: errors.New("both resolvers failed")}, nil, out)

	bot.Handle(context.Background(), msg("hello"))
	if !strings.Contains(out.last(t), "エラーが発生しました") {
		t.Errorf("reply = %q", out.last(t))
	}
}

func TestBot_IgnoresBlankAndTreatsUnknownCommandAsUtterance(t *testing.T) {
	turner, out := &fakeTurner{}, &fakeSender{}
	bot := matrix.NewBot(turner, nil, out)

	bot.Handle(context.Background(), msg("   "))
	if len(out.replies) != 0 {
		t.Fatalf("blank message got a reply")
	}
	bot.Handle(context.Background(), msg("!dance"))
	if len(turner.got) != 1 || turner.got[0].Utterance != "!dance" {
		t.Errorf("turn requests = %+v", turner.got)
	}
}
