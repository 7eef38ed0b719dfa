package matrix

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bdobrica/Kotoba/common/trace"
	"github.com/bdobrica/Kotoba/internal/kotoba/observability"
	"github.com/bdobrica/Kotoba/internal/kotoba/store"
	"github.com/bdobrica/Kotoba/internal/kotoba/turn"
)

// Bot replies.
const (
	replyLinked       = "アカウントを連携しました（ユーザーID: %d）。"
	replyLinkUsage    = "使い方: !link <ユーザーID> <トークン>"
	replyUnlinked     = "アカウントの連携を解除しました。"
	replyWhoamiLinked = "ユーザーID %d として連携されています。"
	replyWhoamiAnon   = "アカウントは連携されていません。匿名で操作します。"
	replyNoStore      = "アカウント連携は無効です。"
	replyFailed       = "エラーが発生しました。しばらくしてから再度お試しください。"
)

// Turner runs one conversational turn. *turn.Controller implements it.
type Turner interface {
	HandleTurn(ctx context.Context, req turn.Request) (string, error)
}

// Accounts maps Matrix users to backend accounts. *store.Accounts
// implements it.
type Accounts interface {
	Link(ctx context.Context, acc store.LinkedAccount) error
	Lookup(ctx context.Context, mxid string) (*store.LinkedAccount, error)
	Unlink(ctx context.Context, mxid string) error
}

// Sender posts replies. *Client implements it.
type Sender interface {
	ReplyToMessage(ctx context.Context, roomID, eventID, text string) error
	Redact(ctx context.Context, roomID, eventID string) error
}

// Bot handles inbound messages.
//
// Messages starting with "!" are commands:
//
//	!link <userId> <token>   bind the sender to a backend account
//	!unlink                  remove the binding
//	!whoami                  show the binding
//
// Anything else is an utterance, run as the sender's linked account or
// anonymously when there is none.
type Bot struct {
	turns    Turner
	accounts Accounts
	out      Sender
}

// NewBot returns a Bot. accounts may be nil, which disables linking.
func NewBot(turns Turner, accounts Accounts, out Sender) *Bot {
	return &Bot{turns: turns, accounts: accounts, out: out}
}

// Handle processes msg and sends the reply. It is a MessageHandler.
func (b *Bot) Handle(ctx context.Context, msg Message) {
	ctx = trace.Ensure(ctx)
	log := observability.WithTrace(ctx).With("room", msg.RoomID, "sender", msg.Sender)

	body := strings.TrimSpace(msg.Body)
	if body == "" {
		return
	}
	var reply string
	if strings.HasPrefix(body, "!") {
		reply = b.command(ctx, msg, body)
	} else {
		reply = b.utterance(ctx, msg.Sender, body)
	}
	if err := b.out.ReplyToMessage(ctx, msg.RoomID, msg.EventID, reply); err != nil {
		log.Error("matrix: reply failed", "err", err)
	}
}

func (b *Bot) utterance(ctx context.Context, sender, body string) string {
	log := observability.WithTrace(ctx)
	req := turn.Request{Utterance: body}
	if b.accounts != nil {
		acc, err := b.accounts.Lookup(ctx, sender)
		switch {
		case err == nil:
			req.UserID, req.Credential = acc.UserID, acc.Credential
		case errors.Is(err, store.ErrNotFound):
		default:
			log.Warn("matrix: account lookup failed; running anonymously", "err", err)
		}
	}
	reply, err := b.turns.HandleTurn(ctx, req)
	if err != nil {
		log.Error("matrix: turn failed", "err", err)
		return replyFailed
	}
	return reply
}

func (b *Bot) command(ctx context.Context, msg Message, body string) string {
	fields := strings.Fields(body)
	switch fields[0] {
	case "!link":
		return b.link(ctx, msg, fields[1:])
	case "!unlink":
		if b.accounts == nil {
			return replyNoStore
		}
		if err := b.accounts.Unlink(ctx, msg.Sender); err != nil {
			observability.WithTrace(ctx).Error("matrix: unlink failed", "err", err)
			return replyFailed
		}
		return replyUnlinked
	case "!whoami":
		if b.accounts == nil {
			return replyWhoamiAnon
		}
		acc, err := b.accounts.Lookup(ctx, msg.Sender)
		if err != nil {
			return replyWhoamiAnon
		}
		return fmt.Sprintf(replyWhoamiLinked, acc.UserID)
	default:
		// Unknown commands are ordinary utterances.
		return b.utterance(ctx, msg.Sender, body)
	}
}

func (b *Bot) link(ctx context.Context, msg Message, args []string) string {
	log := observability.WithTrace(ctx)
	if b.accounts == nil {
		return replyNoStore
	}
	// The token was posted in the clear; take it out of room history even
	// when the command itself is malformed.
	if len(args) > 1 {
		if err := b.out.Redact(ctx, msg.RoomID, msg.EventID); err != nil {
			log.Warn("matrix: could not redact link command", "err", err)
		}
	}
	if len(args) != 2 {
		return replyLinkUsage
	}
	userID, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || userID <= 0 {
		return replyLinkUsage
	}
	if err := b.accounts.Link(ctx, store.LinkedAccount{
		MXID:       msg.Sender,
		UserID:     userID,
		Credential: args[1],
	}); err != nil {
		log.Error("matrix: link failed", "err", err)
		return replyFailed
	}
	log.Info("matrix: account linked", "user_id", userID)
	return fmt.Sprintf(replyLinked, userID)
}
