// Package matrix is Kotoba's Matrix chat surface. The Client speaks to the
// homeserver; the Bot turns each inbound text message into a conversational
// turn and replies in-thread.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"
)

// Config holds the Matrix connection parameters.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms to join and listen in. Empty means every joined room.
	Rooms []string
	// SyncStore persists the sync position. When nil, mautrix's in-memory
	// store is used and history replays after a restart.
	SyncStore mautrix.SyncStore
}

// Message is one inbound text message.
type Message struct {
	RoomID  string
	EventID string
	Sender  string
	Body    string
}

// MessageHandler is called for each inbound text message.
type MessageHandler func(ctx context.Context, msg Message)

// Client wraps the mautrix client.
type Client struct {
	mxc    *mautrix.Client
	cfg    Config
	stopCh chan struct{}
}

// New creates a client but does not start syncing.
func New(cfg Config) (*Client, error) {
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("create matrix client: %w", err)
	}
	if cfg.SyncStore != nil {
		mxc.Store = cfg.SyncStore
		slog.Info("Matrix sync store: using persistent SQLite store")
	} else {
		slog.Warn("Matrix sync store: none configured, history will replay on restart")
	}
	return &Client{mxc: mxc, cfg: cfg, stopCh: make(chan struct{})}, nil
}

// Start joins the configured rooms and runs the sync loop in the
// background, reconnecting with exponential back-off.
func (c *Client) Start(ctx context.Context, handler MessageHandler) error {
	slog.Warn("Matrix E2EE is not enabled; messages are in plaintext")

	syncer, ok := c.mxc.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return errors.New("matrix: unexpected syncer type")
	}
	// Events from before startup are history, not requests.
	syncer.OnSync(c.mxc.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		msg, ok := c.accept(evt)
		if !ok {
			return
		}
		handler(ctx, msg)
	})

	for _, room := range c.cfg.Rooms {
		if err := c.join(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("join room %s: %w", room, err)
		}
	}

	go func() {
		const (
			backoffMin = 2 * time.Second
			backoffMax = 5 * time.Minute
		)
		backoff := backoffMin
		for {
			err := c.mxc.SyncWithContext(ctx)
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			if err == nil {
				return
			}
			slog.Error("Matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
			select {
			case <-c.stopCh:
				return
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff = min(backoff*2, backoffMax)
		}
	}()
	return nil
}

// Stop halts the sync loop. It is safe to call once.
func (c *Client) Stop() {
	close(c.stopCh)
	c.mxc.StopSync()
}

// accept filters out our own messages, non-text messages and rooms we were
// not asked to listen in.
func (c *Client) accept(evt *event.Event) (Message, bool) {
	if evt.Sender == id.UserID(c.cfg.UserID) {
		return Message{}, false
	}
	content := evt.Content.AsMessage()
	if content == nil || content.MsgType != event.MsgText {
		return Message{}, false
	}
	if len(c.cfg.Rooms) > 0 && !slices.Contains(c.cfg.Rooms, evt.RoomID.String()) {
		return Message{}, false
	}
	return Message{
		RoomID:  evt.RoomID.String(),
		EventID: evt.ID.String(),
		Sender:  evt.Sender.String(),
		Body:    content.Body,
	}, true
}

// ReplyToMessage sends text as a reply to eventID.
func (c *Client) ReplyToMessage(ctx context.Context, roomID, eventID, text string) error {
	content := event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
		RelatesTo: &event.RelatesTo{
			InReplyTo: &event.InReplyTo{EventID: id.EventID(eventID)},
		},
	}
	if _, err := c.mxc.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, &content); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

// Redact removes eventID's content from the room history.
func (c *Client) Redact(ctx context.Context, roomID, eventID string) error {
	if _, err := c.mxc.RedactEvent(ctx, id.RoomID(roomID), id.EventID(eventID)); err != nil {
		return fmt.Errorf("failed to redact event: %w", err)
	}
	return nil
}

// join joins a room. M_FORBIDDEN usually means we are already a member.
func (c *Client) join(ctx context.Context, roomID id.RoomID) error {
	_, err := c.mxc.JoinRoomByID(ctx, roomID)
	if errors.Is(err, mautrix.MForbidden) {
		slog.Warn("joinRoom: already a member or access denied, continuing", "room", roomID)
		return nil
	}
	return err
}
