package notify

import (
	"context"
	"time"

	"github.com/gen2brain/beeep"
	"go.uber.org/zap"

	"homechat/internal/bus"
	"homechat/internal/chat"
	"homechat/internal/transport"
)

const maxBodyLen = 100

// Notifier delivers a system notification. Implementations must be
// best-effort; the bridge logs failures and moves on.
type Notifier interface {
	Notify(title, body string) error
}

// DesktopNotifier sends notifications through the OS notification service.
type DesktopNotifier struct{}

func (DesktopNotifier) Notify(title, body string) error {
	return beeep.Notify(title, body, "")
}

// Toast is the payload of "notify.toast", rendered as a transient banner
// inside the client.
type Toast struct {
	Title          string
	Body           string
	ConversationID int64
}

// Bridge routes inbound activity to the user's attention surfaces.
// Messages for conversations the user is not currently viewing bump the
// unread count, move the conversation up, and raise a desktop
// notification (when enabled) plus an in-app toast. Notification events
// always toast; only structural ones, which have no companion message
// event, also reach the desktop. Messages in the open conversation stay
// quiet, and a message for a conversation the store has never seen
// triggers a list reload.
type Bridge struct {
	bus      *bus.Bus
	store    *chat.ConversationStore
	notifier Notifier
	enabled  bool
	logger   *zap.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

func NewBridge(b *bus.Bus, store *chat.ConversationStore, notifier Notifier, enabled bool, logger *zap.Logger) *Bridge {
	return &Bridge{
		bus:      b,
		store:    store,
		notifier: notifier,
		enabled:  enabled,
		logger:   logger.Named("notify"),
	}
}

// Start begins consuming transport events. Stop must be called to release
// the subscription.
func (br *Bridge) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	br.cancel = cancel
	br.done = make(chan struct{})

	events, unsub := br.bus.Subscribe("transport.", 64)
	go func() {
		defer close(br.done)
		defer unsub()
		for {
			select {
			case <-runCtx.Done():
				return
			case ev := <-events:
				br.handle(ev)
			}
		}
	}()
	return nil
}

// Stop shuts the bridge down and waits for the consumer to exit.
func (br *Bridge) Stop() {
	if br.cancel == nil {
		return
	}
	br.cancel()
	<-br.done
	br.cancel = nil
}

func (br *Bridge) handle(ev bus.Event) {
	switch payload := ev.Payload.(type) {
	case transport.MessageEvent:
		br.handleMessage(payload)
	case transport.NotificationEvent:
		br.handleNotification(payload)
	}
}

func (br *Bridge) handleMessage(ev transport.MessageEvent) {
	if !br.store.Touch(ev.ConversationID, ev.Content, ev.CreatedAt.Time) {
		// First message of a conversation we have never fetched.
		br.bus.Publish(bus.Event{
			Kind:      "chat.reload_requested",
			Timestamp: time.Now(),
			Payload:   chat.ReloadRequest{ConversationID: ev.ConversationID},
		})
	}
	if ev.ConversationID == br.store.ActiveID() {
		return
	}
	br.store.IncrementUnread(ev.ConversationID)
	br.alert("New message from "+ev.SenderName, ev.Content, ev.ConversationID, true)
}

func (br *Bridge) handleNotification(ev transport.NotificationEvent) {
	// Conversation-scoped notifications arrive alongside a message event,
	// which already owns the desktop popup.
	br.alert(ev.Title, ev.Body, ev.ConversationID, ev.ConversationID == 0)
}

// alert raises the attention surfaces for one event: the desktop
// notification when wanted and enabled, and always the in-app toast.
func (br *Bridge) alert(title, body string, conversationID int64, desktop bool) {
	body = truncate(body, maxBodyLen)
	if desktop && br.enabled {
		if err := br.notifier.Notify(title, body); err != nil {
			br.logger.Warn("desktop notification failed", zap.Error(err))
		}
	}

	br.bus.Publish(bus.Event{
		Kind:      "notify.toast",
		Timestamp: time.Now(),
		Payload: Toast{
			Title:          title,
			Body:           body,
			ConversationID: conversationID,
		},
	})
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-1]) + "…"
}
