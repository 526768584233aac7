package model

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"homechat/internal/api"
	"homechat/internal/bus"
	"homechat/internal/chat"
	"homechat/internal/outbox"
	"homechat/internal/session"
	"homechat/internal/store"
	"homechat/internal/transport"
)

// handleFunc registers a handler for one method on a path, matching the
// method-qualified mux patterns ("GET /path") that need go 1.22.
func handleFunc(mux *http.ServeMux, method, path string, h http.HandlerFunc) {
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func newTestViewModel(t *testing.T, handler http.Handler) (*ViewModel, *bus.Bus) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := session.NewStore(filepath.Join(t.TempDir(), "credentials.toml"))
	if err := creds.Save(session.Credentials{UserID: 1, Username: "ada", AccessToken: "acc"}); err != nil {
		t.Fatal(err)
	}

	db, err := store.Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	b := bus.New()
	client := api.NewClient(srv.URL, creds, zap.NewNop())
	convs := chat.NewConversationStore(b, zap.NewNop())
	pipeline := outbox.NewPipeline(client, 1, "ada", b, zap.NewNop())
	t.Cleanup(pipeline.Stop)

	vm := NewViewModel(client, db, convs, pipeline, b, 1, zap.NewNop())
	if err := vm.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(vm.Stop)
	return vm, b
}

func chatHandler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	handleFunc(mux, http.MethodGet, "/chat/conversations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{
			"id": 3, "property_id": 9, "buyer_id": 1, "agent_id": 2,
			"last_message_at": "2026-08-30T10:00:00", "last_message_preview": "hello",
			"is_active": true, "created_at": "2026-08-29T10:00:00",
			"property_title": "Loft", "other_user_id": 2, "other_user_name": "Bruno",
			"unread_count": 0
		}]`))
	})
	handleFunc(mux, http.MethodGet, "/chat/conversations/3", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 3, "property_id": 9, "buyer_id": 1, "agent_id": 2,
			"last_message_at": "2026-08-30T10:00:00", "is_active": true,
			"created_at": "2026-08-29T10:00:00",
			"messages": [
				{"id": 100, "conversation_id": 3, "sender_id": 2, "sender_name": "Bruno",
				 "content": "hello", "is_read": true, "read_at": null, "created_at": "2026-08-30T09:00:00"}
			]
		}`))
	})
	handleFunc(mux, http.MethodPost, "/chat/conversations/3/messages", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"id": 101, "conversation_id": 3, "sender_id": 1, "content": "hi",
			"is_read": false, "read_at": null, "created_at": "2026-08-30T10:01:00"
		}`))
	})
	handleFunc(mux, http.MethodGet, "/chat/stats", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"total_conversations":1,"unread_messages_count":0,"unread_notifications_count":0}`))
	})
	return mux
}

func waitForVM(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func messageStates(vm *ViewModel) map[string]chat.DeliveryState {
	out := map[string]chat.DeliveryState{}
	for _, item := range vm.TimelineItems() {
		if item.Message != nil {
			out[item.Message.Content] = item.Message.State
		}
	}
	return out
}

func TestSendIsOptimisticThenConfirmed(t *testing.T) {
	vm, _ := newTestViewModel(t, chatHandler(t))

	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenConversation(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	vm.Send("hi")

	// The row is visible immediately, before delivery completes.
	states := messageStates(vm)
	if states["hi"] != chat.StateSending && states["hi"] != chat.StateSent {
		t.Fatalf("state right after Send = %q", states["hi"])
	}

	waitForVM(t, func() bool {
		return messageStates(vm)["hi"] == chat.StateSent
	})

	// Confirmed under the server id: no duplicate when the echo arrives.
	items := vm.TimelineItems()
	count := 0
	for _, it := range items {
		if it.Message != nil && it.Message.Content == "hi" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("message rendered %d times", count)
	}
}

func TestInboundMessageAppendsToActiveTimeline(t *testing.T) {
	vm, b := newTestViewModel(t, chatHandler(t))
	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenConversation(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	b.Publish(bus.Event{
		Kind: "transport.message",
		Payload: transport.MessageEvent{
			ID: 102, ConversationID: 3, SenderID: 2, SenderName: "Bruno",
			Content: "are you there?", CreatedAt: api.Time{Time: time.Now()},
		},
	})

	waitForVM(t, func() bool {
		_, ok := messageStates(vm)["are you there?"]
		return ok
	})

	// Messages for other conversations never leak into the open timeline.
	b.Publish(bus.Event{
		Kind: "transport.message",
		Payload: transport.MessageEvent{
			ID: 103, ConversationID: 4, SenderID: 2,
			Content: "wrong room", CreatedAt: api.Time{Time: time.Now()},
		},
	})
	time.Sleep(20 * time.Millisecond)
	if _, ok := messageStates(vm)["wrong room"]; ok {
		t.Error("message for inactive conversation appended")
	}
}

func TestReadReceiptFlipsOwnMessages(t *testing.T) {
	vm, b := newTestViewModel(t, chatHandler(t))
	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenConversation(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	vm.Send("hi")
	waitForVM(t, func() bool {
		return messageStates(vm)["hi"] == chat.StateSent
	})

	b.Publish(bus.Event{
		Kind:    "transport.read_receipt",
		Payload: transport.ReadReceiptEvent{ConversationID: 3, MessageIDs: []int64{101}},
	})

	waitForVM(t, func() bool {
		return messageStates(vm)["hi"] == chat.StateRead
	})
}

func TestOpenConversationLoadsHistoryWithStates(t *testing.T) {
	vm, _ := newTestViewModel(t, chatHandler(t))
	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenConversation(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	states := messageStates(vm)
	if states["hello"] != chat.StateSent {
		t.Errorf("history message state = %q", states["hello"])
	}
	if vm.ActiveConversation().ID != 3 {
		t.Errorf("active conversation = %d", vm.ActiveConversation().ID)
	}

	vm.CloseConversation()
	if vm.ActiveConversation().ID != 0 {
		t.Error("conversation still active after close")
	}
	if len(vm.TimelineItems()) != 0 {
		t.Error("timeline not cleared after close")
	}
}

func TestReloadFailureLeavesRetryHint(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	inner := chatHandler(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() && r.URL.Path == "/chat/conversations" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		inner.ServeHTTP(w, r)
	})
	vm, _ := newTestViewModel(t, handler)

	vm.ReloadConversations(context.Background())
	if msg := vm.Flash.Get(); !strings.Contains(msg, "press R to reload") {
		t.Errorf("flash = %q, want retry hint", msg)
	}

	// The hint stays up until a reload succeeds.
	failing.Store(false)
	vm.ReloadConversations(context.Background())
	if msg := vm.Flash.Get(); msg != "" {
		t.Errorf("flash = %q after successful reload", msg)
	}
	if got := len(vm.Conversations()); got != 1 {
		t.Errorf("conversations = %d after reload", got)
	}
}

func TestReloadRequestRefetchesConversations(t *testing.T) {
	vm, b := newTestViewModel(t, chatHandler(t))

	b.Publish(bus.Event{
		Kind:    "chat.reload_requested",
		Payload: chat.ReloadRequest{ConversationID: 3},
	})

	waitForVM(t, func() bool { return len(vm.Conversations()) == 1 })
}

func TestClearNotifications(t *testing.T) {
	var markedAll atomic.Bool
	mux := http.NewServeMux()
	handleFunc(mux, http.MethodGet, "/chat/notifications", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"id": 1, "user_id": 1, "title": "a", "body": "b", "is_read": false, "created_at": "2026-08-30T10:00:00"},
			{"id": 2, "user_id": 1, "title": "c", "body": "d", "is_read": true, "read_at": "2026-08-30T10:00:00", "created_at": "2026-08-30T09:00:00"},
			{"id": 3, "user_id": 1, "title": "e", "body": "f", "is_read": false, "created_at": "2026-08-30T08:00:00"}
		]`))
	})
	handleFunc(mux, http.MethodPut, "/chat/notifications/mark-all-read", func(w http.ResponseWriter, r *http.Request) {
		markedAll.Store(true)
	})
	vm, _ := newTestViewModel(t, mux)

	cleared, err := vm.ClearNotifications(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cleared != 2 {
		t.Errorf("cleared = %d, want 2", cleared)
	}
	if !markedAll.Load() {
		t.Error("mark-all-read never called")
	}
	if vm.Stats().UnreadNotificationsCount != 0 {
		t.Errorf("stats = %+v", vm.Stats())
	}
}

func TestNotificationForOpenConversationMarkedRead(t *testing.T) {
	marked := make(chan string, 2)
	inner := chatHandler(t)
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/chat/notifications/") {
			marked <- r.URL.Path
			return
		}
		inner.ServeHTTP(w, r)
	})
	vm, b := newTestViewModel(t, handler)
	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := vm.OpenConversation(context.Background(), 3); err != nil {
		t.Fatal(err)
	}

	b.Publish(bus.Event{
		Kind:    "transport.notification",
		Payload: transport.NotificationEvent{ID: 7, ConversationID: 3},
	})

	select {
	case path := <-marked:
		if path != "/chat/notifications/7" {
			t.Errorf("marked %q", path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification for open conversation never marked read")
	}

	// One for another conversation is left alone.
	b.Publish(bus.Event{
		Kind:    "transport.notification",
		Payload: transport.NotificationEvent{ID: 8, ConversationID: 4},
	})
	select {
	case path := <-marked:
		t.Errorf("marked %q for inactive conversation", path)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFilterNarrowsConversations(t *testing.T) {
	vm, _ := newTestViewModel(t, chatHandler(t))
	if err := vm.LoadConversations(context.Background()); err != nil {
		t.Fatal(err)
	}

	vm.SetFilter("bruno")
	if got := vm.Conversations(); len(got) != 1 {
		t.Errorf("filtered = %d conversations", len(got))
	}
	vm.SetFilter("nobody")
	if got := vm.Conversations(); len(got) != 0 {
		t.Errorf("filtered = %d conversations, want 0", len(got))
	}
}
