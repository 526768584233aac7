package store

import (
	"path/filepath"
	"testing"
	"time"

	"homechat/internal/chat"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	res, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if res.Changed {
		t.Error("second Migrate reported changes")
	}
}

func TestReplaceConversationsRoundTrip(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	convs := []chat.Conversation{
		{ID: 1, PropertyID: 9, PropertyTitle: "Loft in Centro", PropertyCity: "Recife",
			PropertyPrice: 350000, OtherUserID: 2, OtherUserName: "Bruno Costa",
			LastMessageAt: base.Add(-time.Hour), LastMessagePreview: "see you", UnreadCount: 1, IsActive: true},
		{ID: 2, PropertyID: 10, PropertyTitle: "Beach House",
			LastMessageAt: base, LastMessagePreview: "price?", IsActive: true},
	}
	if err := db.ReplaceConversations(convs); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d conversations", len(got))
	}
	// Newest activity first.
	if got[0].ID != 2 || got[1].ID != 1 {
		t.Errorf("order = %d, %d", got[0].ID, got[1].ID)
	}
	if got[1].PropertyTitle != "Loft in Centro" || got[1].UnreadCount != 1 {
		t.Errorf("conversation = %+v", got[1])
	}
	if !got[1].LastMessageAt.Equal(base.Add(-time.Hour)) {
		t.Errorf("last_message_at = %v", got[1].LastMessageAt)
	}

	// A second replace fully swaps the list.
	if err := db.ReplaceConversations(convs[:1]); err != nil {
		t.Fatal(err)
	}
	got, err = db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Errorf("after replace: %+v", got)
	}
}

func TestUpsertConversationUpdates(t *testing.T) {
	db := newTestDB(t)
	c := &chat.Conversation{ID: 1, PropertyID: 9, PropertyTitle: "Loft", LastMessageAt: time.Now()}
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}
	c.UnreadCount = 3
	c.LastMessagePreview = "updated"
	if err := db.UpsertConversation(c); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListConversations()
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].UnreadCount != 3 || got[0].LastMessagePreview != "updated" {
		t.Errorf("got %+v", got)
	}
}

func TestMessagesRoundTrip(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	msgs := []chat.Message{
		{ServerID: 101, ConversationID: 3, SenderID: 1, Content: "hi", State: chat.StateSent, CreatedAt: base},
		{ServerID: 102, ConversationID: 3, SenderID: 2, SenderName: "Bruno", Content: "hello", State: chat.StateSent, CreatedAt: base.Add(time.Minute)},
		{TempID: "temp-1", ConversationID: 3, Content: "unconfirmed", State: chat.StateSending, CreatedAt: base},
	}
	if err := db.ReplaceMessages(3, msgs); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages(3)
	if err != nil {
		t.Fatal(err)
	}
	// The unconfirmed message is not cached.
	if len(got) != 2 {
		t.Fatalf("got %d messages, want 2", len(got))
	}
	if got[0].ServerID != 101 || got[1].ServerID != 102 {
		t.Errorf("order = %d, %d", got[0].ServerID, got[1].ServerID)
	}
	if got[1].SenderName != "Bruno" || got[1].State != chat.StateSent {
		t.Errorf("message = %+v", got[1])
	}
}

func TestUpsertMessageRejectsUnconfirmed(t *testing.T) {
	db := newTestDB(t)
	err := db.UpsertMessage(&chat.Message{TempID: "temp-1", ConversationID: 3, Content: "x"})
	if err == nil {
		t.Error("unconfirmed message cached")
	}
}

func TestMarkMessagesRead(t *testing.T) {
	db := newTestDB(t)
	msgs := []chat.Message{
		{ServerID: 101, ConversationID: 3, SenderID: 1, Content: "a", State: chat.StateSent, CreatedAt: time.Now()},
		{ServerID: 102, ConversationID: 3, SenderID: 1, Content: "b", State: chat.StateSent, CreatedAt: time.Now()},
	}
	if err := db.ReplaceMessages(3, msgs); err != nil {
		t.Fatal(err)
	}
	if err := db.MarkMessagesRead(3, []int64{101}); err != nil {
		t.Fatal(err)
	}

	got, err := db.ListMessages(3)
	if err != nil {
		t.Fatal(err)
	}
	if got[0].State != chat.StateRead {
		t.Errorf("message 101 state = %s, want read", got[0].State)
	}
	if got[1].State != chat.StateSent {
		t.Errorf("message 102 state = %s, want sent", got[1].State)
	}
}
