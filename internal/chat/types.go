package chat

import (
	"strconv"
	"time"
)

// DeliveryState tracks an outbound message through the delivery pipeline.
// Inbound messages are always "sent" (or "read" once receipted).
type DeliveryState string

const (
	StateSending DeliveryState = "sending"
	StateSent    DeliveryState = "sent"
	StateFailed  DeliveryState = "failed"
	StateRead    DeliveryState = "read"
)

// ReloadRequest is the payload of "chat.reload_requested", published when
// an inbound event references a conversation the store does not know yet.
type ReloadRequest struct {
	ConversationID int64
}

// Message is a chat message as the client tracks it. Outbound messages
// start with only a TempID; the ServerID arrives on confirmation.
type Message struct {
	TempID         string
	ServerID       int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	CreatedAt      time.Time
	State          DeliveryState
}

// Confirmed reports whether the server has assigned this message an id.
func (m *Message) Confirmed() bool { return m.ServerID != 0 }

// Key returns the identity used for deduplication: the server id once
// confirmed, the temp id before that.
func (m *Message) Key() string {
	if m.ServerID != 0 {
		return "srv:" + strconv.FormatInt(m.ServerID, 10)
	}
	return m.TempID
}

// Conversation is a conversation summary as shown in the sidebar list.
type Conversation struct {
	ID                 int64
	PropertyID         int64
	PropertyTitle      string
	PropertyCity       string
	PropertyPrice      float64
	OtherUserID        int64
	OtherUserName      string
	LastMessageAt      time.Time
	LastMessagePreview string
	UnreadCount        int
	IsActive           bool
}
