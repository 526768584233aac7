package api

import (
	"fmt"
	"strings"
	"time"
)

// Time handles the server's timestamp formats. The backend emits naive
// ISO timestamps without a timezone offset alongside RFC3339 ones, so a
// plain time.Time field would fail to decode.
type Time struct {
	time.Time
}

const naiveLayout = "2006-01-02T15:04:05.999999"

func (t *Time) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "null" || s == "" {
		t.Time = time.Time{}
		return nil
	}
	if parsed, err := time.Parse(time.RFC3339Nano, s); err == nil {
		t.Time = parsed
		return nil
	}
	parsed, err := time.ParseInLocation(naiveLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return []byte(`"` + t.Format(time.RFC3339Nano) + `"`), nil
}

// Token is the response of the login and refresh endpoints.
type Token struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// User is the authenticated user's profile.
type User struct {
	ID         int64  `json:"id"`
	Email      string `json:"email"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Username   string `json:"username"`
	IsVerified bool   `json:"is_verified"`
	Role       string `json:"role"`
}

// Message is a confirmed chat message as the server returns it.
type Message struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	Content        string `json:"content"`
	IsRead         bool   `json:"is_read"`
	ReadAt         *Time  `json:"read_at"`
	CreatedAt      Time   `json:"created_at"`
	SenderName     string `json:"sender_name"`
}

// Conversation is a conversation summary with property and participant
// details joined in by the server.
type Conversation struct {
	ID                 int64   `json:"id"`
	PropertyID         int64   `json:"property_id"`
	BuyerID            int64   `json:"buyer_id"`
	AgentID            int64   `json:"agent_id"`
	LastMessageAt      Time    `json:"last_message_at"`
	LastMessagePreview string  `json:"last_message_preview"`
	IsActive           bool    `json:"is_active"`
	CreatedAt          Time    `json:"created_at"`
	PropertyTitle      string  `json:"property_title"`
	PropertyPrice      float64 `json:"property_price"`
	PropertyCity       string  `json:"property_city"`
	OtherUserID        int64   `json:"other_user_id"`
	OtherUserName      string  `json:"other_user_name"`
	OtherUserEmail     string  `json:"other_user_email"`
	UnreadCount        int     `json:"unread_count"`
}

// ConversationWithMessages is the conversation detail response, which
// includes the message history.
type ConversationWithMessages struct {
	Conversation
	Messages []Message `json:"messages"`
}

// Notification is a stored notification row.
type Notification struct {
	ID             int64  `json:"id"`
	UserID         int64  `json:"user_id"`
	MessageID      int64  `json:"message_id"`
	ConversationID int64  `json:"conversation_id"`
	Title          string `json:"title"`
	Body           string `json:"body"`
	IsRead         bool   `json:"is_read"`
	ReadAt         *Time  `json:"read_at"`
	CreatedAt      Time   `json:"created_at"`
}

// Stats is the aggregate unread counters endpoint response.
type Stats struct {
	TotalConversations       int `json:"total_conversations"`
	UnreadMessagesCount      int `json:"unread_messages_count"`
	UnreadNotificationsCount int `json:"unread_notifications_count"`
}
