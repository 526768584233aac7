package api

import (
	"context"
	"fmt"
	"net/http"
)

// ListConversations returns all conversations for the authenticated user.
func (c *Client) ListConversations(ctx context.Context) ([]Conversation, error) {
	var convs []Conversation
	if err := c.do(ctx, http.MethodGet, "/chat/conversations", nil, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// GetConversation returns a conversation with its full message history.
// Fetching the detail also marks the messages read on the server.
func (c *Client) GetConversation(ctx context.Context, conversationID int64) (*ConversationWithMessages, error) {
	var conv ConversationWithMessages
	path := fmt.Sprintf("/chat/conversations/%d", conversationID)
	if err := c.do(ctx, http.MethodGet, path, nil, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation opens a conversation about a property with an
// initial message.
func (c *Client) CreateConversation(ctx context.Context, propertyID int64, message string) (*Conversation, error) {
	var conv Conversation
	body := map[string]any{
		"property_id": propertyID,
		"message":     message,
	}
	if err := c.do(ctx, http.MethodPost, "/chat/conversations", body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendMessage posts a message to a conversation and returns the confirmed
// message row.
func (c *Client) SendMessage(ctx context.Context, conversationID int64, content string) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/chat/conversations/%d/messages", conversationID)
	body := map[string]string{"content": content}
	if err := c.do(ctx, http.MethodPost, path, body, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// SubmitMessage adapts SendMessage to the outbound pipeline's submitter
// shape, returning only the server-assigned message id.
func (c *Client) SubmitMessage(ctx context.Context, conversationID int64, content string) (int64, error) {
	msg, err := c.SendMessage(ctx, conversationID, content)
	if err != nil {
		return 0, err
	}
	return msg.ID, nil
}

// Stats returns the aggregate unread counters.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	err := c.do(ctx, http.MethodGet, "/chat/stats", nil, &s)
	return s, err
}

// ListNotifications returns stored notifications, newest first.
func (c *Client) ListNotifications(ctx context.Context) ([]Notification, error) {
	var notifs []Notification
	if err := c.do(ctx, http.MethodGet, "/chat/notifications", nil, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// MarkNotificationRead marks a single notification as read.
func (c *Client) MarkNotificationRead(ctx context.Context, notificationID int64) error {
	path := fmt.Sprintf("/chat/notifications/%d", notificationID)
	return c.do(ctx, http.MethodPut, path, map[string]bool{"is_read": true}, nil)
}

// MarkAllNotificationsRead marks every notification as read.
func (c *Client) MarkAllNotificationsRead(ctx context.Context) error {
	return c.do(ctx, http.MethodPut, "/chat/notifications/mark-all-read", nil, nil)
}
