package transport

import (
	"encoding/json"
	"fmt"

	"homechat/internal/api"
)

// Event is an inbound realtime event. The concrete types below are the
// only implementations.
type Event interface {
	isEvent()
}

// MessageEvent is a new chat message pushed by the server.
type MessageEvent struct {
	ID             int64    `json:"id"`
	ConversationID int64    `json:"conversation_id"`
	SenderID       int64    `json:"sender_id"`
	SenderName     string   `json:"sender_name"`
	Content        string   `json:"content"`
	CreatedAt      api.Time `json:"created_at"`
}

// NotificationEvent is a stored notification pushed alongside a message.
type NotificationEvent struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	Body           string   `json:"body"`
	ConversationID int64    `json:"conversation_id"`
	CreatedAt      api.Time `json:"created_at"`
}

// ReadReceiptEvent reports that the peer read our messages. Unlike the
// other events it arrives flat, without a data wrapper.
type ReadReceiptEvent struct {
	ConversationID int64   `json:"conversation_id"`
	MessageIDs     []int64 `json:"message_ids"`
}

// HeartbeatAck is the server's reply to a keep-alive ping.
type HeartbeatAck struct{}

func (MessageEvent) isEvent()      {}
func (NotificationEvent) isEvent() {}
func (ReadReceiptEvent) isEvent()  {}
func (HeartbeatAck) isEvent()      {}

// UnknownEventError reports a frame type the client does not handle.
// Unknown frames are logged and skipped, not treated as fatal.
type UnknownEventError struct {
	Type string
}

func (e *UnknownEventError) Error() string {
	return fmt.Sprintf("unknown event type %q", e.Type)
}

// Decode parses one inbound frame into its typed event.
func Decode(data []byte) (Event, error) {
	var envelope struct {
		Type string          `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}

	switch envelope.Type {
	case "message":
		var ev MessageEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode message event: %w", err)
		}
		return ev, nil
	case "notification":
		var ev NotificationEvent
		if err := json.Unmarshal(envelope.Data, &ev); err != nil {
			return nil, fmt.Errorf("decode notification event: %w", err)
		}
		return ev, nil
	case "read_receipt":
		var ev ReadReceiptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("decode read receipt: %w", err)
		}
		return ev, nil
	case "pong":
		return HeartbeatAck{}, nil
	default:
		return nil, &UnknownEventError{Type: envelope.Type}
	}
}
