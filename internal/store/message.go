package store

import (
	"fmt"
	"time"

	"homechat/internal/chat"
)

// UpsertMessage caches a confirmed message. Messages without a server id
// are rejected; the pipeline owns unconfirmed state and it never survives
// a restart.
func (db *DB) UpsertMessage(m *chat.Message) error {
	if m.ServerID == 0 {
		return fmt.Errorf("refusing to cache unconfirmed message %s", m.TempID)
	}
	_, err := db.Exec(`
		INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, state, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			state = excluded.state`,
		m.ServerID, m.ConversationID, m.SenderID, m.SenderName, m.Content, string(m.State), m.CreatedAt.UnixMilli())
	return err
}

// ReplaceMessages swaps the cached history of one conversation.
func (db *DB) ReplaceMessages(conversationID int64, msgs []chat.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return err
	}
	for _, m := range msgs {
		if m.ServerID == 0 {
			continue
		}
		_, err := tx.Exec(`
			INSERT INTO messages (id, conversation_id, sender_id, sender_name, content, state, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			m.ServerID, conversationID, m.SenderID, m.SenderName, m.Content, string(m.State), m.CreatedAt.UnixMilli())
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListMessages returns the cached history of a conversation, oldest first.
func (db *DB) ListMessages(conversationID int64) ([]chat.Message, error) {
	rows, err := db.Query(`
		SELECT id, conversation_id, sender_id, sender_name, content, state, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []chat.Message
	for rows.Next() {
		var m chat.Message
		var state string
		var createdAt int64
		if err := rows.Scan(&m.ServerID, &m.ConversationID, &m.SenderID, &m.SenderName, &m.Content, &state, &createdAt); err != nil {
			return nil, err
		}
		m.State = chat.DeliveryState(state)
		m.CreatedAt = time.UnixMilli(createdAt)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkMessagesRead flips cached messages to the read state.
func (db *DB) MarkMessagesRead(conversationID int64, serverIDs []int64) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, id := range serverIDs {
		_, err := tx.Exec(`UPDATE messages SET state = ? WHERE conversation_id = ? AND id = ?`,
			string(chat.StateRead), conversationID, id)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
