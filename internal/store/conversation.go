package store

import (
	"time"

	"homechat/internal/chat"
)

// ReplaceConversations swaps the cached conversation list inside one
// transaction, so a crash mid-refresh never leaves a partial list.
func (db *DB) ReplaceConversations(convs []chat.Conversation) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM conversations`); err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	for _, c := range convs {
		_, err := tx.Exec(`
			INSERT INTO conversations (id, property_id, property_title, property_city, property_price,
				other_user_id, other_user_name, last_message_at, last_message_preview,
				unread_count, is_active, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, c.PropertyID, c.PropertyTitle, c.PropertyCity, c.PropertyPrice,
			c.OtherUserID, c.OtherUserName, c.LastMessageAt.UnixMilli(), c.LastMessagePreview,
			c.UnreadCount, c.IsActive, now)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertConversation inserts or updates a single cached conversation.
func (db *DB) UpsertConversation(c *chat.Conversation) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO conversations (id, property_id, property_title, property_city, property_price,
			other_user_id, other_user_name, last_message_at, last_message_preview,
			unread_count, is_active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			property_title = excluded.property_title,
			property_city = excluded.property_city,
			property_price = excluded.property_price,
			other_user_id = excluded.other_user_id,
			other_user_name = excluded.other_user_name,
			last_message_at = excluded.last_message_at,
			last_message_preview = excluded.last_message_preview,
			unread_count = excluded.unread_count,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at`,
		c.ID, c.PropertyID, c.PropertyTitle, c.PropertyCity, c.PropertyPrice,
		c.OtherUserID, c.OtherUserName, c.LastMessageAt.UnixMilli(), c.LastMessagePreview,
		c.UnreadCount, c.IsActive, now)
	return err
}

// ListConversations returns cached conversations, newest activity first.
func (db *DB) ListConversations() ([]chat.Conversation, error) {
	rows, err := db.Query(`
		SELECT id, property_id, property_title, property_city, property_price,
			other_user_id, other_user_name, last_message_at, last_message_preview,
			unread_count, is_active
		FROM conversations
		ORDER BY last_message_at DESC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var convs []chat.Conversation
	for rows.Next() {
		var c chat.Conversation
		var lastAt int64
		if err := rows.Scan(&c.ID, &c.PropertyID, &c.PropertyTitle, &c.PropertyCity, &c.PropertyPrice,
			&c.OtherUserID, &c.OtherUserName, &lastAt, &c.LastMessagePreview,
			&c.UnreadCount, &c.IsActive); err != nil {
			return nil, err
		}
		c.LastMessageAt = time.UnixMilli(lastAt)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}
