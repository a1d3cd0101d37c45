package store

import (
	"fmt"
	"time"

	"github.com/vanotis720/vochat/internal/docstore"
)

// ReplaceConversation swaps the cached view of one conversation for the
// given snapshot in a single transaction. Snapshots always replace; the
// cache never merges two of them.
func (db *DB) ReplaceConversation(conversationID string, msgs []docstore.Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID); err != nil {
		return fmt.Errorf("clear cached conversation: %w", err)
	}

	now := time.Now().UnixMilli()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO messages (conversation_id, msg_id, user_id, kind, content, status, created_at, cached_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			conversationID, m.ID, m.UserID, m.Kind, m.Content, m.Status, m.CreatedAt, now); err != nil {
			return fmt.Errorf("cache message %s: %w", m.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

// ListMessages returns the cached conversation in creation order.
func (db *DB) ListMessages(conversationID string) ([]docstore.Message, error) {
	rows, err := db.Query(`
		SELECT msg_id, user_id, kind, content, status, created_at
		FROM messages
		WHERE conversation_id = ?
		ORDER BY created_at ASC, msg_id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []docstore.Message
	for rows.Next() {
		var m docstore.Message
		if err := rows.Scan(&m.ID, &m.UserID, &m.Kind, &m.Content, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearConversation drops the cached view, e.g. on sign-out.
func (db *DB) ClearConversation(conversationID string) error {
	_, err := db.Exec(`DELETE FROM messages WHERE conversation_id = ?`, conversationID)
	return err
}

// MessageCount returns the number of cached messages across conversations.
func (db *DB) MessageCount() (int, error) {
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&n)
	return n, err
}
