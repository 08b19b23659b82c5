package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lunamsg/syncd/internal/fault"
)

const messageColumns = `id, msg_id, chat_id, sender_id, content, content_type, status,
	server_id, reply_to, reactions, attachment, tx_meta, is_pinned, created_at, updated_at`

func scanMessage(row interface{ Scan(...any) error }) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.MsgID, &m.ChatID, &m.SenderID, &m.Content, &m.ContentType,
		&m.Status, &m.ServerID, &m.ReplyTo, &m.Reactions, &m.Attachment, &m.Transaction,
		&m.IsPinned, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// InsertMessage persists a new message row. Fails if MsgID is already taken.
func (db *DB) InsertMessage(m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	if m.UpdatedAt == 0 {
		m.UpdatedAt = now
	}
	res, err := db.Exec(`
		INSERT INTO messages (msg_id, chat_id, sender_id, content, content_type, status,
			server_id, reply_to, reactions, attachment, tx_meta, is_pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.MsgID, m.ChatID, m.SenderID, m.Content, m.ContentType, m.Status,
		m.ServerID, m.ReplyTo, m.Reactions, m.Attachment, m.Transaction, m.IsPinned,
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return err
	}
	m.ID, _ = res.LastInsertId()
	return nil
}

// UpsertInbound inserts or updates a message received from the server
// (idempotent on msg_id, so replayed delivery events cause no duplicates).
func (db *DB) UpsertInbound(tx *sql.Tx, m *Message) error {
	now := time.Now().UnixMilli()
	if m.CreatedAt == 0 {
		m.CreatedAt = now
	}
	_, err := tx.Exec(`
		INSERT INTO messages (msg_id, chat_id, sender_id, content, content_type, status,
			server_id, reply_to, reactions, attachment, tx_meta, is_pinned, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(msg_id) DO UPDATE SET
			content = excluded.content,
			status = excluded.status,
			reactions = excluded.reactions,
			updated_at = excluded.updated_at`,
		m.MsgID, m.ChatID, m.SenderID, m.Content, m.ContentType, m.Status,
		m.ServerID, m.ReplyTo, m.Reactions, m.Attachment, m.Transaction, m.IsPinned,
		m.CreatedAt, now)
	return err
}

// GetMessage returns a message by its current primary lookup key, or nil
// when absent.
func (db *DB) GetMessage(msgID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`
		SELECT `+messageColumns+` FROM messages WHERE msg_id = ?`, msgID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMessage writes the mutable fields of m back by msg_id.
func (db *DB) UpdateMessage(m *Message) error {
	m.UpdatedAt = time.Now().UnixMilli()
	_, err := db.Exec(`
		UPDATE messages SET content = ?, content_type = ?, status = ?, server_id = ?,
			reply_to = ?, reactions = ?, attachment = ?, tx_meta = ?, is_pinned = ?, updated_at = ?
		WHERE msg_id = ?`,
		m.Content, m.ContentType, m.Status, m.ServerID, m.ReplyTo, m.Reactions,
		m.Attachment, m.Transaction, m.IsPinned, m.UpdatedAt, m.MsgID)
	return err
}

// RenameMessageID rewrites the primary lookup key of a message from a
// provisional to a server-confirmed identifier. It fails loudly instead of
// no-opping: fault.ErrNotFound when oldID matches nothing, and
// fault.ErrDuplicateState when oldID matches more than one row or newID is
// already taken by another row. On error the store is left unchanged.
func (db *DB) RenameMessageID(oldID, newID string) error {
	return db.ScopedWrite(func(tx *sql.Tx) error {
		var oldCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE msg_id = ?`, oldID).Scan(&oldCount); err != nil {
			return fmt.Errorf("count old id: %w", err)
		}
		switch {
		case oldCount == 0:
			return fmt.Errorf("rename %q: %w", oldID, fault.ErrNotFound)
		case oldCount > 1:
			return fmt.Errorf("rename %q: %w", oldID, fault.ErrDuplicateState)
		}

		var newCount int
		if err := tx.QueryRow(`SELECT COUNT(*) FROM messages WHERE msg_id = ?`, newID).Scan(&newCount); err != nil {
			return fmt.Errorf("count new id: %w", err)
		}
		if newCount > 0 {
			return fmt.Errorf("rename %q to %q: target exists: %w", oldID, newID, fault.ErrDuplicateState)
		}

		now := time.Now().UnixMilli()
		if _, err := tx.Exec(`
			UPDATE messages SET msg_id = ?, server_id = ?, updated_at = ? WHERE msg_id = ?`,
			newID, newID, now, oldID); err != nil {
			return fmt.Errorf("rewrite msg_id: %w", err)
		}
		return nil
	})
}

// ListMessagesByChat returns all messages of a chat in chronological order.
// An empty slice (not an error) is returned when the chat has none.
func (db *DB) ListMessagesByChat(chatID string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ?
		ORDER BY created_at ASC, id ASC`, chatID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

// LatestMessage returns the newest message of a chat by creation time, or
// nil when the chat has none.
func (db *DB) LatestMessage(chatID string) (*Message, error) {
	m, err := scanMessage(db.QueryRow(`
		SELECT `+messageColumns+` FROM messages
		WHERE chat_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT 1`, chatID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// PendingSends returns messages waiting to enter the send pipeline, oldest
// first.
func (db *DB) PendingSends() ([]Message, error) {
	return db.messagesByStatus("pending")
}

// StuckSyncing returns messages handed to the transport but never
// acknowledged. They are re-offered after a connection cycle.
func (db *DB) StuckSyncing() ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE status = 'syncing' AND server_id = ''
		ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}

func (db *DB) messagesByStatus(status string) ([]Message, error) {
	rows, err := db.Query(`
		SELECT `+messageColumns+` FROM messages
		WHERE status = ?
		ORDER BY created_at ASC, id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *m)
	}
	return msgs, rows.Err()
}
