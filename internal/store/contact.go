package store

import (
	"database/sql"
	"time"
)

// UpsertContact inserts or fully overwrites a contact record.
func (db *DB) UpsertContact(c *Contact) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO contacts (contact_id, full_name, username, avatar_url, color, presence, last_active_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(contact_id) DO UPDATE SET
			full_name = excluded.full_name,
			username = excluded.username,
			avatar_url = excluded.avatar_url,
			color = excluded.color,
			presence = excluded.presence,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at`,
		c.ContactID, c.FullName, c.Username, c.AvatarURL, c.Color, c.Presence, c.LastActiveAt, now)
	return err
}

// DeleteContact removes a contact by identifier.
func (db *DB) DeleteContact(contactID string) error {
	_, err := db.Exec(`DELETE FROM contacts WHERE contact_id = ?`, contactID)
	return err
}

// GetContact returns a contact by identifier, or nil when absent.
func (db *DB) GetContact(contactID string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT contact_id, full_name, username, avatar_url, color, presence, last_active_at
		FROM contacts WHERE contact_id = ?`, contactID).
		Scan(&c.ContactID, &c.FullName, &c.Username, &c.AvatarURL, &c.Color, &c.Presence, &c.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns all contacts ordered by identifier.
func (db *DB) ListContacts() ([]Contact, error) {
	rows, err := db.Query(`
		SELECT contact_id, full_name, username, avatar_url, color, presence, last_active_at
		FROM contacts ORDER BY contact_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.ContactID, &c.FullName, &c.Username, &c.AvatarURL, &c.Color, &c.Presence, &c.LastActiveAt); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
