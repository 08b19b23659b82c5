package store

import (
	"database/sql"
	"time"
)

// UpsertFriend inserts or fully overwrites a friend record. The server is
// the sole source of truth for roster entries, so no field-level merging.
func (db *DB) UpsertFriend(f *Friend) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO friends (friend_id, full_name, username, avatar_url, color, presence, last_active_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(friend_id) DO UPDATE SET
			full_name = excluded.full_name,
			username = excluded.username,
			avatar_url = excluded.avatar_url,
			color = excluded.color,
			presence = excluded.presence,
			last_active_at = excluded.last_active_at,
			updated_at = excluded.updated_at`,
		f.FriendID, f.FullName, f.Username, f.AvatarURL, f.Color, f.Presence, f.LastActiveAt, now)
	return err
}

// DeleteFriend removes a friend by identifier.
func (db *DB) DeleteFriend(friendID string) error {
	_, err := db.Exec(`DELETE FROM friends WHERE friend_id = ?`, friendID)
	return err
}

// GetFriend returns a friend by identifier, or nil when absent.
func (db *DB) GetFriend(friendID string) (*Friend, error) {
	var f Friend
	err := db.QueryRow(`
		SELECT friend_id, full_name, username, avatar_url, color, presence, last_active_at
		FROM friends WHERE friend_id = ?`, friendID).
		Scan(&f.FriendID, &f.FullName, &f.Username, &f.AvatarURL, &f.Color, &f.Presence, &f.LastActiveAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ListFriends returns all friends ordered by identifier.
func (db *DB) ListFriends() ([]Friend, error) {
	rows, err := db.Query(`
		SELECT friend_id, full_name, username, avatar_url, color, presence, last_active_at
		FROM friends ORDER BY friend_id ASC`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var friends []Friend
	for rows.Next() {
		var f Friend
		if err := rows.Scan(&f.FriendID, &f.FullName, &f.Username, &f.AvatarURL, &f.Color, &f.Presence, &f.LastActiveAt); err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}
