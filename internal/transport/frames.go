package transport

// Frame kinds exchanged with the message socket.
const (
	frameSendMessage = "send_message"
	frameMessage     = "message"
	frameAck         = "ack"
	frameFriends     = "friends"
	frameContacts    = "contacts"
)

// frame is the JSON envelope on the message socket. The server correlates
// a send with its acknowledgment through LocalID and assigns ServerID.
// Friends and contacts frames carry a full snapshot of the collection.
type frame struct {
	Type        string        `json:"type"`
	ChatID      string        `json:"chat_id,omitempty"`
	SenderID    string        `json:"sender_id,omitempty"`
	Content     string        `json:"content,omitempty"`
	ContentType string        `json:"content_type,omitempty"`
	LocalID     string        `json:"local_id,omitempty"`
	ServerID    string        `json:"server_id,omitempty"`
	Timestamp   int64         `json:"timestamp,omitempty"`
	Roster      []rosterEntry `json:"roster,omitempty"`
}

// rosterEntry is one record of a friends or contacts snapshot.
type rosterEntry struct {
	ID           string `json:"id"`
	FullName     string `json:"full_name"`
	Username     string `json:"username"`
	AvatarURL    string `json:"avatar_url"`
	Color        string `json:"color"`
	Presence     string `json:"presence"`
	LastActiveAt int64  `json:"last_active_at"`
}
