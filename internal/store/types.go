package store

// Message represents a stored chat message. MsgID is the primary lookup
// key: the locally allocated provisional ID at composition time, rewritten
// to the server-confirmed ID once the send is acknowledged.
type Message struct {
	ID          int64
	MsgID       string
	ChatID      string
	SenderID    string
	Content     string
	ContentType string // text, image, video, file, transaction
	Status      string // pending, uploading, syncing, sent, failed
	ServerID    string
	ReplyTo     string // serialized reply reference, empty when absent
	Reactions   string // serialized reaction set, empty when absent
	Attachment  string // serialized media metadata, empty for text
	Transaction string // serialized transaction metadata
	IsPinned    bool
	CreatedAt   int64 // unix millis
	UpdatedAt   int64
}

// Friend represents a roster entry owned by the server.
type Friend struct {
	FriendID     string
	FullName     string
	Username     string
	AvatarURL    string
	Color        string
	Presence     string
	LastActiveAt int64
}

// Contact mirrors Friend for the contacts collection.
type Contact struct {
	ContactID    string
	FullName     string
	Username     string
	AvatarURL    string
	Color        string
	Presence     string
	LastActiveAt int64
}

// Chat is the per-conversation summary row maintained on ingest.
type Chat struct {
	ChatID             string
	Title              string
	LastMessageAt      int64
	LastMessagePreview string
}
