// Package message owns the message lifecycle: creation under a provisional
// identifier, status transitions along the state machine, and the rewrite
// to the server-confirmed identifier on acknowledgment. Every successful
// mutation is durable before it returns.
package message

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/fault"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

// Manager mutates message rows in the store and publishes change events
// after each committed write.
type Manager struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewManager creates a lifecycle manager backed by the store.
func NewManager(db *store.DB, b *bus.Bus, logger *zap.Logger) *Manager {
	return &Manager{db: db, bus: b, logger: logger}
}

// Draft is the caller-supplied input for a new outbound or inbound message.
type Draft struct {
	MsgID       string // optional; allocated when empty
	ChatID      string
	SenderID    string
	Content     string
	ContentType string
	ReplyTo     string
	Attachment  string
	Transaction string
}

// Patch holds the lifecycle-relevant fields UpdateMessageByID may change.
// Nil pointers leave the stored value untouched.
type Patch struct {
	Content     *string
	Status      *Status
	ServerID    *string
	Reactions   *string
	Attachment  *string
	Transaction *string
	IsPinned    *bool
}

// AddMessage persists a draft in Pending state and returns the stored
// record. ChatID and SenderID must be non-empty; a provisional MsgID is
// allocated when the draft has none.
func (m *Manager) AddMessage(d Draft) (*store.Message, error) {
	if d.ChatID == "" {
		return nil, fmt.Errorf("add message: chat id is required")
	}
	if d.SenderID == "" {
		return nil, fmt.Errorf("add message: sender id is required")
	}

	msgID := d.MsgID
	if msgID == "" {
		msgID = uuid.NewString()
	}
	contentType := d.ContentType
	if contentType == "" {
		contentType = "text"
	}

	now := time.Now().UnixMilli()
	rec := &store.Message{
		MsgID:       msgID,
		ChatID:      d.ChatID,
		SenderID:    d.SenderID,
		Content:     d.Content,
		ContentType: contentType,
		Status:      string(Pending),
		ReplyTo:     d.ReplyTo,
		Attachment:  d.Attachment,
		Transaction: d.Transaction,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.db.InsertMessage(rec); err != nil {
		return nil, fault.Storage("insert message", err)
	}

	m.publish("message.upserted", rec.ChatID, rec.MsgID)
	return rec, nil
}

// UpdateMessageByID patches a message resolved by its current primary
// lookup key. Status changes are validated against the state machine, and
// a transition into Sent is rejected unless a ServerID is present on the
// record or in the patch.
func (m *Manager) UpdateMessageByID(msgID string, p Patch) (*store.Message, error) {
	rec, err := m.db.GetMessage(msgID)
	if err != nil {
		return nil, fault.Storage("load message", err)
	}
	if rec == nil {
		return nil, fmt.Errorf("update %q: %w", msgID, fault.ErrNotFound)
	}

	if p.ServerID != nil {
		if rec.Status == string(Sent) && rec.ServerID != "" && rec.ServerID != *p.ServerID {
			return nil, fmt.Errorf("update %q: server id is immutable once sent", msgID)
		}
		rec.ServerID = *p.ServerID
	}
	if p.Status != nil {
		if err := ValidateTransition(Status(rec.Status), *p.Status); err != nil {
			return nil, fmt.Errorf("update %q: %w", msgID, err)
		}
		if *p.Status == Sent && rec.ServerID == "" {
			return nil, fmt.Errorf("update %q: sent requires a server id", msgID)
		}
		rec.Status = string(*p.Status)
	}
	if p.Content != nil {
		rec.Content = *p.Content
	}
	if p.Reactions != nil {
		rec.Reactions = *p.Reactions
	}
	if p.Attachment != nil {
		rec.Attachment = *p.Attachment
	}
	if p.Transaction != nil {
		rec.Transaction = *p.Transaction
	}
	if p.IsPinned != nil {
		rec.IsPinned = *p.IsPinned
	}

	if err := m.db.UpdateMessage(rec); err != nil {
		return nil, fault.Storage("update message", err)
	}

	m.publish("message.upserted", rec.ChatID, rec.MsgID)
	return rec, nil
}

// UpdateMessageID rewrites the primary lookup key from the provisional to
// the server-confirmed identifier. At most one call per logical message
// succeeds; zero or multiple matches surface as NotFound/DuplicateState
// and leave the store unchanged.
func (m *Manager) UpdateMessageID(oldID, newID string) error {
	if err := m.db.RenameMessageID(oldID, newID); err != nil {
		return err
	}
	m.publish("message.id_reconciled", "", newID)
	return nil
}

// Retry re-enters Pending for a failed message, reusing the provisional
// identifier so the send cannot be duplicated. Only Failed rows are
// retryable.
func (m *Manager) Retry(msgID string) (*store.Message, error) {
	status := Pending
	rec, err := m.UpdateMessageByID(msgID, Patch{Status: &status})
	if err != nil {
		return nil, err
	}
	m.logger.Info("message re-queued for retry", zap.String("msg_id", msgID))
	return rec, nil
}

// GetLatestMessage returns the newest message of a chat, or nil when the
// chat has none. Read-only.
func (m *Manager) GetLatestMessage(chatID string) (*store.Message, error) {
	rec, err := m.db.LatestMessage(chatID)
	if err != nil {
		return nil, fault.Storage("latest message", err)
	}
	return rec, nil
}

// GetMessagesByChatID returns the chat's messages in chronological order;
// an empty slice when there are none. Read-only.
func (m *Manager) GetMessagesByChatID(chatID string) ([]store.Message, error) {
	msgs, err := m.db.ListMessagesByChat(chatID)
	if err != nil {
		return nil, fault.Storage("list messages", err)
	}
	return msgs, nil
}

func (m *Manager) publish(kind, chatID, msgID string) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(bus.Event{
		Kind:      kind,
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_id": chatID,
			"msg_id":  msgID,
		},
	})
}
