// Package ingest is the single internal handler for inbound transport
// events. It writes into the store first and notifies observers only after
// the write has committed, so a reader reacting to a notification always
// sees the data it announces.
package ingest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/message"
	"github.com/lunamsg/syncd/internal/roster"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

// Ingestor applies delivery acknowledgments, inbound messages, and roster
// snapshots.
type Ingestor struct {
	db       *store.DB
	messages *message.Manager
	roster   *roster.Reconciler
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates an ingestor backed by the store.
func New(db *store.DB, messages *message.Manager, r *roster.Reconciler, b *bus.Bus, logger *zap.Logger) *Ingestor {
	return &Ingestor{db: db, messages: messages, roster: r, bus: b, logger: logger}
}

// HandleAck processes a delivery acknowledgment correlated by the
// provisional identifier: the message transitions syncing -> sent with the
// server identifier attached, then the primary lookup key is rewritten.
func (i *Ingestor) HandleAck(localID, serverID string) {
	sent := message.Sent
	if _, err := i.messages.UpdateMessageByID(localID, message.Patch{
		Status:   &sent,
		ServerID: &serverID,
	}); err != nil {
		i.logger.Error("failed to apply delivery ack",
			zap.Error(err), zap.String("local_id", localID), zap.String("server_id", serverID))
		return
	}

	if err := i.messages.UpdateMessageID(localID, serverID); err != nil {
		i.logger.Error("failed to reconcile message id",
			zap.Error(err), zap.String("local_id", localID), zap.String("server_id", serverID))
	}
}

// HandleInbound persists a message received from the server (idempotent on
// its server-assigned identifier) and bumps the chat summary in the same
// scoped write.
func (i *Ingestor) HandleInbound(m *store.Message) {
	if m.MsgID == "" {
		i.logger.Warn("inbound message without identifier dropped", zap.String("chat_id", m.ChatID))
		return
	}
	if m.Status == "" {
		m.Status = string(message.Sent)
	}
	if m.ServerID == "" {
		m.ServerID = m.MsgID
	}

	err := i.db.ScopedWrite(func(tx *sql.Tx) error {
		if err := i.db.UpsertInbound(tx, m); err != nil {
			return fmt.Errorf("upsert inbound: %w", err)
		}
		if err := i.db.TouchChat(tx, m.ChatID, truncate(m.Content, 100), m.CreatedAt); err != nil {
			return fmt.Errorf("touch chat: %w", err)
		}
		return nil
	})
	if err != nil {
		i.logger.Error("failed to ingest inbound message",
			zap.Error(err), zap.String("msg_id", m.MsgID))
		return
	}

	i.bus.Publish(bus.Event{
		Kind:      "message.upserted",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"chat_id": m.ChatID,
			"msg_id":  m.MsgID,
		},
	})
}

// HandleFriends reconciles the friends collection against a full server
// snapshot. Record-level failures are already aggregated and logged by the
// reconciler; the pass itself never aborts.
func (i *Ingestor) HandleFriends(snapshot []store.Friend) {
	if _, err := i.roster.ReconcileFriends(snapshot); err != nil {
		i.logger.Warn("friends snapshot applied with record failures", zap.Error(err))
	}
}

// HandleContacts is the contacts counterpart of HandleFriends.
func (i *Ingestor) HandleContacts(snapshot []store.Contact) {
	if _, err := i.roster.ReconcileContacts(snapshot); err != nil {
		i.logger.Warn("contacts snapshot applied with record failures", zap.Error(err))
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
