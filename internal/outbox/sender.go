// Package outbox drains locally persisted sends into the realtime
// transport, walking each message through its lifecycle as it goes.
package outbox

import (
	"context"
	"time"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/message"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

// Transport is the send side of the realtime boundary.
type Transport interface {
	SendMessage(ctx context.Context, chatID, senderID, content, localID string) error
	Connected() bool
}

// Uploader transfers an attachment payload to media storage before the
// message itself is handed to the transport. Implementations return the
// stored metadata that replaces the local attachment reference.
type Uploader interface {
	Upload(ctx context.Context, attachment string) (string, error)
}

// Sender polls for pending messages and pushes them through the pipeline:
// pending -> (uploading when an attachment is present) -> syncing. The
// syncing -> sent edge is applied by the ingest handler when the ack
// arrives; messages stuck in syncing are re-offered after a reconnect.
type Sender struct {
	db        *store.DB
	messages  *message.Manager
	transport Transport
	uploader  Uploader // nil when no media endpoint is configured
	bus       *bus.Bus
	logger    *zap.Logger
	interval  time.Duration
	cancel    context.CancelFunc
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, messages *message.Manager, t Transport, u Uploader, b *bus.Bus, logger *zap.Logger) *Sender {
	return &Sender{
		db:        db,
		messages:  messages,
		transport: t,
		uploader:  u,
		bus:       b,
		logger:    logger,
		interval:  500 * time.Millisecond,
	}
}

// Start begins polling for pending messages and re-offering unacknowledged
// ones after each reconnect.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	go s.loop(ctx)
}

// Stop stops the sender loop.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *Sender) loop(ctx context.Context) {
	reconnects, unsub := s.bus.Subscribe("session.connected", 16)
	defer unsub()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-reconnects:
			s.requeueSyncing(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	if !s.transport.Connected() {
		return
	}

	pending, err := s.db.PendingSends()
	if err != nil {
		s.logger.Error("failed to read pending sends", zap.Error(err))
		return
	}

	for _, m := range pending {
		s.process(ctx, m)
	}
}

func (s *Sender) process(ctx context.Context, m store.Message) {
	if m.Attachment != "" {
		uploading := message.Uploading
		if _, err := s.messages.UpdateMessageByID(m.MsgID, message.Patch{Status: &uploading}); err != nil {
			s.logger.Error("failed to enter uploading", zap.Error(err), zap.String("msg_id", m.MsgID))
			return
		}
		if s.uploader != nil {
			meta, err := s.uploader.Upload(ctx, m.Attachment)
			if err != nil {
				s.fail(m, "upload", err)
				return
			}
			if _, err := s.messages.UpdateMessageByID(m.MsgID, message.Patch{Attachment: &meta}); err != nil {
				s.logger.Error("failed to store upload result", zap.Error(err), zap.String("msg_id", m.MsgID))
				return
			}
		}
	}

	syncing := message.Syncing
	if _, err := s.messages.UpdateMessageByID(m.MsgID, message.Patch{Status: &syncing}); err != nil {
		s.logger.Error("failed to enter syncing", zap.Error(err), zap.String("msg_id", m.MsgID))
		return
	}

	// Fire-and-forget: the ack arrives on the receive path. A transient
	// send failure leaves the row in syncing for the next connection
	// cycle rather than failing it.
	if err := s.transport.SendMessage(ctx, m.ChatID, m.SenderID, m.Content, m.MsgID); err != nil {
		s.logger.Warn("handoff failed, message stays in syncing",
			zap.Error(err), zap.String("msg_id", m.MsgID))
		return
	}

	s.logger.Info("message handed off", zap.String("msg_id", m.MsgID), zap.String("chat_id", m.ChatID))
}

// requeueSyncing re-offers messages that were handed off before a drop and
// never acknowledged. No state change: they are already in syncing.
func (s *Sender) requeueSyncing(ctx context.Context) {
	stuck, err := s.db.StuckSyncing()
	if err != nil {
		s.logger.Error("failed to read unacknowledged sends", zap.Error(err))
		return
	}
	for _, m := range stuck {
		if err := s.transport.SendMessage(ctx, m.ChatID, m.SenderID, m.Content, m.MsgID); err != nil {
			s.logger.Warn("requeue handoff failed", zap.Error(err), zap.String("msg_id", m.MsgID))
			continue
		}
		s.logger.Info("unacknowledged message re-offered", zap.String("msg_id", m.MsgID))
	}
}

func (s *Sender) fail(m store.Message, op string, err error) {
	s.logger.Error("send pipeline failed",
		zap.Error(err), zap.String("op", op), zap.String("msg_id", m.MsgID))
	failed := message.Failed
	if _, uerr := s.messages.UpdateMessageByID(m.MsgID, message.Patch{Status: &failed}); uerr != nil {
		s.logger.Error("failed to mark message failed", zap.Error(uerr), zap.String("msg_id", m.MsgID))
		return
	}
	s.bus.Publish(bus.Event{
		Kind:      "message.send_failed",
		Timestamp: time.Now(),
		Payload: map[string]string{
			"msg_id": m.MsgID,
			"error":  err.Error(),
		},
	})
}
