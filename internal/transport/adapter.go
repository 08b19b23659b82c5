// Package transport maintains the single realtime connection a session
// uses for message delivery events.
package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/fault"
	"github.com/lunamsg/syncd/internal/status"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

// Handler receives inbound transport events. Exactly one handler is wired
// per adapter; it must write into the store before any observer-visible
// notification fires.
type Handler interface {
	HandleAck(localID, serverID string)
	HandleInbound(m *store.Message)
	HandleFriends(snapshot []store.Friend)
	HandleContacts(snapshot []store.Contact)
}

// Adapter owns one logical websocket connection per authenticated session,
// reconnecting with exponential backoff across drops. Disconnection never
// discards unacknowledged outbound messages; they stay in the store until
// a later connection cycle or an explicit retry.
type Adapter struct {
	url        string
	creds      CredentialProvider
	machine    *status.Machine
	handler    Handler
	bus        *bus.Bus
	logger     *zap.Logger
	backoffMin time.Duration
	backoffMax time.Duration

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
}

// NewAdapter creates an adapter for the given message socket URL.
func NewAdapter(url string, creds CredentialProvider, machine *status.Machine, handler Handler, b *bus.Bus, logger *zap.Logger, backoffMin, backoffMax time.Duration) *Adapter {
	return &Adapter{
		url:        url,
		creds:      creds,
		machine:    machine,
		handler:    handler,
		bus:        b,
		logger:     logger,
		backoffMin: backoffMin,
		backoffMax: backoffMax,
	}
}

// Start launches the connection loop. It returns immediately; connection
// state is observable through the status machine and session.* bus events.
func (a *Adapter) Start(ctx context.Context) {
	ctx, a.cancel = context.WithCancel(ctx)
	go a.run(ctx)
}

// Stop terminates the connection loop and closes the active connection.
// In-flight store writes triggered by already-received events complete
// normally.
func (a *Adapter) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Lock()
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
	a.mu.Unlock()
}

// Connected reports whether a connection is currently established.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conn != nil
}

// SendMessage hands an outbound message to the socket. Fire-and-forget:
// it does not wait for acknowledgment, which arrives later as an inbound
// ack event correlated by localID.
func (a *Adapter) SendMessage(_ context.Context, chatID, senderID, content, localID string) error {
	a.mu.Lock()
	conn := a.conn
	a.mu.Unlock()
	if conn == nil {
		return &fault.TransportFault{Op: "send", Err: errors.New("not connected")}
	}

	f := frame{
		Type:      frameSendMessage,
		ChatID:    chatID,
		SenderID:  senderID,
		Content:   content,
		LocalID:   localID,
		Timestamp: time.Now().UnixMilli(),
	}

	a.writeMu.Lock()
	err := conn.WriteJSON(f)
	a.writeMu.Unlock()
	if err != nil {
		return &fault.TransportFault{Op: "send", Err: err}
	}
	return nil
}

func (a *Adapter) run(ctx context.Context) {
	backoff := a.backoffMin
	for ctx.Err() == nil {
		if err := a.machine.Transition(status.Connecting); err != nil {
			a.logger.Warn("unexpected connection state", zap.Error(err))
		}

		// Re-read the credential on every attempt; it may have rotated.
		token, err := a.creds.Token(ctx)
		if err != nil {
			a.authFailed(&fault.TransportFault{Op: "credential", Auth: true, Err: err})
			return
		}

		conn, resp, dialErr := websocket.DefaultDialer.DialContext(ctx, a.url, http.Header{
			"Authorization": []string{"Bearer " + token},
		})
		if dialErr != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				a.authFailed(&fault.TransportFault{Op: "connect", Auth: true, Err: dialErr})
				return
			}
			a.logger.Warn("connection attempt failed",
				zap.Error(&fault.TransportFault{Op: "connect", Err: dialErr}),
				zap.Duration("backoff", backoff))
			_ = a.machine.Transition(status.Disconnected)
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = nextBackoff(backoff, a.backoffMax)
			continue
		}

		a.mu.Lock()
		a.conn = conn
		a.mu.Unlock()
		backoff = a.backoffMin
		_ = a.machine.Transition(status.Connected)
		a.logger.Info("connected", zap.String("url", a.url))
		a.bus.Publish(bus.Event{Kind: "session.connected", Timestamp: time.Now()})

		a.readLoop(conn)

		a.mu.Lock()
		a.conn = nil
		a.mu.Unlock()
		_ = a.machine.Transition(status.Disconnected)
		a.logger.Warn("disconnected", zap.Duration("backoff", backoff))
		a.bus.Publish(bus.Event{Kind: "session.disconnected", Timestamp: time.Now()})

		if !sleepCtx(ctx, backoff) {
			return
		}
		backoff = nextBackoff(backoff, a.backoffMax)
	}
}

// readLoop dispatches inbound frames to the handler until the connection
// drops. Handler calls are synchronous so the store write always precedes
// the next frame.
func (a *Adapter) readLoop(conn *websocket.Conn) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case frameAck:
			if f.LocalID == "" || f.ServerID == "" {
				a.logger.Warn("malformed ack frame dropped")
				continue
			}
			a.handler.HandleAck(f.LocalID, f.ServerID)
		case frameMessage:
			a.handler.HandleInbound(&store.Message{
				MsgID:       f.ServerID,
				ChatID:      f.ChatID,
				SenderID:    f.SenderID,
				Content:     f.Content,
				ContentType: f.ContentType,
				ServerID:    f.ServerID,
				CreatedAt:   f.Timestamp,
			})
		case frameFriends:
			friends := make([]store.Friend, len(f.Roster))
			for i, e := range f.Roster {
				friends[i] = store.Friend{
					FriendID:     e.ID,
					FullName:     e.FullName,
					Username:     e.Username,
					AvatarURL:    e.AvatarURL,
					Color:        e.Color,
					Presence:     e.Presence,
					LastActiveAt: e.LastActiveAt,
				}
			}
			a.handler.HandleFriends(friends)
		case frameContacts:
			contacts := make([]store.Contact, len(f.Roster))
			for i, e := range f.Roster {
				contacts[i] = store.Contact{
					ContactID:    e.ID,
					FullName:     e.FullName,
					Username:     e.Username,
					AvatarURL:    e.AvatarURL,
					Color:        e.Color,
					Presence:     e.Presence,
					LastActiveAt: e.LastActiveAt,
				}
			}
			a.handler.HandleContacts(contacts)
		default:
			a.logger.Debug("unknown frame type", zap.String("type", f.Type))
		}
	}
}

// authFailed reports a fatal credential problem. The loop exits: the spec
// forbids connecting unauthenticated, and a fresh Start is required once
// a credential is available again.
func (a *Adapter) authFailed(err error) {
	a.logger.Error("authentication failed", zap.Error(err))
	_ = a.machine.Transition(status.AuthFailed)
	a.bus.Publish(bus.Event{Kind: "session.auth_failed", Timestamp: time.Now(), Payload: err.Error()})
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}
