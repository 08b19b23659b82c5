package ingest

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/message"
	"github.com/lunamsg/syncd/internal/roster"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

func testIngestor(t *testing.T) (*Ingestor, *message.Manager, *store.DB, *bus.Bus) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	logger, _ := zap.NewDevelopment()
	b := bus.New()
	mgr := message.NewManager(db, b, logger)
	rec := roster.NewReconciler(db, b, logger)
	return New(db, mgr, rec, b, logger), mgr, db, b
}

func TestHandleAckCompletesLifecycle(t *testing.T) {
	ing, mgr, db, _ := testIngestor(t)

	rec, err := mgr.AddMessage(message.Draft{ChatID: "c1", SenderID: "u1", Content: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	syncing := message.Syncing
	if _, err := mgr.UpdateMessageByID(rec.MsgID, message.Patch{Status: &syncing}); err != nil {
		t.Fatal(err)
	}

	ing.HandleAck(rec.MsgID, "srv-7")

	got, err := db.GetMessage("srv-7")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil {
		t.Fatal("message not resolvable by server id after ack")
	}
	if got.Status != string(message.Sent) {
		t.Errorf("status = %q, want sent", got.Status)
	}
	if got.ServerID != "srv-7" {
		t.Errorf("server_id = %q, want srv-7", got.ServerID)
	}

	old, err := db.GetMessage(rec.MsgID)
	if err != nil {
		t.Fatal(err)
	}
	if old != nil {
		t.Error("message still resolvable by provisional id")
	}
}

func TestHandleAckUnknownIDLogsAndKeepsStore(t *testing.T) {
	ing, _, db, _ := testIngestor(t)

	ing.HandleAck("ghost", "srv-1")

	got, err := db.GetMessage("srv-1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Error("ack for unknown message must not create a record")
	}
}

func TestHandleInboundIdempotent(t *testing.T) {
	ing, _, db, _ := testIngestor(t)

	m := &store.Message{MsgID: "srv-1", ChatID: "c1", SenderID: "peer", Content: "yo", ContentType: "text", CreatedAt: 1000}
	ing.HandleInbound(m)
	ing.HandleInbound(m)

	msgs, err := db.ListMessagesByChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 {
		t.Fatalf("got %d messages, want 1 (idempotent ingest)", len(msgs))
	}

	chat, err := db.GetChat("c1")
	if err != nil {
		t.Fatal(err)
	}
	if chat == nil || chat.LastMessagePreview != "yo" {
		t.Errorf("chat = %+v, want summary bumped", chat)
	}
}

func TestHandleFriendsReconcilesSnapshot(t *testing.T) {
	ing, _, db, _ := testIngestor(t)

	if err := db.UpsertFriend(&store.Friend{FriendID: "f1", FullName: "Old"}); err != nil {
		t.Fatal(err)
	}

	ing.HandleFriends([]store.Friend{
		{FriendID: "f1", FullName: "New"},
		{FriendID: "f2", FullName: "Added"},
	})

	friends, err := db.ListFriends()
	if err != nil {
		t.Fatal(err)
	}
	if len(friends) != 2 {
		t.Fatalf("got %d friends, want 2", len(friends))
	}
	if friends[0].FullName != "New" {
		t.Errorf("f1 full name = %q, want snapshot to overwrite", friends[0].FullName)
	}
}

func TestHandleInboundNotifiesAfterWrite(t *testing.T) {
	ing, _, db, b := testIngestor(t)

	ch, unsub := b.Subscribe("message.", 10)
	defer unsub()

	ing.HandleInbound(&store.Message{MsgID: "srv-2", ChatID: "c1", SenderID: "peer", Content: "hello", CreatedAt: 2000})

	select {
	case evt := <-ch:
		payload := evt.Payload.(map[string]string)
		// The write must already be visible to a reader reacting to the event.
		got, err := db.GetMessage(payload["msg_id"])
		if err != nil {
			t.Fatal(err)
		}
		if got == nil {
			t.Error("notification fired before write was visible")
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message event")
	}
}
