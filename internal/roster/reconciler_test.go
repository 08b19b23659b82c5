package roster

import (
	"path/filepath"
	"testing"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/zap"
)

func testReconciler(t *testing.T) (*Reconciler, *store.DB) {
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
	return NewReconciler(db, bus.New(), logger), db
}

func friendIDs(t *testing.T, db *store.DB) []string {
	t.Helper()
	friends, err := db.ListFriends()
	if err != nil {
		t.Fatal(err)
	}
	ids := make([]string, 0, len(friends))
	for _, f := range friends {
		ids = append(ids, f.FriendID)
	}
	return ids
}

func TestReconcileFriendsDiff(t *testing.T) {
	r, db := testReconciler(t)

	// Local: a, b. Server: b (renamed), c.
	if err := db.UpsertFriend(&store.Friend{FriendID: "a", FullName: "A"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertFriend(&store.Friend{FriendID: "b", FullName: "B"}); err != nil {
		t.Fatal(err)
	}

	res, err := r.ReconcileFriends([]store.Friend{
		{FriendID: "b", FullName: "B2"},
		{FriendID: "c", FullName: "C"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 || res.Updated != 1 || res.Created != 1 {
		t.Errorf("result = %+v, want 1 deleted, 1 updated, 1 created", res)
	}

	ids := friendIDs(t, db)
	if len(ids) != 2 || ids[0] != "b" || ids[1] != "c" {
		t.Errorf("local ids = %v, want [b c]", ids)
	}

	b, err := db.GetFriend("b")
	if err != nil {
		t.Fatal(err)
	}
	if b.FullName != "B2" {
		t.Errorf("b.FullName = %q, want overwritten B2", b.FullName)
	}
}

func TestReconcileFriendsIdempotent(t *testing.T) {
	r, db := testReconciler(t)

	snapshot := []store.Friend{
		{FriendID: "x", FullName: "X"},
		{FriendID: "y", FullName: "Y"},
	}
	if _, err := r.ReconcileFriends(snapshot); err != nil {
		t.Fatal(err)
	}

	res, err := r.ReconcileFriends(snapshot)
	if err != nil {
		t.Fatal(err)
	}
	if res.Created != 0 || res.Deleted != 0 {
		t.Errorf("second pass = %+v, want no creates or deletes", res)
	}

	ids := friendIDs(t, db)
	if len(ids) != 2 {
		t.Errorf("local ids = %v, want exactly the snapshot set", ids)
	}
}

func TestReconcileFriendsEmptySnapshotClearsLocal(t *testing.T) {
	r, db := testReconciler(t)

	if err := db.UpsertFriend(&store.Friend{FriendID: "a"}); err != nil {
		t.Fatal(err)
	}

	res, err := r.ReconcileFriends(nil)
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 {
		t.Errorf("deleted = %d, want 1", res.Deleted)
	}
	if ids := friendIDs(t, db); len(ids) != 0 {
		t.Errorf("local ids = %v, want empty", ids)
	}
}

func TestReconcileSkipsEmptyIdentifiers(t *testing.T) {
	r, db := testReconciler(t)

	res, err := r.ReconcileFriends([]store.Friend{
		{FriendID: "", FullName: "ghost"},
		{FriendID: "ok", FullName: "OK"},
	})
	if err == nil {
		t.Error("empty identifier must be reported")
	}
	if res.Skipped != 1 || res.Created != 1 {
		t.Errorf("result = %+v, want 1 skipped, 1 created", res)
	}

	friends, listErr := db.ListFriends()
	if listErr != nil {
		t.Fatal(listErr)
	}
	if len(friends) != 1 || friends[0].FriendID != "ok" {
		t.Errorf("friends = %+v, want only 'ok'", friends)
	}
}

func TestReconcileContacts(t *testing.T) {
	r, db := testReconciler(t)

	if err := db.UpsertContact(&store.Contact{ContactID: "old"}); err != nil {
		t.Fatal(err)
	}

	res, err := r.ReconcileContacts([]store.Contact{{ContactID: "new", Username: "n"}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 || res.Created != 1 {
		t.Errorf("result = %+v, want 1 deleted, 1 created", res)
	}

	contacts, err := db.ListContacts()
	if err != nil {
		t.Fatal(err)
	}
	if len(contacts) != 1 || contacts[0].ContactID != "new" {
		t.Errorf("contacts = %+v, want only 'new'", contacts)
	}
}
