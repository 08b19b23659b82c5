// Package roster brings the locally stored friend and contact collections
// into exact agreement with server-provided snapshots.
package roster

import (
	"fmt"
	"time"

	"github.com/lunamsg/syncd/internal/bus"
	"github.com/lunamsg/syncd/internal/fault"
	"github.com/lunamsg/syncd/internal/store"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Reconciler applies full-authority server snapshots to the store. The
// server owns these collections, so matches are overwritten wholesale and
// local records absent from the snapshot are deleted.
type Reconciler struct {
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger
}

// NewReconciler creates a reconciler backed by the store.
func NewReconciler(db *store.DB, b *bus.Bus, logger *zap.Logger) *Reconciler {
	return &Reconciler{db: db, bus: b, logger: logger}
}

// Result summarizes one reconciliation pass.
type Result struct {
	Created int
	Updated int
	Deleted int
	Skipped int
}

// ReconcileFriends diffs the snapshot against local friends and applies
// the minimal create/update/delete set. A per-record failure is recorded
// and the pass continues; the aggregate of record errors is returned
// alongside the result. Snapshot entries with an empty identifier are
// skipped and reported, never inserted.
func (r *Reconciler) ReconcileFriends(snapshot []store.Friend) (Result, error) {
	local, err := r.db.ListFriends()
	if err != nil {
		return Result{}, fault.Storage("list friends", err)
	}

	localIDs := make(map[string]bool, len(local))
	for _, f := range local {
		localIDs[f.FriendID] = true
	}
	serverIDs := make(map[string]bool, len(snapshot))
	for _, f := range snapshot {
		if f.FriendID != "" {
			serverIDs[f.FriendID] = true
		}
	}

	var res Result
	var errs error

	for _, f := range local {
		if serverIDs[f.FriendID] {
			continue
		}
		if err := r.db.DeleteFriend(f.FriendID); err != nil {
			errs = multierr.Append(errs, &fault.RecordError{ID: f.FriendID, Err: err})
			continue
		}
		res.Deleted++
	}

	for _, f := range snapshot {
		if f.FriendID == "" {
			r.logger.Warn("friend snapshot entry has empty identifier, skipping")
			errs = multierr.Append(errs, &fault.RecordError{Err: fmt.Errorf("empty friend id")})
			res.Skipped++
			continue
		}
		if err := r.db.UpsertFriend(&f); err != nil {
			errs = multierr.Append(errs, &fault.RecordError{ID: f.FriendID, Err: err})
			continue
		}
		if localIDs[f.FriendID] {
			res.Updated++
		} else {
			res.Created++
		}
	}

	r.publish("roster.friends_synced", res)
	r.logResult("friends", res, errs)
	return res, errs
}

// ReconcileContacts is the contacts counterpart of ReconcileFriends.
func (r *Reconciler) ReconcileContacts(snapshot []store.Contact) (Result, error) {
	local, err := r.db.ListContacts()
	if err != nil {
		return Result{}, fault.Storage("list contacts", err)
	}

	localIDs := make(map[string]bool, len(local))
	for _, c := range local {
		localIDs[c.ContactID] = true
	}
	serverIDs := make(map[string]bool, len(snapshot))
	for _, c := range snapshot {
		if c.ContactID != "" {
			serverIDs[c.ContactID] = true
		}
	}

	var res Result
	var errs error

	for _, c := range local {
		if serverIDs[c.ContactID] {
			continue
		}
		if err := r.db.DeleteContact(c.ContactID); err != nil {
			errs = multierr.Append(errs, &fault.RecordError{ID: c.ContactID, Err: err})
			continue
		}
		res.Deleted++
	}

	for _, c := range snapshot {
		if c.ContactID == "" {
			r.logger.Warn("contact snapshot entry has empty identifier, skipping")
			errs = multierr.Append(errs, &fault.RecordError{Err: fmt.Errorf("empty contact id")})
			res.Skipped++
			continue
		}
		if err := r.db.UpsertContact(&c); err != nil {
			errs = multierr.Append(errs, &fault.RecordError{ID: c.ContactID, Err: err})
			continue
		}
		if localIDs[c.ContactID] {
			res.Updated++
		} else {
			res.Created++
		}
	}

	r.publish("roster.contacts_synced", res)
	r.logResult("contacts", res, errs)
	return res, errs
}

func (r *Reconciler) publish(kind string, res Result) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(bus.Event{Kind: kind, Timestamp: time.Now(), Payload: res})
}

func (r *Reconciler) logResult(collection string, res Result, errs error) {
	fields := []zap.Field{
		zap.String("collection", collection),
		zap.Int("created", res.Created),
		zap.Int("updated", res.Updated),
		zap.Int("deleted", res.Deleted),
		zap.Int("skipped", res.Skipped),
	}
	if errs != nil {
		fields = append(fields, zap.Int("failed_records", len(multierr.Errors(errs))))
		r.logger.Warn("reconciliation pass completed with record failures", fields...)
		return
	}
	r.logger.Info("reconciliation pass completed", fields...)
}
