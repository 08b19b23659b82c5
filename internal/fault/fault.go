// Package fault defines the error taxonomy shared by the sync core.
//
// Callers match on the sentinel errors with errors.Is and on the fault
// structs with errors.As; every error produced by the store, the message
// lifecycle manager, the reconciler and the transport resolves to exactly
// one of these.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a referenced identifier resolved to no record.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateState indicates an operation that expected to match
	// exactly one record matched more than one. This is a logic fault
	// (duplicated logical send upstream) and is surfaced, never resolved
	// silently.
	ErrDuplicateState = errors.New("identifier resolved to more than one record")
)

// StorageFault wraps a failed local read or write. Durability is at risk
// when one of these surfaces, so callers must not treat the mutation as
// applied.
type StorageFault struct {
	Op  string
	Err error
}

func (e *StorageFault) Error() string {
	return fmt.Sprintf("storage fault: %s: %v", e.Op, e.Err)
}

func (e *StorageFault) Unwrap() error { return e.Err }

// Storage wraps err as a StorageFault, passing nil through unchanged.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageFault{Op: op, Err: err}
}

// TransportFault wraps a connection, authentication or send failure on the
// realtime boundary.
type TransportFault struct {
	Op   string
	Auth bool // true when the failure is an absent/rejected credential
	Err  error
}

func (e *TransportFault) Error() string {
	if e.Auth {
		return fmt.Sprintf("transport auth fault: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("transport fault: %s: %v", e.Op, e.Err)
}

func (e *TransportFault) Unwrap() error { return e.Err }

// RecordError reports a single record that failed during a reconciliation
// pass. The pass itself continues; the caller receives the aggregate.
type RecordError struct {
	ID  string
	Err error
}

func (e *RecordError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("reconcile: record with empty identifier skipped: %v", e.Err)
	}
	return fmt.Sprintf("reconcile %q: %v", e.ID, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }
