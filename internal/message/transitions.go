package message

import (
	"fmt"
	"slices"
)

// Status is a message lifecycle state.
type Status string

const (
	// Pending: persisted locally under a provisional ID, not yet transmitted.
	Pending Status = "pending"
	// Uploading: attachment payload is being transferred; text-only
	// messages skip this state.
	Uploading Status = "uploading"
	// Syncing: handed to the transport, awaiting acknowledgment.
	Syncing Status = "syncing"
	// Sent: terminal success; ServerID is populated and immutable.
	Sent Status = "sent"
	// Failed: terminal failure; the row stays in the store so a retry can
	// re-enter Pending under the same provisional ID.
	Failed Status = "failed"
)

// validTransitions defines the allowed lifecycle edges. Failed -> Pending
// is the retry edge; it is the only way out of Failed, which also means a
// retry racing an in-flight send (still Syncing) is rejected instead of
// producing a duplicate send.
var validTransitions = map[Status][]Status{
	Pending:   {Uploading, Syncing, Failed},
	Uploading: {Syncing, Failed},
	Syncing:   {Sent, Failed},
	Sent:      {},
	Failed:    {Pending},
}

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s Status) bool {
	_, ok := validTransitions[s]
	return ok
}

// ValidateTransition returns an error unless from -> to is a lifecycle edge.
func ValidateTransition(from, to Status) error {
	if !ValidStatus(from) {
		return fmt.Errorf("unknown status %q", from)
	}
	if !ValidStatus(to) {
		return fmt.Errorf("unknown status %q", to)
	}
	if !slices.Contains(validTransitions[from], to) {
		return fmt.Errorf("invalid transition from %s to %s", from, to)
	}
	return nil
}
