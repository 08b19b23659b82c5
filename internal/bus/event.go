package bus

import "time"

// Event represents a domain event published on the bus.
//
// Kinds follow a dotted namespace convention so observers can subscribe to
// a whole family at once:
//
//	message.*  store mutations on messages (upserted, id_reconciled, ...)
//	roster.*   friend/contact reconciliation results
//	session.*  connection lifecycle and auth
//	stream.*   numeric stream emissions
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
