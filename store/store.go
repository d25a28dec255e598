/*
Package store keeps the history of received cell broadcast messages. The history is used to detect duplicates
and to find the messages that wait for a geo-fencing trigger.
*/
package store

import (
	"errors"
	"time"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/gsm"
)

// ErrNotFound indicates that no record exists with the given ID.
var ErrNotFound = errors.New("record not found")

// Record is a received message as kept in the store.
type Record struct {
	ID        string
	Slot      int
	Message   cb.Message
	Broadcast bool
}

// DuplicateQuery selects received messages with the same identity and location, received after Since. Both
// broadcast and pending messages are selected.
type DuplicateQuery struct {
	Identity cb.Identity
	Location gsm.CellLocation
	Since    time.Time
}

// Config of the SQLite store.
type Config struct {
	Path        string
	BusyTimeout time.Duration
}
