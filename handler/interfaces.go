package handler

import (
	"context"
	"errors"
	"time"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/store"
)

var (
	// ErrStoreUnavailable indicates that the message history could not be read or written.
	ErrStoreUnavailable = errors.New("message store unavailable")
	// ErrUnknownSlot indicates a fragment for a radio interface that has no handler.
	ErrUnknownSlot = errors.New("unknown slot")
)

// Store is the history of received messages.
type Store interface {
	FindPending(ctx context.Context, identity cb.Identity, since time.Time) ([]store.Record, error)
	HasReceived(ctx context.Context, query store.DuplicateQuery) (bool, error)
	Insert(ctx context.Context, slot int, message cb.Message, broadcast bool) (string, error)
	MarkBroadcast(ctx context.Context, id string) error
}

// Locator provides a single location fix. The returned channel yields at most one fix; it may be closed
// without a fix. The Locator should give up after maxWait, but the caller does not rely on that.
type Locator interface {
	RequestFix(ctx context.Context, maxWait time.Duration) <-chan geo.Fix
}

// Deliverer hands a message over to the user facing side.
type Deliverer interface {
	Deliver(ctx context.Context, slot int, message cb.Message) error
}

// AreaInfoNotifier tells interested receivers about new area info. NotifyAreaInfo must not block.
type AreaInfoNotifier interface {
	NotifyAreaInfo(slot int, receiver string, text string)
}

// CellLocator reports the cell the radio interface is currently registered to. Unknown fields are gsm.Unknown.
type CellLocator interface {
	CellLocation(ctx context.Context) (gsm.CellLocation, error)
}

// Settings are read on every use, so they may change at runtime.
type Settings interface {
	AreaInfoChannels(slot int) []cb.MessageIdentifier
	AreaInfoReceivers() []string
	ResetDuplicateDetectionOnPowerCycle() bool
	DuplicateWindow() time.Duration
	DefaultMaximumWaitTime() time.Duration
}

// StaticSettings is a fixed set of settings.
type StaticSettings struct {
	Channels          map[int][]cb.MessageIdentifier
	Receivers         []string
	ResetOnPowerCycle bool
	Window            time.Duration
	DefaultWaitTime   time.Duration
}

func (s StaticSettings) AreaInfoChannels(slot int) []cb.MessageIdentifier {
	return s.Channels[slot]
}

func (s StaticSettings) AreaInfoReceivers() []string {
	return s.Receivers
}

func (s StaticSettings) ResetDuplicateDetectionOnPowerCycle() bool {
	return s.ResetOnPowerCycle
}

func (s StaticSettings) DuplicateWindow() time.Duration {
	return s.Window
}

func (s StaticSettings) DefaultMaximumWaitTime() time.Duration {
	return s.DefaultWaitTime
}
