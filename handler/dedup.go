package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/store"
)

// DefaultDuplicateWindow is used if the settings define no duplicate window.
const DefaultDuplicateWindow = 24 * time.Hour

// RecencyWindow defines how far back the message history is considered, both for duplicate detection and for
// the lookup of messages referenced by a geo-fencing trigger.
type RecencyWindow struct {
	settings Settings
	now      func() time.Time

	mu        sync.RWMutex
	lastReset time.Time
}

// NewRecencyWindow returns a new window. The creation time counts as the first location privacy reset.
func NewRecencyWindow(settings Settings, now func() time.Time) *RecencyWindow {
	if now == nil {
		now = time.Now
	}
	return &RecencyWindow{
		settings:  settings,
		now:       now,
		lastReset: now(),
	}
}

// NoteReset records a location privacy reset, like toggling the airplane mode or a power cycle.
func (w *RecencyWindow) NoteReset(t time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if t.After(w.lastReset) {
		w.lastReset = t
	}
}

// LastReset returns the time of the latest location privacy reset.
func (w *RecencyWindow) LastReset() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.lastReset
}

// Cutoff returns the point in time before which messages are not considered anymore.
func (w *RecencyWindow) Cutoff() time.Time {
	window := w.settings.DuplicateWindow()
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	result := w.now().Add(-window)
	if !w.settings.ResetDuplicateDetectionOnPowerCycle() {
		return result
	}
	lastReset := w.LastReset()
	if lastReset.After(result) {
		return lastReset
	}
	return result
}

// DuplicateFilter detects messages that were already received within the recency window, including those that
// still wait for geo-fencing.
type DuplicateFilter struct {
	store  Store
	window *RecencyWindow
	log    zerolog.Logger
}

func NewDuplicateFilter(store Store, window *RecencyWindow, log zerolog.Logger) *DuplicateFilter {
	return &DuplicateFilter{
		store:  store,
		window: window,
		log:    log,
	}
}

// IsDuplicate reports whether the given message was already received at the same location. If the store
// cannot be read, the message is not considered a duplicate.
func (f *DuplicateFilter) IsDuplicate(ctx context.Context, message cb.Message) bool {
	query := store.DuplicateQuery{
		Identity: message.Identity(),
		Location: message.Location,
		Since:    f.window.Cutoff(),
	}
	duplicate, err := f.store.HasReceived(ctx, query)
	if err != nil {
		f.log.Error().Err(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)).Stringer("identity", query.Identity).Msg("cannot check for duplicates")
		return false
	}
	return duplicate
}
