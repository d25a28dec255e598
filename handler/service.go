package handler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
)

const fragmentQueueLength = 16

// Dependencies of the Service. Locator, Notifier and CellLocators are optional.
type Dependencies struct {
	Store     Store
	Locator   Locator
	Deliverer Deliverer
	Notifier  AreaInfoNotifier
	Settings  Settings
	// CellLocators provide the current cell of each slot. Slots without a cell locator use an unknown location.
	CellLocators map[int]CellLocator
	// Observer is informed about the asynchronous geo-fencing decisions.
	Observer ObserverFunc
	// Now defaults to time.Now.
	Now func() time.Time
	Log zerolog.Logger
}

// Service handles the fragments of all slots.
type Service struct {
	handlers    map[int]*Handler
	areaInfo    *AreaInfoCache
	window      *RecencyWindow
	coordinator *Coordinator
	log         zerolog.Logger
}

// NewService creates a handler for each of the given slots.
func NewService(slots []int, deps Dependencies) *Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	locator := deps.Locator
	if locator == nil {
		locator = NoLocator{}
	}
	notifier := deps.Notifier
	if notifier == nil {
		notifier = nopNotifier{}
	}

	window := NewRecencyWindow(deps.Settings, now)
	result := &Service{
		handlers:    make(map[int]*Handler, len(slots)),
		areaInfo:    NewAreaInfoCache(),
		window:      window,
		coordinator: NewCoordinator(deps.Store, locator, deps.Deliverer, deps.Settings, window, deps.Log).WithObserver(deps.Observer),
		log:         deps.Log,
	}
	dedup := NewDuplicateFilter(deps.Store, window, deps.Log)
	for _, slot := range slots {
		result.handlers[slot] = &Handler{
			slot:        slot,
			table:       cb.NewTable().WithLogger(deps.Log.With().Int("slot", slot).Logger()),
			store:       deps.Store,
			dedup:       dedup,
			coordinator: result.coordinator,
			areaInfo:    result.areaInfo,
			notifier:    notifier,
			deliverer:   deps.Deliverer,
			cellLocator: deps.CellLocators[slot],
			settings:    deps.Settings,
			now:         now,
			log:         deps.Log,
			fragments:   make(chan fragment, fragmentQueueLength),
		}
	}
	return result
}

// Run starts the workers of all slots and blocks until ctx is done. Outstanding geo-fencing requests are
// abandoned with ctx, Run waits for them to return.
func (s *Service) Run(ctx context.Context) error {
	group, groupCtx := errgroup.WithContext(ctx)
	for _, handler := range s.handlers {
		handler := handler
		group.Go(func() error {
			return handler.Run(groupCtx)
		})
	}
	err := group.Wait()
	s.coordinator.Wait()
	return err
}

// SubmitFragment hands the given fragment to the handler of the given slot and returns the decision about it.
// Run must be active.
func (s *Service) SubmitFragment(ctx context.Context, slot int, pdu []byte) (Decision, error) {
	handler, ok := s.handlers[slot]
	if !ok {
		return Decision{}, fmt.Errorf("%w: %d", ErrUnknownSlot, slot)
	}
	return handler.Submit(ctx, pdu)
}

// AreaInfo returns the latest area info of the given slot, or the empty string if there is none.
func (s *Service) AreaInfo(slot int) string {
	return s.areaInfo.Get(slot)
}

// HasSlot reports whether the given slot is handled by this service.
func (s *Service) HasSlot(slot int) bool {
	_, ok := s.handlers[slot]
	return ok
}

// Slots returns all handled slots in ascending order.
func (s *Service) Slots() []int {
	result := make([]int, 0, len(s.handlers))
	for slot := range s.handlers {
		result = append(result, slot)
	}
	sort.Ints(result)
	return result
}

// ResetDuplicateDetection records a location privacy reset at the given time. If the settings enable it,
// messages broadcast before t are no longer considered as duplicates.
func (s *Service) ResetDuplicateDetection(t time.Time) {
	s.window.NoteReset(t)
	s.log.Info().Time("reset", t).Msg("duplicate detection reset")
}

// WaitForGeofencing blocks until all outstanding geo-fencing requests are resolved or abandoned.
func (s *Service) WaitForGeofencing() {
	s.coordinator.Wait()
}

// NoLocator never provides a location fix, so all geo-fenced messages are broadcast immediately.
type NoLocator struct{}

func (NoLocator) RequestFix(context.Context, time.Duration) <-chan geo.Fix {
	result := make(chan geo.Fix)
	close(result)
	return result
}

type nopNotifier struct{}

func (nopNotifier) NotifyAreaInfo(int, string, string) {}
