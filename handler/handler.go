package handler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/store"
)

type fragment struct {
	pdu    []byte
	result chan Decision
}

// Handler processes the fragments received on one radio interface (slot). All fragments are processed
// sequentially by the worker started with Run.
type Handler struct {
	slot        int
	table       *cb.Table
	store       Store
	dedup       *DuplicateFilter
	coordinator *Coordinator
	areaInfo    *AreaInfoCache
	notifier    AreaInfoNotifier
	deliverer   Deliverer
	cellLocator CellLocator
	settings    Settings
	now         func() time.Time
	log         zerolog.Logger

	fragments chan fragment
}

// Run processes the submitted fragments until ctx is done.
func (h *Handler) Run(ctx context.Context) error {
	h.log.Debug().Int("slot", h.slot).Msg("handler started")
	defer h.log.Debug().Int("slot", h.slot).Msg("handler stopped")
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f := <-h.fragments:
			f.result <- h.safeProcess(ctx, f.pdu)
		}
	}
}

// Submit hands the given fragment over to the worker and waits for the decision.
func (h *Handler) Submit(ctx context.Context, pdu []byte) (Decision, error) {
	f := fragment{
		pdu:    pdu,
		result: make(chan Decision, 1),
	}
	select {
	case h.fragments <- f:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
	select {
	case result := <-f.result:
		return result, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

func (h *Handler) safeProcess(ctx context.Context, pdu []byte) (result Decision) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while processing fragment: %v", r)
			h.log.Error().Err(err).Int("slot", h.slot).Str("pdu", gsm.BinaryToHex(pdu)).Msg("fragment dropped")
			result = suppressed(ReasonInternalError, err)
		}
	}()
	return h.Process(ctx, pdu)
}

// Process decides about the given fragment. Process must only be called by the worker goroutine, or if Run is
// not used at all.
func (h *Handler) Process(ctx context.Context, pdu []byte) Decision {
	// stale assemblies are evicted after every fragment, even a malformed one
	current := h.currentLocation(ctx)
	defer func() {
		evicted := h.table.EvictStale(current)
		if evicted > 0 {
			h.log.Debug().Int("slot", h.slot).Int("evicted", evicted).Stringer("location", current).Msg("incomplete messages evicted")
		}
	}()

	header, err := cb.ParseHeader(pdu)
	if err != nil {
		h.log.Warn().Err(err).Int("slot", h.slot).Str("pdu", gsm.BinaryToHex(pdu)).Msg("fragment dropped")
		return suppressed(ReasonMalformedHeader, err)
	}

	if header.Kind() == cb.KindTrigger {
		return h.processTrigger(ctx, header, pdu)
	}
	return h.processPage(ctx, header, current, pdu)
}

func (h *Handler) processTrigger(ctx context.Context, header cb.Header, pdu []byte) Decision {
	trigger, err := cb.ParseGeoFencingTrigger(header, pdu)
	if err != nil {
		h.log.Warn().Err(err).Int("slot", h.slot).Str("pdu", gsm.BinaryToHex(pdu)).Msg("trigger dropped")
		return suppressed(ReasonMalformedTrigger, err)
	}
	h.log.Debug().Int("slot", h.slot).Stringer("trigger", trigger).Msg("geo-fencing trigger received")

	if !h.coordinator.HandleTrigger(ctx, h.slot, trigger) {
		return suppressed(ReasonNoCandidates, nil)
	}
	return Decision{Outcome: AwaitGeofence, Reason: ReasonGeofenceScheduled}
}

func (h *Handler) processPage(ctx context.Context, header cb.Header, current gsm.CellLocation, pdu []byte) Decision {
	location := cb.LocationForScope(header.GeographicalScope(), current)
	assembly, complete := h.table.Submit(header, location, pdu)
	if !complete {
		return suppressed(ReasonIncomplete, nil)
	}

	message, err := cb.NewMessage(assembly, h.now())
	if err != nil {
		h.log.Warn().Err(err).Int("slot", h.slot).Stringer("header", header).Msg("message dropped")
		return suppressed(ReasonMalformedBody, err)
	}

	if h.dedup.IsDuplicate(ctx, message) {
		h.log.Debug().Int("slot", h.slot).Stringer("identity", message.Identity()).Stringer("location", message.Location).Msg("duplicate message ignored")
		return decided(Suppressed, ReasonDuplicate, message)
	}

	if isAreaInfoChannel(h.settings.AreaInfoChannels(h.slot), message.ServiceCategory()) {
		h.areaInfo.Set(h.slot, message.Body)
		for _, receiver := range h.settings.AreaInfoReceivers() {
			h.notifier.NotifyAreaInfo(h.slot, receiver, message.Body)
		}
		h.log.Debug().Int("slot", h.slot).Str("text", message.Body).Msg("area info updated")
		return decided(Suppressed, ReasonAreaInfo, message)
	}

	if message.HasGeometry() {
		record := store.Record{Slot: h.slot, Message: message}
		record.ID, err = h.store.Insert(ctx, h.slot, message, false)
		if err != nil {
			h.log.Error().Err(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)).Stringer("identity", message.Identity()).Msg("cannot record pending message")
		}
		h.coordinator.Fence(ctx, h.slot, record)
		return decided(AwaitGeofence, ReasonGeofenceScheduled, message)
	}

	_, err = h.store.Insert(ctx, h.slot, message, true)
	if err != nil {
		h.log.Error().Err(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)).Stringer("identity", message.Identity()).Msg("cannot record broadcast message")
	}
	result := decided(BroadcastNow, ReasonDelivered, message)
	err = h.deliverer.Deliver(ctx, h.slot, message)
	if err != nil {
		h.log.Error().Err(err).Int("slot", h.slot).Stringer("identity", message.Identity()).Msg("cannot deliver message")
		result.Err = err
	}
	return result
}

func (h *Handler) currentLocation(ctx context.Context) gsm.CellLocation {
	if h.cellLocator == nil {
		return gsm.UnknownLocation()
	}
	location, err := h.cellLocator.CellLocation(ctx)
	if err != nil {
		h.log.Debug().Err(err).Int("slot", h.slot).Msg("current cell location unknown")
		return gsm.UnknownLocation()
	}
	return location
}

// PendingAssemblies returns the number of incomplete messages. It must only be called from the worker goroutine
// or if Run is not used.
func (h *Handler) PendingAssemblies() int {
	return h.table.Len()
}
