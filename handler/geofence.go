package handler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/store"
)

// DefaultMaximumWaitTime is used if neither the messages nor the settings define how long to wait for a location fix.
const DefaultMaximumWaitTime = 30 * time.Second

// ObserverFunc is called for every decision about a geo-fencing candidate.
type ObserverFunc func(slot int, decision Decision)

// fenceRequest captures everything needed to resolve one geo-fencing request. It is never modified once it
// was handed over to the waiting goroutine.
type fenceRequest struct {
	id         string
	slot       int
	candidates []store.Record
	siblings   map[string][]string
	commonArea []geo.Geometry
	shared     bool
	maxWait    time.Duration
}

func (r fenceRequest) area(candidate store.Record) []geo.Geometry {
	if r.shared {
		return r.commonArea
	}
	return candidate.Message.Geometries
}

// Coordinator resolves pending messages against the current position.
type Coordinator struct {
	store     Store
	locator   Locator
	deliverer Deliverer
	settings  Settings
	window    *RecencyWindow
	log       zerolog.Logger
	observer  ObserverFunc

	pending sync.WaitGroup
}

func NewCoordinator(store Store, locator Locator, deliverer Deliverer, settings Settings, window *RecencyWindow, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		locator:   locator,
		deliverer: deliverer,
		settings:  settings,
		window:    window,
		log:       log,
		observer:  func(int, Decision) {},
	}
}

// WithObserver sets the function that is informed about every decision.
func (c *Coordinator) WithObserver(observer ObserverFunc) *Coordinator {
	if observer == nil {
		observer = func(int, Decision) {}
	}
	c.observer = observer
	return c
}

// HandleTrigger looks up the pending messages referenced by the given trigger and schedules the location
// request that decides about them. It returns true if a decision is pending.
func (c *Coordinator) HandleTrigger(ctx context.Context, slot int, trigger cb.GeoFencingTrigger) bool {
	cutoff := c.window.Cutoff()
	var candidates []store.Record
	for _, identity := range trigger.Identities {
		records, err := c.store.FindPending(ctx, identity, cutoff)
		if err != nil {
			c.log.Error().Err(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)).Stringer("identity", identity).Msg("cannot find pending messages")
			continue
		}
		candidates = append(candidates, records...)
	}
	if len(candidates) == 0 {
		c.log.Debug().Int("slot", slot).Stringer("trigger", trigger).Msg("no pending messages for trigger")
		return false
	}

	candidates, siblings := collapse(candidates)
	request := c.newRequest(slot, candidates, trigger.ShareBroadcastArea())
	request.siblings = siblings
	c.schedule(ctx, request)
	return true
}

type candidateKey struct {
	identity cb.Identity
	location gsm.CellLocation
}

// collapse keeps the first record of every identity and location. The IDs of the other records with the same
// identity and location are returned by the ID of the kept record.
func collapse(records []store.Record) ([]store.Record, map[string][]string) {
	result := make([]store.Record, 0, len(records))
	siblings := make(map[string][]string)
	kept := make(map[candidateKey]string, len(records))
	for _, record := range records {
		key := candidateKey{identity: record.Message.Identity(), location: record.Message.Location}
		if id, ok := kept[key]; ok {
			siblings[id] = append(siblings[id], record.ID)
			continue
		}
		kept[key] = record.ID
		result = append(result, record)
	}
	return result, siblings
}

// Fence schedules the location request that decides about a single message with its own broadcast area.
func (c *Coordinator) Fence(ctx context.Context, slot int, candidate store.Record) {
	c.schedule(ctx, c.newRequest(slot, []store.Record{candidate}, false))
}

// Wait blocks until all scheduled requests are resolved or abandoned.
func (c *Coordinator) Wait() {
	c.pending.Wait()
}

func (c *Coordinator) newRequest(slot int, candidates []store.Record, shared bool) fenceRequest {
	result := fenceRequest{
		id:         uuid.NewString(),
		slot:       slot,
		candidates: append([]store.Record{}, candidates...),
		shared:     shared,
	}
	for _, candidate := range candidates {
		if shared {
			result.commonArea = append(result.commonArea, candidate.Message.Geometries...)
		}
		if candidate.Message.MaximumWaitTime > result.maxWait {
			result.maxWait = candidate.Message.MaximumWaitTime
		}
	}
	if result.maxWait == 0 {
		result.maxWait = c.settings.DefaultMaximumWaitTime()
	}
	if result.maxWait <= 0 {
		result.maxWait = DefaultMaximumWaitTime
	}
	return result
}

func (c *Coordinator) schedule(ctx context.Context, request fenceRequest) {
	c.log.Debug().Str("request", request.id).Int("slot", request.slot).Int("candidates", len(request.candidates)).Dur("max_wait", request.maxWait).Msg("requesting location")

	c.pending.Add(1)
	go func() {
		defer c.pending.Done()

		fix, ok := c.awaitFix(ctx, request.maxWait)
		if !ok {
			c.log.Warn().Str("request", request.id).Msg("geo-fencing request abandoned")
			return
		}
		c.resolve(ctx, request, fix)
	}()
}

// awaitFix waits at most maxWait for a location fix. It returns false if ctx was cancelled.
func (c *Coordinator) awaitFix(ctx context.Context, maxWait time.Duration) (geo.Fix, bool) {
	fixCtx, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	fixes := c.locator.RequestFix(fixCtx, maxWait)
	select {
	case fix, ok := <-fixes:
		if !ok {
			return geo.NoFix, ctx.Err() == nil
		}
		return fix, true
	case <-fixCtx.Done():
		return geo.NoFix, ctx.Err() == nil
	}
}

func (c *Coordinator) resolve(ctx context.Context, request fenceRequest, fix geo.Fix) {
	for _, candidate := range request.candidates {
		area := request.area(candidate)
		if fix.Valid && len(area) > 0 && !geo.AnyContains(area, fix.Position) {
			c.log.Info().Str("request", request.id).Str("id", candidate.ID).Stringer("identity", candidate.Message.Identity()).Stringer("position", fix.Position).Msg("message suppressed, outside of broadcast area")
			c.observer(request.slot, decided(Suppressed, ReasonOutsideArea, candidate.Message))
			continue
		}
		c.observer(request.slot, c.broadcast(ctx, request, candidate))
	}
}

func (c *Coordinator) broadcast(ctx context.Context, request fenceRequest, candidate store.Record) Decision {
	if candidate.ID != "" {
		for _, id := range append([]string{candidate.ID}, request.siblings[candidate.ID]...) {
			err := c.store.MarkBroadcast(ctx, id)
			if err != nil {
				c.log.Error().Err(fmt.Errorf("%w: %v", ErrStoreUnavailable, err)).Str("id", id).Msg("cannot mark message as broadcast")
			}
		}
	}
	result := decided(BroadcastNow, ReasonDelivered, candidate.Message)
	err := c.deliverer.Deliver(ctx, request.slot, candidate.Message)
	if err != nil {
		c.log.Error().Err(err).Str("id", candidate.ID).Msg("cannot deliver message")
		result.Err = err
	}
	return result
}
