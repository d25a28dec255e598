package handler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/store"
)

var errStoreDown = errors.New("store down")

type fakeStore struct {
	mu      sync.Mutex
	records []store.Record
	failing bool
}

func (s *fakeStore) Insert(_ context.Context, slot int, message cb.Message, broadcast bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return "", errStoreDown
	}
	id := fmt.Sprintf("record-%d", len(s.records)+1)
	s.records = append(s.records, store.Record{ID: id, Slot: slot, Message: message, Broadcast: broadcast})
	return id, nil
}

func (s *fakeStore) MarkBroadcast(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return errStoreDown
	}
	for i := range s.records {
		if s.records[i].ID == id {
			s.records[i].Broadcast = true
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *fakeStore) FindPending(_ context.Context, identity cb.Identity, since time.Time) ([]store.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return nil, errStoreDown
	}
	var result []store.Record
	for _, record := range s.records {
		if record.Message.Identity() == identity && !record.Broadcast && record.Message.ReceivedAt.After(since) {
			result = append(result, record)
		}
	}
	return result, nil
}

func (s *fakeStore) HasReceived(_ context.Context, query store.DuplicateQuery) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failing {
		return false, errStoreDown
	}
	for _, record := range s.records {
		if record.Message.Identity() == query.Identity && record.Message.Location == query.Location && record.Message.ReceivedAt.After(query.Since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) broadcastState(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.records {
		if record.ID == id {
			return record.Broadcast
		}
	}
	return false
}

func (s *fakeStore) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

type fakeLocator struct {
	mu       sync.Mutex
	fix      geo.Fix
	silent   bool
	maxWaits []time.Duration
}

func (l *fakeLocator) RequestFix(_ context.Context, maxWait time.Duration) <-chan geo.Fix {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.maxWaits = append(l.maxWaits, maxWait)
	result := make(chan geo.Fix, 1)
	if l.silent {
		return result
	}
	if l.fix.Valid {
		result <- l.fix
	}
	close(result)
	return result
}

func (l *fakeLocator) requests() []time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]time.Duration{}, l.maxWaits...)
}

type delivery struct {
	slot int
	body string
}

type fakeDeliverer struct {
	mu         sync.Mutex
	deliveries []delivery
	panicOn    string
}

func (d *fakeDeliverer) Deliver(_ context.Context, slot int, message cb.Message) error {
	if d.panicOn != "" && message.Body == d.panicOn {
		panic("delivery exploded")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deliveries = append(d.deliveries, delivery{slot: slot, body: message.Body})
	return nil
}

func (d *fakeDeliverer) bodies() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	result := make([]string, 0, len(d.deliveries))
	for _, delivery := range d.deliveries {
		result = append(result, delivery.body)
	}
	return result
}

type notification struct {
	slot     int
	receiver string
	text     string
}

type fakeNotifier struct {
	mu            sync.Mutex
	notifications []notification
}

func (n *fakeNotifier) NotifyAreaInfo(slot int, receiver string, text string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notifications = append(n.notifications, notification{slot: slot, receiver: receiver, text: text})
}

type fakeCellLocator struct {
	mu       sync.Mutex
	location gsm.CellLocation
	err      error
}

func (l *fakeCellLocator) CellLocation(context.Context) (gsm.CellLocation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.location, l.err
}

func (l *fakeCellLocator) moveTo(location gsm.CellLocation) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.location = location
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2021, time.April, 11, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type observedDecision struct {
	slot     int
	decision Decision
}

type testSetup struct {
	store     *fakeStore
	locator   *fakeLocator
	deliverer *fakeDeliverer
	notifier  *fakeNotifier
	cell      *fakeCellLocator
	clock     *testClock
	settings  *StaticSettings
	service   *Service

	mu       sync.Mutex
	observed []observedDecision
}

func newTestSetup() *testSetup {
	result := &testSetup{
		store:     &fakeStore{},
		locator:   &fakeLocator{},
		deliverer: &fakeDeliverer{},
		notifier:  &fakeNotifier{},
		cell:      &fakeCellLocator{location: gsm.NewCellLocation("26201", 1000, 2000)},
		clock:     newTestClock(),
		settings: &StaticSettings{
			Channels:        map[int][]cb.MessageIdentifier{0: {50}},
			Receivers:       []string{"status-bar", "settings"},
			DefaultWaitTime: 20 * time.Millisecond,
		},
	}
	result.service = NewService([]int{0, 1}, Dependencies{
		Store:        result.store,
		Locator:      result.locator,
		Deliverer:    result.deliverer,
		Notifier:     result.notifier,
		Settings:     result.settings,
		CellLocators: map[int]CellLocator{0: result.cell, 1: result.cell},
		Observer:     result.observe,
		Now:          result.clock.Now,
		Log:          zerolog.Nop(),
	})
	return result
}

func (s *testSetup) observe(slot int, decision Decision) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observed = append(s.observed, observedDecision{slot: slot, decision: decision})
}

func (s *testSetup) observedDecisions() []observedDecision {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]observedDecision{}, s.observed...)
}

func (s *testSetup) handler(slot int) *Handler {
	return s.service.handlers[slot]
}

func (s *testSetup) process(slot int, pdu []byte) Decision {
	return s.handler(slot).Process(context.Background(), pdu)
}

// pendingMessage stores a message that waits for a geo-fencing trigger.
func (s *testSetup) pendingMessage(id cb.MessageIdentifier, serial cb.SerialNumber, body string, maxWait time.Duration, geometries ...geo.Geometry) string {
	recordID, err := s.store.Insert(context.Background(), 0, cb.Message{
		Header:          cb.Header{Format: cb.GSMFormat, MessageIdentifier: id, SerialNumber: serial, PageIndex: 1, TotalPages: 1},
		Location:        s.cell.location,
		ReceivedAt:      s.clock.Now().Add(-time.Minute),
		Body:            body,
		Geometries:      geometries,
		MaximumWaitTime: maxWait,
	}, false)
	if err != nil {
		panic(err)
	}
	return recordID
}
