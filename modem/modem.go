/*
Package modem connects a GSM modem on one slot to the message handling: it configures the cell broadcast
reception, forwards every received PDU, and keeps track of the modem's cell and position.
*/
package modem

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/cb"
	"github.com/ftl/cellbroadcast/com"
	"github.com/ftl/cellbroadcast/ctrl"
	"github.com/ftl/cellbroadcast/gsm"
	"github.com/ftl/cellbroadcast/handler"
)

// Sink receives the PDUs of all incoming cell broadcast messages.
type Sink interface {
	SubmitFragment(ctx context.Context, slot int, pdu []byte) (handler.Decision, error)
}

type Options struct {
	// AreaInfoChannels are received in addition to the public warning messages.
	AreaInfoChannels []cb.MessageIdentifier
	CellTTL          time.Duration
	GPSPollInterval  time.Duration
}

// Modem on one slot.
type Modem struct {
	slot int
	com  *com.COM
	cell *ctrl.CellLocator
	gps  *ctrl.GPSLocator
	opts Options
	log  zerolog.Logger
}

func New(slot int, c *com.COM, opts Options, log zerolog.Logger) *Modem {
	log = log.With().Int("slot", slot).Logger()
	requester := gsm.RequesterFunc(c.AT)
	return &Modem{
		slot: slot,
		com:  c,
		cell: ctrl.NewCellLocator(requester, opts.CellTTL, log),
		gps:  ctrl.NewGPSLocator(requester, opts.GPSPollInterval, log),
		opts: opts,
		log:  log,
	}
}

func (m *Modem) Slot() int {
	return m.slot
}

// CellLocator provides the cell the modem is registered to.
func (m *Modem) CellLocator() *ctrl.CellLocator {
	return m.cell
}

// GPSLocator provides location fixes of the modem's GPS receiver.
func (m *Modem) GPSLocator() *ctrl.GPSLocator {
	return m.gps
}

// Done is closed when the connection to the modem is lost.
func (m *Modem) Done() <-chan struct{} {
	return m.com.Done()
}

// Start configures the modem and forwards all incoming messages to the sink until ctx is done.
func (m *Modem) Start(ctx context.Context, sink Sink) error {
	err := m.com.Reset(ctx)
	if err != nil {
		return fmt.Errorf("cannot reset modem on slot %d: %w", m.slot, err)
	}

	m.com.AddIndication(ctrl.CBMIndicationPrefix, 1, func(lines []string) {
		m.receive(ctx, sink, lines)
	})
	m.com.AddIndication(ctrl.CREGIndicationPrefix, 0, m.cell.HandleRegistrationIndication)

	err = ctrl.EnableCellBroadcast(ctx, gsm.RequesterFunc(m.com.AT), m.ranges(m.opts.AreaInfoChannels)...)
	if err != nil {
		return fmt.Errorf("cannot enable cell broadcast on slot %d: %w", m.slot, err)
	}

	location, err := m.cell.CellLocation(ctx)
	if err != nil {
		m.log.Warn().Err(err).Msg("cannot read cell location")
	} else {
		m.log.Info().Stringer("location", location).Msg("cell broadcast reception enabled")
	}
	return nil
}

// SelectChannels changes the received area info channels.
func (m *Modem) SelectChannels(ctx context.Context, areaInfoChannels []cb.MessageIdentifier) error {
	request := ctrl.SelectMessageIdentifiers(ctrl.AcceptMessages, m.ranges(areaInfoChannels)...)
	_, err := m.com.AT(ctx, request)
	if err != nil {
		return fmt.Errorf("cannot select channels on slot %d: %w", m.slot, err)
	}
	m.opts.AreaInfoChannels = areaInfoChannels
	return nil
}

func (m *Modem) ranges(areaInfoChannels []cb.MessageIdentifier) []ctrl.IdentifierRange {
	result := slices.Clone(ctrl.WarningRanges)
	for _, channel := range areaInfoChannels {
		result = append(result, ctrl.IdentifierRange{First: channel})
	}
	return result
}

func (m *Modem) receive(ctx context.Context, sink Sink, lines []string) {
	pdu, err := ctrl.ParseCBMIndication(lines)
	if err != nil {
		m.log.Warn().Err(err).Strs("lines", lines).Msg("invalid cell broadcast indication")
		return
	}

	decision, err := sink.SubmitFragment(ctx, m.slot, pdu)
	if err != nil {
		m.log.Error().Err(err).Str("pdu", gsm.BinaryToHex(pdu)).Msg("cannot handle cell broadcast")
		return
	}

	var event *zerolog.Event
	if decision.Outcome == handler.Suppressed && decision.Reason != handler.ReasonIncomplete {
		event = m.log.Info()
	} else {
		event = m.log.Debug()
	}
	event.Stringer("outcome", decision.Outcome).Stringer("reason", decision.Reason).Err(decision.Err).Msg("cell broadcast received")
}
