package cb

import (
	"sort"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/gsm"
)

// LocationForScope returns the part of the current location that identifies the validity area of a message with the given scope.
func LocationForScope(scope GeographicalScope, current gsm.CellLocation) gsm.CellLocation {
	switch scope {
	case LocationAreaWide:
		return gsm.NewCellLocation(current.PLMN, current.LAC, gsm.Unknown)
	case CellWide, CellWideImmediate:
		return gsm.NewCellLocation(current.PLMN, current.LAC, current.CID)
	default:
		return gsm.NewCellLocation(current.PLMN, gsm.Unknown, gsm.Unknown)
	}
}

// ConcatenationKey correlates the pages of one message. Two pages belong together if they have the same
// serial number (which includes the geographical scope and update number), and both pages belong to the
// same location.
type ConcatenationKey struct {
	SerialNumber SerialNumber
	Location     gsm.CellLocation
}

// Assembly contains all pages of a message, ordered by page index.
type Assembly struct {
	Header   Header
	Location gsm.CellLocation
	Pages    [][]byte
}

type pendingAssembly struct {
	header Header
	pages  [][]byte
}

func (p *pendingAssembly) complete() bool {
	for _, page := range p.pages {
		if page == nil {
			return false
		}
	}
	return true
}

// Table holds incomplete multi-page messages waiting for assembly. A Table is not safe for concurrent use.
type Table struct {
	log     zerolog.Logger
	pending map[ConcatenationKey]*pendingAssembly
}

func NewTable() *Table {
	return &Table{
		log:     zerolog.Nop(),
		pending: make(map[ConcatenationKey]*pendingAssembly, 4),
	}
}

func (t *Table) WithLogger(log zerolog.Logger) *Table {
	t.log = log
	return t
}

// Submit adds the given page to the table. If the page completes its message, Submit returns the assembly of
// all pages and true. Single page messages are complete immediately.
func (t *Table) Submit(header Header, location gsm.CellLocation, pdu []byte) (Assembly, bool) {
	if header.TotalPages == 1 {
		return Assembly{
			Header:   header,
			Location: location,
			Pages:    [][]byte{pdu},
		}, true
	}

	key := ConcatenationKey{SerialNumber: header.SerialNumber, Location: location}
	pending, ok := t.pending[key]
	if ok && len(pending.pages) != header.TotalPages {
		t.log.Warn().
			Stringer("location", location).
			Uint16("serial", uint16(header.SerialNumber)).
			Int("pending_pages", len(pending.pages)).
			Int("total_pages", header.TotalPages).
			Msg("page count changed, restarting assembly")
		ok = false
	}
	if !ok {
		pending = &pendingAssembly{
			header: header,
			pages:  make([][]byte, header.TotalPages),
		}
		t.pending[key] = pending
	}

	// page index is one-based
	pending.pages[header.PageIndex-1] = pdu
	if header.PageIndex == 1 {
		pending.header = header
	}

	if !pending.complete() {
		t.log.Debug().
			Uint16("serial", uint16(header.SerialNumber)).
			Int("page", header.PageIndex).
			Int("total_pages", header.TotalPages).
			Msg("still missing pages")
		return Assembly{}, false
	}

	delete(t.pending, key)
	return Assembly{
		Header:   pending.header,
		Location: location,
		Pages:    pending.pages,
	}, true
}

// EvictStale removes all incomplete messages that are not valid for the given current location. This prevents the
// table from growing indefinitely, containing incomplete messages that will never be assembled.
func (t *Table) EvictStale(current gsm.CellLocation) int {
	evicted := 0
	for key := range t.pending {
		if key.Location.Matches(current) {
			continue
		}
		delete(t.pending, key)
		evicted++
	}
	if evicted > 0 {
		t.log.Debug().Int("evicted", evicted).Stringer("location", current).Msg("evicted incomplete messages out of scope")
	}
	return evicted
}

// Len returns the number of incomplete messages.
func (t *Table) Len() int {
	return len(t.pending)
}

// Keys returns the keys of all incomplete messages in a stable order.
func (t *Table) Keys() []ConcatenationKey {
	result := make([]ConcatenationKey, 0, len(t.pending))
	for key := range t.pending {
		result = append(result, key)
	}
	sort.Slice(result, func(i, j int) bool {
		a, b := result[i], result[j]
		if a.SerialNumber != b.SerialNumber {
			return a.SerialNumber < b.SerialNumber
		}
		if a.Location.PLMN != b.Location.PLMN {
			return a.Location.PLMN < b.Location.PLMN
		}
		if a.Location.LAC != b.Location.LAC {
			return a.Location.LAC < b.Location.LAC
		}
		return a.Location.CID < b.Location.CID
	})
	return result
}
