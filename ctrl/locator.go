package ctrl

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
)

// DefaultCellLocationTTL defines how long a queried cell location is reused.
const DefaultCellLocationTTL = 10 * time.Second

// CellLocator provides the cell the modem is currently registered to. The location is cached and updated by
// unsolicited +CREG result codes.
type CellLocator struct {
	requester gsm.Requester
	ttl       time.Duration
	now       func() time.Time
	log       zerolog.Logger

	lock      sync.Mutex
	location  gsm.CellLocation
	updatedAt time.Time
}

func NewCellLocator(requester gsm.Requester, ttl time.Duration, log zerolog.Logger) *CellLocator {
	if ttl <= 0 {
		ttl = DefaultCellLocationTTL
	}
	return &CellLocator{
		requester: requester,
		ttl:       ttl,
		now:       time.Now,
		log:       log,
		location:  gsm.UnknownLocation(),
	}
}

// CellLocation returns the current cell. If the modem is not registered, the location is unknown.
func (l *CellLocator) CellLocation(ctx context.Context) (gsm.CellLocation, error) {
	if location, ok := l.cached(); ok {
		return location, nil
	}

	registration, err := RequestRegistration(ctx, l.requester)
	if err != nil {
		return gsm.UnknownLocation(), fmt.Errorf("cannot read registration: %w", err)
	}
	if !registration.Status.Registered() {
		l.update(gsm.UnknownLocation())
		return gsm.UnknownLocation(), nil
	}
	plmn, err := RequestOperator(ctx, l.requester)
	if err != nil {
		return gsm.UnknownLocation(), fmt.Errorf("cannot read operator: %w", err)
	}

	result := gsm.NewCellLocation(plmn, registration.LAC, registration.CID)
	l.update(result)
	return result, nil
}

// HandleRegistrationIndication updates the cached cell with an unsolicited +CREG result code. The PLMN is kept,
// the next query after the cache expired reads it again.
func (l *CellLocator) HandleRegistrationIndication(lines []string) {
	if len(lines) == 0 {
		return
	}
	registration, err := ParseRegistration(lines[0])
	if err != nil {
		l.log.Debug().Err(err).Msg("invalid registration indication")
		return
	}

	l.lock.Lock()
	defer l.lock.Unlock()
	if !registration.Status.Registered() {
		l.location = gsm.UnknownLocation()
	} else {
		l.location = gsm.NewCellLocation(l.location.PLMN, registration.LAC, registration.CID)
	}
	l.updatedAt = l.now()
	l.log.Debug().Stringer("status", registration.Status).Stringer("location", l.location).Msg("registration changed")
}

func (l *CellLocator) cached() (gsm.CellLocation, bool) {
	l.lock.Lock()
	defer l.lock.Unlock()
	if l.updatedAt.IsZero() || l.now().Sub(l.updatedAt) >= l.ttl {
		return gsm.CellLocation{}, false
	}
	return l.location, true
}

func (l *CellLocator) update(location gsm.CellLocation) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.location = location
	l.updatedAt = l.now()
}

// DefaultGPSPollInterval is the time between two position requests while waiting for a fix.
const DefaultGPSPollInterval = time.Second

// GPSLocator requests location fixes from the modem's GPS receiver.
type GPSLocator struct {
	requester    gsm.Requester
	pollInterval time.Duration
	log          zerolog.Logger
}

func NewGPSLocator(requester gsm.Requester, pollInterval time.Duration, log zerolog.Logger) *GPSLocator {
	if pollInterval <= 0 {
		pollInterval = DefaultGPSPollInterval
	}
	return &GPSLocator{
		requester:    requester,
		pollInterval: pollInterval,
		log:          log,
	}
}

// RequestFix polls the GPS receiver until it reports a valid fix, maxWait elapsed, or ctx is done. The returned
// channel yields the fix and is closed afterwards, it is closed without a fix if none was available in time.
func (l *GPSLocator) RequestFix(ctx context.Context, maxWait time.Duration) <-chan geo.Fix {
	result := make(chan geo.Fix, 1)
	go func() {
		defer close(result)
		ctx, cancel := context.WithTimeout(ctx, maxWait)
		defer cancel()

		ticker := time.NewTicker(l.pollInterval)
		defer ticker.Stop()
		for {
			fix, err := RequestGPSPosition(ctx, l.requester)
			if err != nil {
				l.log.Debug().Err(err).Msg("cannot read GPS position")
			} else if fix.Valid {
				result <- fix
				return
			}

			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return result
}
