package handler

import (
	"fmt"

	"github.com/ftl/cellbroadcast/cb"
)

// Outcome of processing one fragment or one geo-fencing candidate.
type Outcome int

// All outcomes
const (
	Suppressed Outcome = iota
	BroadcastNow
	AwaitGeofence
)

func (o Outcome) String() string {
	switch o {
	case Suppressed:
		return "suppressed"
	case BroadcastNow:
		return "broadcast"
	case AwaitGeofence:
		return "await geofence"
	default:
		return fmt.Sprintf("outcome %d", int(o))
	}
}

// Reason explains the outcome of a decision.
type Reason int

// All reasons
const (
	ReasonMalformedHeader Reason = iota
	ReasonMalformedTrigger
	ReasonMalformedBody
	ReasonIncomplete
	ReasonDuplicate
	ReasonAreaInfo
	ReasonNoCandidates
	ReasonGeofenceScheduled
	ReasonOutsideArea
	ReasonDelivered
	ReasonInternalError
)

var reasonNames = map[Reason]string{
	ReasonMalformedHeader:   "malformed header",
	ReasonMalformedTrigger:  "malformed trigger",
	ReasonMalformedBody:     "malformed body",
	ReasonIncomplete:        "incomplete",
	ReasonDuplicate:         "duplicate",
	ReasonAreaInfo:          "area info",
	ReasonNoCandidates:      "no candidates",
	ReasonGeofenceScheduled: "geofence scheduled",
	ReasonOutsideArea:       "outside area",
	ReasonDelivered:         "delivered",
	ReasonInternalError:     "internal error",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reason %d", int(r))
}

// Decision describes what happened to a fragment or to a message.
type Decision struct {
	Outcome Outcome
	Reason  Reason
	// Message is set if the decision refers to a complete message.
	Message *cb.Message
	// Err is the error that caused the decision, if any.
	Err error
}

func (d Decision) String() string {
	if d.Err != nil {
		return fmt.Sprintf("%s (%s): %v", d.Outcome, d.Reason, d.Err)
	}
	return fmt.Sprintf("%s (%s)", d.Outcome, d.Reason)
}

func suppressed(reason Reason, err error) Decision {
	return Decision{Outcome: Suppressed, Reason: reason, Err: err}
}

func decided(outcome Outcome, reason Reason, message cb.Message) Decision {
	return Decision{Outcome: outcome, Reason: reason, Message: &message}
}
