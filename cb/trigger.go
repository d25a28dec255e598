package cb

import (
	"errors"
	"fmt"
)

// ErrMalformedTrigger indicates a geo-fencing trigger message whose payload cannot be decoded.
var ErrMalformedTrigger = errors.New("malformed geo-fencing trigger")

// TriggerType enum according to [WEA] 5.3
type TriggerType byte

// All defined trigger types
const (
	TriggerActiveAlertKeepArea  TriggerType = 1
	TriggerActiveAlertShareArea TriggerType = 2
	TriggerReserved             TriggerType = 3
)

// Identity of a previously received message: message identifier and serial number.
type Identity struct {
	MessageIdentifier MessageIdentifier
	SerialNumber      SerialNumber
}

func (i Identity) String() string {
	return fmt.Sprintf("0x%04x/0x%04x", uint16(i.MessageIdentifier), uint16(i.SerialNumber))
}

// GeoFencingTrigger lists the messages that are waiting for a geo-fencing decision according to [WEA] 5.3
type GeoFencingTrigger struct {
	Type       TriggerType
	Identities []Identity
}

// ShareBroadcastArea reports whether all referenced messages share one merged broadcast area.
func (t GeoFencingTrigger) ShareBroadcastArea() bool {
	return t.Type == TriggerActiveAlertShareArea
}

func (t GeoFencingTrigger) String() string {
	return fmt.Sprintf("geo-fencing trigger type=%d share=%t identities=%v", t.Type, t.ShareBroadcastArea(), t.Identities)
}

// ParseGeoFencingTrigger parses the payload of a geo-fencing trigger message. The payload follows the header:
// 4 bits trigger type, 7 bits length (in octets, including type and length), padding to the next octet, and then
// pairs of 16 bit message identifier and 16 bit serial number.
func ParseGeoFencingTrigger(header Header, pdu []byte) (GeoFencingTrigger, error) {
	if header.Kind() != KindTrigger {
		return GeoFencingTrigger{}, fmt.Errorf("%w: message identifier 0x%04x is no trigger", ErrMalformedTrigger, uint16(header.MessageIdentifier))
	}

	offset := HeaderLength
	if header.Format == UMTSFormat {
		offset = umtsHeaderLength
	}
	reader := newBitReader(pdu, offset)

	triggerType, err := reader.read(4)
	if err != nil {
		return GeoFencingTrigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	length, err := reader.read(7)
	if err != nil {
		return GeoFencingTrigger{}, fmt.Errorf("%w: %v", ErrMalformedTrigger, err)
	}
	reader.skipToByte()
	if length < 2 {
		return GeoFencingTrigger{}, fmt.Errorf("%w: invalid length %d", ErrMalformedTrigger, length)
	}

	count := (length - 2) * 8 / 32
	result := GeoFencingTrigger{
		Type:       TriggerType(triggerType),
		Identities: make([]Identity, 0, count),
	}
	for i := 0; i < count; i++ {
		messageIdentifier, err := reader.read(16)
		if err != nil {
			return GeoFencingTrigger{}, fmt.Errorf("%w: identity %d: %v", ErrMalformedTrigger, i, err)
		}
		serialNumber, err := reader.read(16)
		if err != nil {
			return GeoFencingTrigger{}, fmt.Errorf("%w: identity %d: %v", ErrMalformedTrigger, i, err)
		}
		result.Identities = append(result.Identities, Identity{
			MessageIdentifier: MessageIdentifier(messageIdentifier),
			SerialNumber:      SerialNumber(serialNumber),
		})
	}

	return result, nil
}
