package cb

import (
	"errors"
	"fmt"
)

// All sizes of the PDU parts according to [CBS] 9.4.1 and 9.4.2
const (
	HeaderLength     = 6
	GSMPDULength     = 88
	PageLength       = 82
	umtsPageLength   = PageLength + 1
	umtsHeaderLength = HeaderLength + 1
	maxPages         = 15
)

var (
	// ErrMalformedHeader indicates a PDU with a truncated header or header fields out of range.
	ErrMalformedHeader = errors.New("malformed cell broadcast header")
)

// Format of the PDU on the radio interface.
type Format byte

// The supported formats
const (
	GSMFormat Format = iota
	UMTSFormat
)

func (f Format) String() string {
	switch f {
	case GSMFormat:
		return "GSM"
	case UMTSFormat:
		return "UMTS"
	default:
		return "unknown"
	}
}

// GeographicalScope enum according to [CBS] 9.4.1.2.1
type GeographicalScope byte

// All defined geographical scopes
const (
	CellWideImmediate GeographicalScope = iota
	PLMNWide
	LocationAreaWide
	CellWide
)

func (s GeographicalScope) String() string {
	switch s {
	case CellWideImmediate:
		return "cell-wide-immediate"
	case PLMNWide:
		return "plmn-wide"
	case LocationAreaWide:
		return "location-area-wide"
	case CellWide:
		return "cell-wide"
	default:
		return "unknown"
	}
}

// MessageIdentifier is the service category of a message according to [CBS] 9.4.1.2.2
type MessageIdentifier uint16

// Relevant message identifiers and ranges according to [CBS] table 9.4.1.2.2
const (
	ETWSFirst               MessageIdentifier = 0x1100
	ETWSLast                MessageIdentifier = 0x1107
	CMASFirst               MessageIdentifier = 0x1112
	CMASLast                MessageIdentifier = 0x112F
	CMASGeoFencingTrigger   MessageIdentifier = 0x1130
	CMASPresidentialLevel   MessageIdentifier = 0x1112
	CMASExtremeImmediate    MessageIdentifier = 0x1113
	CMASRequiredMonthlyTest MessageIdentifier = 0x111C
)

// IsETWS reports whether the identifier belongs to the ETWS range.
func (id MessageIdentifier) IsETWS() bool {
	return id >= ETWSFirst && id <= ETWSLast
}

// IsCMAS reports whether the identifier belongs to the CMAS range. The geo-fencing trigger is not a CMAS alert itself.
func (id MessageIdentifier) IsCMAS() bool {
	return id >= CMASFirst && id <= CMASLast
}

// Kind of a message, derived from the message identifier
type Kind byte

// All kinds of messages that are handled differently
const (
	KindNormal Kind = iota
	KindTrigger
)

func (k Kind) String() string {
	switch k {
	case KindTrigger:
		return "trigger"
	default:
		return "normal"
	}
}

// Kind returns the kind of messages with this identifier.
func (id MessageIdentifier) Kind() Kind {
	if id == CMASGeoFencingTrigger {
		return KindTrigger
	}
	return KindNormal
}

// SerialNumber according to [CBS] 9.4.1.2.1
type SerialNumber uint16

// GeographicalScope is encoded in the two most significant bits.
func (s SerialNumber) GeographicalScope() GeographicalScope {
	return GeographicalScope((s >> 14) & 0x03)
}

// MessageCode is encoded in bits 13-4.
func (s SerialNumber) MessageCode() int {
	return int((s >> 4) & 0x03FF)
}

// UpdateNumber is encoded in bits 3-0.
func (s SerialNumber) UpdateNumber() int {
	return int(s & 0x0F)
}

// Header represents the fixed part of a cell broadcast PDU according to [CBS] 9.4.1.2 and 9.4.2.2
type Header struct {
	Format            Format
	SerialNumber      SerialNumber
	MessageIdentifier MessageIdentifier
	DataCodingScheme  byte
	PageIndex         int
	TotalPages        int

	// UMTSPages is the number of pages carried within one UMTS PDU
	UMTSPages int
}

// GeographicalScope of the message, taken from the serial number.
func (h Header) GeographicalScope() GeographicalScope {
	return h.SerialNumber.GeographicalScope()
}

// Kind of the message, taken from the message identifier.
func (h Header) Kind() Kind {
	return h.MessageIdentifier.Kind()
}

func (h Header) String() string {
	return fmt.Sprintf("%s header id=0x%04x serial=0x%04x scope=%s dcs=0x%02x page=%d/%d",
		h.Format, uint16(h.MessageIdentifier), uint16(h.SerialNumber), h.GeographicalScope(), h.DataCodingScheme, h.PageIndex, h.TotalPages)
}

// ParseHeader parses the header of the given PDU. PDUs up to 88 bytes use the GSM format, longer PDUs the UMTS format.
func ParseHeader(pdu []byte) (Header, error) {
	if len(pdu) < HeaderLength {
		return Header{}, fmt.Errorf("%w: PDU too short: %d", ErrMalformedHeader, len(pdu))
	}
	if len(pdu) <= GSMPDULength {
		return parseGSMHeader(pdu)
	}
	return parseUMTSHeader(pdu)
}

func parseGSMHeader(pdu []byte) (Header, error) {
	var result Header
	result.Format = GSMFormat
	result.SerialNumber = SerialNumber(uint16(pdu[0])<<8 | uint16(pdu[1]))
	result.MessageIdentifier = MessageIdentifier(uint16(pdu[2])<<8 | uint16(pdu[3]))
	result.DataCodingScheme = pdu[4]
	result.PageIndex = int(pdu[5]>>4) & 0x0F
	result.TotalPages = int(pdu[5]) & 0x0F

	if result.PageIndex == 0 || result.TotalPages == 0 || result.PageIndex > result.TotalPages {
		return Header{}, fmt.Errorf("%w: invalid page parameter %d/%d", ErrMalformedHeader, result.PageIndex, result.TotalPages)
	}
	return result, nil
}

// UMTSMessageType of a CBS message according to [CBS] 9.4.2.2.1
const UMTSMessageType = 0x01

func parseUMTSHeader(pdu []byte) (Header, error) {
	if len(pdu) < umtsHeaderLength {
		return Header{}, fmt.Errorf("%w: UMTS PDU too short: %d", ErrMalformedHeader, len(pdu))
	}
	if pdu[0] != UMTSMessageType {
		return Header{}, fmt.Errorf("%w: unsupported UMTS message type 0x%x", ErrMalformedHeader, pdu[0])
	}

	var result Header
	result.Format = UMTSFormat
	result.MessageIdentifier = MessageIdentifier(uint16(pdu[1])<<8 | uint16(pdu[2]))
	result.SerialNumber = SerialNumber(uint16(pdu[3])<<8 | uint16(pdu[4]))
	result.DataCodingScheme = pdu[5]
	result.UMTSPages = int(pdu[6])
	result.PageIndex = 1
	result.TotalPages = 1

	if result.UMTSPages == 0 || result.UMTSPages > maxPages {
		return Header{}, fmt.Errorf("%w: invalid UMTS page count %d", ErrMalformedHeader, result.UMTSPages)
	}
	if len(pdu) < umtsHeaderLength+result.UMTSPages*umtsPageLength {
		return Header{}, fmt.Errorf("%w: UMTS PDU too short for %d pages: %d", ErrMalformedHeader, result.UMTSPages, len(pdu))
	}
	return result, nil
}
