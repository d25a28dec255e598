package cb

import (
	"fmt"
	"strings"
	"time"

	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
)

// Message is a complete cell broadcast message, assembled from all its pages.
type Message struct {
	Header     Header
	Location   gsm.CellLocation
	Pages      [][]byte
	ReceivedAt time.Time

	Language        string
	Body            string
	Geometries      []geo.Geometry
	MaximumWaitTime time.Duration
}

// ServiceCategory of the message is its message identifier.
func (m Message) ServiceCategory() MessageIdentifier {
	return m.Header.MessageIdentifier
}

// HasGeometry reports whether the message defines its own broadcast area.
func (m Message) HasGeometry() bool {
	return len(m.Geometries) > 0
}

// Identity of the message, used to reference it in geo-fencing triggers.
func (m Message) Identity() Identity {
	return Identity{MessageIdentifier: m.Header.MessageIdentifier, SerialNumber: m.Header.SerialNumber}
}

func (m Message) String() string {
	return fmt.Sprintf("Message 0x%04x/0x%04x in %s at %s [%s]:\n%s",
		uint16(m.Header.MessageIdentifier), uint16(m.Header.SerialNumber), m.Location, m.ReceivedAt.Format(time.RFC3339), m.Language, m.Body)
}

// NewMessage decodes the pages of the given assembly into a complete message.
func NewMessage(assembly Assembly, receivedAt time.Time) (Message, error) {
	if len(assembly.Pages) == 0 {
		return Message{}, fmt.Errorf("%w: no pages", ErrMalformedBody)
	}
	dcs, err := ParseDataCodingScheme(assembly.Header.DataCodingScheme)
	if err != nil {
		return Message{}, err
	}

	result := Message{
		Header:     assembly.Header,
		Location:   assembly.Location,
		Pages:      assembly.Pages,
		ReceivedAt: receivedAt,
		Language:   dcs.Language,
	}

	var texts []string
	switch assembly.Header.Format {
	case UMTSFormat:
		texts, result.Language, err = decodeUMTSPages(assembly.Header, dcs, assembly.Pages[0])
		if err != nil {
			return Message{}, err
		}
		area, err := ParseWarningArea(assembly.Header, assembly.Pages[0])
		if err != nil {
			return Message{}, err
		}
		result.Geometries = area.Geometries
		result.MaximumWaitTime = area.MaximumWaitTime
	default:
		texts = make([]string, 0, len(assembly.Pages))
		for i, pdu := range assembly.Pages {
			if len(pdu) < HeaderLength {
				return Message{}, fmt.Errorf("%w: page %d too short: %d", ErrMalformedBody, i+1, len(pdu))
			}
			language, text, err := DecodePageText(dcs, pdu[HeaderLength:])
			if err != nil {
				return Message{}, fmt.Errorf("page %d: %w", i+1, err)
			}
			result.Language = language
			texts = append(texts, text)
		}
	}
	result.Body = strings.Join(texts, "")

	return result, nil
}

func decodeUMTSPages(header Header, dcs DataCodingScheme, pdu []byte) ([]string, string, error) {
	texts := make([]string, 0, header.UMTSPages)
	language := dcs.Language
	for i := 0; i < header.UMTSPages; i++ {
		start := umtsHeaderLength + i*umtsPageLength
		length := int(pdu[start+PageLength])
		if length > PageLength {
			return nil, "", fmt.Errorf("%w: invalid length %d of UMTS page %d", ErrMalformedBody, length, i+1)
		}
		var text string
		var err error
		language, text, err = DecodePageText(dcs, pdu[start:start+length])
		if err != nil {
			return nil, "", fmt.Errorf("page %d: %w", i+1, err)
		}
		texts = append(texts, text)
	}
	return texts, language, nil
}
