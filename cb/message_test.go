package cb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/geo"
	"github.com/ftl/cellbroadcast/gsm"
)

var testLocation = gsm.NewCellLocation("26201", 1000, 2000)

func TestNewMessage_GSMPages(t *testing.T) {
	header := Header{Format: GSMFormat, SerialNumber: 0x4010, MessageIdentifier: 0x1112, DataCodingScheme: 0x01, PageIndex: 1, TotalPages: 2}
	receivedAt := time.Date(2021, time.April, 11, 10, 15, 0, 0, time.UTC)
	assembly := Assembly{
		Header:   header,
		Location: testLocation,
		Pages: [][]byte{
			gsmPDU(0x4010, 0x1112, 0x01, 1, 2, gsm7Page("Severe weather ")),
			gsmPDU(0x4010, 0x1112, 0x01, 2, 2, gsm7Page("warning")),
		},
	}

	actual, err := NewMessage(assembly, receivedAt)

	require.NoError(t, err)
	assert.Equal(t, "Severe weather warning", actual.Body)
	assert.Equal(t, "en", actual.Language)
	assert.Equal(t, MessageIdentifier(0x1112), actual.ServiceCategory())
	assert.Equal(t, testLocation, actual.Location)
	assert.Equal(t, receivedAt, actual.ReceivedAt)
	assert.False(t, actual.HasGeometry())
	assert.Equal(t, Identity{MessageIdentifier: 0x1112, SerialNumber: 0x4010}, actual.Identity())
}

func TestNewMessage_UMTSWithWarningArea(t *testing.T) {
	wac := concat(
		maxWaitElement(45),
		circleElement(geo.LatLng{Lat: 49, Lng: 8}, 64),
	)
	pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("first "), packGSM7("second")}, wac)
	header, err := ParseHeader(pdu)
	require.NoError(t, err)

	actual, err := NewMessage(Assembly{Header: header, Location: testLocation, Pages: [][]byte{pdu}}, time.Now())

	require.NoError(t, err)
	assert.Equal(t, "first second", actual.Body)
	assert.Equal(t, 45*time.Second, actual.MaximumWaitTime)
	assert.True(t, actual.HasGeometry())
}

func TestNewMessage_UnsupportedEncoding(t *testing.T) {
	header := Header{Format: GSMFormat, MessageIdentifier: 0x0032, DataCodingScheme: 0x60, PageIndex: 1, TotalPages: 1}
	assembly := Assembly{Header: header, Pages: [][]byte{gsmPDU(0, 0x0032, 0x60, 1, 1, []byte{0x01})}}

	_, err := NewMessage(assembly, time.Now())

	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}

func TestNewMessage_NoPages(t *testing.T) {
	_, err := NewMessage(Assembly{}, time.Now())

	assert.ErrorIs(t, err, ErrMalformedBody)
}
