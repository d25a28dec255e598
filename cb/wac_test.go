package cb

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/cellbroadcast/geo"
)

func writeLatLng(w *bitWriter, lat, lng float64) {
	w.write(int(math.Floor((lat+90)/180*float64(1<<22))), 22)
	w.write(int(math.Floor((lng+180)/360*float64(1<<22))), 22)
}

func maxWaitElement(seconds int) []byte {
	w := &bitWriter{}
	w.write(int(WACMaximumWaitTime), 4)
	w.write(3, 10)
	w.align()
	w.write(seconds, 8)
	return w.bytes()
}

func polygonElement(vertices ...geo.LatLng) []byte {
	dataBytes := (len(vertices)*44 + 7) / 8
	w := &bitWriter{}
	w.write(int(WACPolygon), 4)
	w.write(2+dataBytes, 10)
	w.align()
	for _, v := range vertices {
		writeLatLng(w, v.Lat, v.Lng)
	}
	w.align()
	return w.bytes()
}

func circleElement(center geo.LatLng, radiusKm64 int) []byte {
	w := &bitWriter{}
	w.write(int(WACCircle), 4)
	w.write(10, 10)
	w.align()
	writeLatLng(w, center.Lat, center.Lng)
	w.write(radiusKm64, 20)
	return w.bytes()
}

func concat(parts ...[]byte) []byte {
	var result []byte
	for _, part := range parts {
		result = append(result, part...)
	}
	return result
}

func TestParseWarningArea(t *testing.T) {
	vertices := []geo.LatLng{{Lat: 49, Lng: 8}, {Lat: 49, Lng: 9}, {Lat: 50, Lng: 8.5}}
	wac := concat(
		maxWaitElement(30),
		polygonElement(vertices...),
		circleElement(geo.LatLng{Lat: -33.5, Lng: 151.25}, 128),
	)
	pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("alert")}, wac)
	header, err := ParseHeader(pdu)
	require.NoError(t, err)

	actual, err := ParseWarningArea(header, pdu)

	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, actual.MaximumWaitTime)
	require.Len(t, actual.Geometries, 2)

	polygon, ok := actual.Geometries[0].(geo.Polygon)
	require.True(t, ok)
	require.Len(t, polygon.Vertices, 3)
	for i, v := range vertices {
		assert.InDelta(t, v.Lat, polygon.Vertices[i].Lat, 1e-4)
		assert.InDelta(t, v.Lng, polygon.Vertices[i].Lng, 1e-4)
	}

	circle, ok := actual.Geometries[1].(geo.Circle)
	require.True(t, ok)
	assert.InDelta(t, -33.5, circle.Center.Lat, 1e-4)
	assert.InDelta(t, 151.25, circle.Center.Lng, 1e-4)
	assert.InDelta(t, 2000.0, circle.Radius, 1e-6)
}

func TestParseWarningArea_MaximumWaitTimeNotSet(t *testing.T) {
	pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("alert")}, maxWaitElement(MaximumWaitTimeNotSet))
	header, err := ParseHeader(pdu)
	require.NoError(t, err)

	actual, err := ParseWarningArea(header, pdu)

	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), actual.MaximumWaitTime)
	assert.Empty(t, actual.Geometries)
}

func TestParseWarningArea_None(t *testing.T) {
	pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("alert")}, nil)
	header, err := ParseHeader(pdu)
	require.NoError(t, err)

	actual, err := ParseWarningArea(header, pdu)

	require.NoError(t, err)
	assert.Equal(t, WarningArea{}, actual)
}

func TestParseWarningArea_Malformed(t *testing.T) {
	unknownType := &bitWriter{}
	unknownType.write(7, 4)
	unknownType.write(3, 10)
	unknownType.align()
	unknownType.write(0, 8)

	tt := []struct {
		desc string
		wac  []byte
	}{
		{"unknown element type", unknownType.bytes()},
		{"element too long", []byte{0x10, 0xFF, 0x00}},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("alert")}, tc.wac)
			header, err := ParseHeader(pdu)
			require.NoError(t, err)

			_, err = ParseWarningArea(header, pdu)

			assert.ErrorIs(t, err, ErrMalformedBody)
		})
	}
}

func TestParseWarningArea_Truncated(t *testing.T) {
	pdu := umtsPDU(0x3000, 0x1112, 0x01, [][]byte{packGSM7("alert")}, maxWaitElement(30))
	pdu = pdu[:len(pdu)-1]
	header, err := ParseHeader(pdu)
	require.NoError(t, err)

	_, err = ParseWarningArea(header, pdu)

	assert.ErrorIs(t, err, ErrMalformedBody)
}
