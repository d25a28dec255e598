package cb

import (
	"fmt"
	"time"

	"github.com/ftl/cellbroadcast/geo"
)

// WACElementType enum according to [WEA] 5.2
type WACElementType byte

// All defined element types of the warning area coordinates
const (
	WACMaximumWaitTime WACElementType = 1
	WACPolygon         WACElementType = 2
	WACCircle          WACElementType = 3
)

// MaximumWaitTimeNotSet is the encoded value of a maximum wait time that was not given.
const MaximumWaitTimeNotSet = 255

// WarningArea is the decoded content of the warning area coordinates.
type WarningArea struct {
	Geometries []geo.Geometry
	// MaximumWaitTime to get a location fix, zero if not set.
	MaximumWaitTime time.Duration
}

// wacOffset returns the offset of the warning area coordinates within a UMTS PDU, they follow the last page.
func wacOffset(header Header) int {
	return umtsHeaderLength + header.UMTSPages*umtsPageLength
}

// ParseWarningArea parses the warning area coordinates from a UMTS PDU. It returns an empty WarningArea if the PDU has
// no warning area coordinates.
func ParseWarningArea(header Header, pdu []byte) (WarningArea, error) {
	if header.Format != UMTSFormat {
		return WarningArea{}, nil
	}
	offset := wacOffset(header)
	if len(pdu) < offset+2 {
		return WarningArea{}, nil
	}

	// the length is little-endian
	wacLength := int(pdu[offset+1])<<8 | int(pdu[offset])
	offset += 2
	if len(pdu) < offset+wacLength {
		return WarningArea{}, fmt.Errorf("%w: warning area coordinates truncated: %d < %d", ErrMalformedBody, len(pdu)-offset, wacLength)
	}

	var result WarningArea
	end := offset + wacLength
	for offset < end {
		reader := newBitReader(pdu[:end], offset)
		elementType, err := reader.read(4)
		if err != nil {
			return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		elementLength, err := reader.read(10)
		if err != nil {
			return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}
		if elementLength < 2 || offset+elementLength > end {
			return WarningArea{}, fmt.Errorf("%w: invalid WAC element length %d", ErrMalformedBody, elementLength)
		}
		reader.skipToByte()

		switch WACElementType(elementType) {
		case WACMaximumWaitTime:
			seconds, err := reader.read(8)
			if err != nil {
				return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
			}
			if seconds != MaximumWaitTimeNotSet {
				result.MaximumWaitTime = time.Duration(seconds) * time.Second
			}
		case WACPolygon:
			count := (elementLength - 2) * 8 / 44
			vertices := make([]geo.LatLng, 0, count)
			for i := 0; i < count; i++ {
				vertex, err := readLatLng(reader)
				if err != nil {
					return WarningArea{}, err
				}
				vertices = append(vertices, vertex)
			}
			result.Geometries = append(result.Geometries, geo.Polygon{Vertices: vertices})
		case WACCircle:
			center, err := readLatLng(reader)
			if err != nil {
				return WarningArea{}, err
			}
			radius, err := reader.read(20)
			if err != nil {
				return WarningArea{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
			}
			// the radius is given in 1/64 km
			result.Geometries = append(result.Geometries, geo.Circle{Center: center, Radius: float64(radius) / 64.0 * 1000.0})
		default:
			return WarningArea{}, fmt.Errorf("%w: unsupported WAC element type %d", ErrMalformedBody, elementType)
		}

		offset += elementLength
	}

	return result, nil
}

// readLatLng reads a coordinate according to [WEA] 5.2.4: 22 bits latitude and 22 bits longitude,
// wacLatitude = floor(((latitude + 90) / 180) * 2^22), wacLongitude = floor(((longitude + 180) / 360) * 2^22)
func readLatLng(reader *bitReader) (geo.LatLng, error) {
	lat, err := reader.read(22)
	if err != nil {
		return geo.LatLng{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	lng, err := reader.read(22)
	if err != nil {
		return geo.LatLng{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
	}
	return geo.LatLng{
		Lat: float64(lat)*180.0/float64(1<<22) - 90.0,
		Lng: float64(lng)*360.0/float64(1<<22) - 180.0,
	}, nil
}
