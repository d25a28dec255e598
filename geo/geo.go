/*
Package geo provides the geometries used for geo-fencing of cell broadcast messages: polygons and circles
described by warning area coordinates according to ATIS-0700041, and the location fixes they are tested against.
*/
package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

const earthRadiusMeters = 6371000.0

// LatLng is a position in decimal degrees.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p LatLng) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.Lat, p.Lng)
}

// DistanceTo returns the great circle distance in meters.
func (p LatLng) DistanceTo(other LatLng) float64 {
	lat1 := toRadians(p.Lat)
	lat2 := toRadians(other.Lat)
	dLat := lat2 - lat1
	dLng := toRadians(other.Lng - p.Lng)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(a)))
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}

// Fix is the result of a location request. If Valid is false, no location was available.
type Fix struct {
	Position LatLng
	Valid    bool
}

// NoFix indicates that the location is not available.
var NoFix = Fix{}

// FixAt returns a valid fix at the given position.
func FixAt(lat, lng float64) Fix {
	return Fix{Position: LatLng{Lat: lat, Lng: lng}, Valid: true}
}

// Geometry is an area that may contain a position.
type Geometry interface {
	Contains(LatLng) bool
}

// Polygon is a closed area described by its vertices. The last vertex connects to the first.
type Polygon struct {
	Vertices []LatLng
}

// Contains uses the even-odd rule on the plane of latitude and longitude. Longitudes are normalized
// relative to the first vertex, so polygons crossing the antimeridian work as expected.
func (p Polygon) Contains(point LatLng) bool {
	if len(p.Vertices) < 3 {
		return false
	}
	reference := p.Vertices[0].Lng
	x := normalizeLng(point.Lng, reference)
	y := point.Lat

	inside := false
	j := len(p.Vertices) - 1
	for i := range p.Vertices {
		xi, yi := normalizeLng(p.Vertices[i].Lng, reference), p.Vertices[i].Lat
		xj, yj := normalizeLng(p.Vertices[j].Lng, reference), p.Vertices[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

func normalizeLng(lng, reference float64) float64 {
	for lng-reference > 180 {
		lng -= 360
	}
	for lng-reference < -180 {
		lng += 360
	}
	return lng
}

// Circle is the area within Radius meters around Center.
type Circle struct {
	Center LatLng
	Radius float64
}

func (c Circle) Contains(point LatLng) bool {
	return c.Center.DistanceTo(point) <= c.Radius
}

// AnyContains reports whether any of the given geometries contains the point.
func AnyContains(geometries []Geometry, point LatLng) bool {
	for _, g := range geometries {
		if g.Contains(point) {
			return true
		}
	}
	return false
}

type geometryJSON struct {
	Type     string   `json:"type"`
	Vertices []LatLng `json:"vertices,omitempty"`
	Center   *LatLng  `json:"center,omitempty"`
	Radius   float64  `json:"radius,omitempty"`
}

// MarshalGeometries encodes the given geometries as JSON.
func MarshalGeometries(geometries []Geometry) ([]byte, error) {
	encoded := make([]geometryJSON, 0, len(geometries))
	for _, g := range geometries {
		switch g := g.(type) {
		case Polygon:
			encoded = append(encoded, geometryJSON{Type: "polygon", Vertices: g.Vertices})
		case Circle:
			center := g.Center
			encoded = append(encoded, geometryJSON{Type: "circle", Center: &center, Radius: g.Radius})
		default:
			return nil, fmt.Errorf("unsupported geometry %T", g)
		}
	}
	return json.Marshal(encoded)
}

// UnmarshalGeometries decodes geometries that were encoded with MarshalGeometries.
func UnmarshalGeometries(data []byte) ([]Geometry, error) {
	if len(data) == 0 {
		return nil, nil
	}
	var encoded []geometryJSON
	if err := json.Unmarshal(data, &encoded); err != nil {
		return nil, err
	}
	if len(encoded) == 0 {
		return nil, nil
	}

	result := make([]Geometry, 0, len(encoded))
	for _, e := range encoded {
		switch e.Type {
		case "polygon":
			result = append(result, Polygon{Vertices: e.Vertices})
		case "circle":
			if e.Center == nil {
				return nil, fmt.Errorf("circle without center")
			}
			result = append(result, Circle{Center: *e.Center, Radius: e.Radius})
		default:
			return nil, fmt.Errorf("unknown geometry type %q", e.Type)
		}
	}
	return result, nil
}
