// Package polyline converts route geometry between wire formats and point
// sequences. The primary format is the Google encoded polyline (signed-delta,
// base-32 variable length, 1e-5 degree precision); routes sourced from import
// flows may instead arrive as JSON coordinate arrays, GeoJSON documents or
// KML, and the flexible decode path probes for those before falling back to
// the encoded form.
package polyline

import (
	"encoding/json"
	"fmt"
	"strings"

	gpolyline "github.com/twpayne/go-polyline"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// DecodeError indicates route geometry that could not be converted to a
// usable coordinate sequence
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode %s geometry: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode converts a point sequence to an encoded polyline string at 1e-5
// degree precision
func Encode(points []geo.Point) string {
	coords := make([][]float64, len(points))
	for i, p := range points {
		coords[i] = []float64{p.Latitude, p.Longitude}
	}
	return string(gpolyline.EncodeCoords(coords))
}

// Decode converts an encoded polyline string to a point sequence. Malformed
// or empty input yields an empty sequence and a DecodeError, never a panic.
func Decode(encoded string) ([]geo.Point, error) {
	if encoded == "" {
		return nil, &DecodeError{Format: "polyline", Err: fmt.Errorf("empty geometry string")}
	}

	coords, _, err := gpolyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return nil, &DecodeError{Format: "polyline", Err: err}
	}

	points := make([]geo.Point, 0, len(coords))
	for _, coord := range coords {
		p := geo.Point{Latitude: coord[0], Longitude: coord[1]}
		if !geo.IsValid(p) {
			return nil, &DecodeError{Format: "polyline", Err: fmt.Errorf("decoded coordinates out of range: %v", coord)}
		}
		points = append(points, p)
	}
	return points, nil
}

// DecodeFlexible handles both encoded polylines and raw coordinate arrays
// stored as JSON strings ([lon, lat] pairs, the storage format used by import
// flows). Callers do not need to know which format they hold; the probe is a
// leading '[' after whitespace.
func DecodeFlexible(value string) ([]geo.Point, error) {
	if strings.HasPrefix(strings.TrimSpace(value), "[") {
		return decodeJSONCoords(value)
	}
	return Decode(value)
}

// decodeJSONCoords parses a JSON array of [lon, lat] coordinate pairs
func decodeJSONCoords(value string) ([]geo.Point, error) {
	var pairs [][]float64
	if err := json.Unmarshal([]byte(value), &pairs); err != nil {
		return nil, &DecodeError{Format: "coordinate array", Err: err}
	}

	points := make([]geo.Point, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			return nil, &DecodeError{Format: "coordinate array", Err: fmt.Errorf("coordinate pair has %d elements", len(pair))}
		}
		p := geo.Point{Latitude: pair[1], Longitude: pair[0]}
		if !geo.IsValid(p) {
			return nil, &DecodeError{Format: "coordinate array", Err: fmt.Errorf("coordinates out of range: %v", pair)}
		}
		points = append(points, p)
	}
	return points, nil
}
