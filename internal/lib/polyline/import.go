package polyline

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dpup/routereg/server/internal/lib/geo"
)

// FromGeoJSON extracts route geometry from a GeoJSON document. Accepts a
// FeatureCollection, a single Feature, or a bare geometry; the first
// LineString found wins (MultiLineString contributes its first line).
func FromGeoJSON(data []byte) ([]geo.Point, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		for _, feature := range fc.Features {
			if points, ok := lineStringPoints(feature.Geometry); ok {
				return points, nil
			}
		}
		return nil, &DecodeError{Format: "geojson", Err: fmt.Errorf("no LineString feature in collection")}
	}

	if feature, err := geojson.UnmarshalFeature(data); err == nil {
		if points, ok := lineStringPoints(feature.Geometry); ok {
			return points, nil
		}
		return nil, &DecodeError{Format: "geojson", Err: fmt.Errorf("feature geometry is not a LineString")}
	}

	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, &DecodeError{Format: "geojson", Err: err}
	}
	if points, ok := lineStringPoints(geom.Geometry()); ok {
		return points, nil
	}
	return nil, &DecodeError{Format: "geojson", Err: fmt.Errorf("geometry is not a LineString")}
}

// lineStringPoints pulls a point sequence out of LineString-like geometry
func lineStringPoints(g orb.Geometry) ([]geo.Point, bool) {
	switch ls := g.(type) {
	case orb.LineString:
		return geo.FromLineString(ls), true
	case orb.MultiLineString:
		if len(ls) > 0 {
			return geo.FromLineString(ls[0]), true
		}
	}
	return nil, false
}

// FromKML extracts route geometry from a KML document. The first LineString
// placemark wins. KML coordinates are whitespace-separated
// "lon,lat[,altitude]" tuples.
func FromKML(data []byte) ([]geo.Point, error) {
	decoder := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}

		start, ok := token.(xml.StartElement)
		if !ok || start.Name.Local != "LineString" {
			continue
		}

		var ls struct {
			Coordinates string `xml:"coordinates"`
		}
		if err := decoder.DecodeElement(&ls, &start); err != nil {
			return nil, &DecodeError{Format: "kml", Err: err}
		}

		points, err := parseKMLCoordinates(ls.Coordinates)
		if err != nil {
			return nil, err
		}
		if len(points) > 0 {
			return points, nil
		}
	}

	return nil, &DecodeError{Format: "kml", Err: fmt.Errorf("no LineString coordinates found")}
}

// parseKMLCoordinates parses the text content of a KML <coordinates> element
func parseKMLCoordinates(text string) ([]geo.Point, error) {
	var points []geo.Point
	for _, tuple := range strings.Fields(text) {
		parts := strings.Split(tuple, ",")
		if len(parts) < 2 {
			return nil, &DecodeError{Format: "kml", Err: fmt.Errorf("malformed coordinate tuple %q", tuple)}
		}

		lon, err := strconv.ParseFloat(parts[0], 64)
		if err != nil {
			return nil, &DecodeError{Format: "kml", Err: err}
		}
		lat, err := strconv.ParseFloat(parts[1], 64)
		if err != nil {
			return nil, &DecodeError{Format: "kml", Err: err}
		}

		p := geo.Point{Latitude: lat, Longitude: lon}
		if !geo.IsValid(p) {
			return nil, &DecodeError{Format: "kml", Err: fmt.Errorf("coordinates out of range: %s", tuple)}
		}
		points = append(points, p)
	}
	return points, nil
}
