package routing

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/pkg/polyline"
)

// defaultMultiplier is the scale GraphHopper uses unless points_encoded_multiplier says otherwise.
const defaultMultiplier = 1e5

// ParsePoint parses "lat,lng". All whitespace is ignored, so " -23.5 , -46.6 " is valid.
func ParsePoint(s string) (Point, error) {
	compact := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)

	latStr, lngStr, ok := strings.Cut(compact, ",")
	if !ok || latStr == "" || lngStr == "" || strings.Contains(lngStr, ",") {
		return Point{}, fmt.Errorf("%w: %q is not lat,lng", ErrInvalidPoint, s)
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: latitude %q", ErrInvalidPoint, latStr)
	}
	lng, err := strconv.ParseFloat(lngStr, 64)
	if err != nil {
		return Point{}, fmt.Errorf("%w: longitude %q", ErrInvalidPoint, lngStr)
	}

	p := Point{Lat: lat, Lon: lng}
	if err := validatePoint(p); err != nil {
		return Point{}, err
	}
	return p, nil
}

// FormatPoint renders p the way the backend expects it: "lat,lng".
func FormatPoint(p Point) string {
	return strconv.FormatFloat(p.Lat, 'f', -1, 64) + "," + strconv.FormatFloat(p.Lon, 'f', -1, 64)
}

func validatePoint(p Point) error {
	if math.IsNaN(p.Lat) || p.Lat < -90 || p.Lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidPoint, p.Lat)
	}
	if math.IsNaN(p.Lon) || p.Lon < -180 || p.Lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidPoint, p.Lon)
	}
	return nil
}

// Normalize converts every backend candidate into a Path with (lat, lng) geometry.
// A candidate without a shape is kept with empty Geometry; a shape that cannot be
// decoded fails the whole response with ErrGeometryDecode.
func Normalize(resp *backend.RouteResponse) ([]Path, error) {
	if resp == nil || len(resp.Paths) == 0 {
		return nil, ErrNoRouteFound
	}

	paths := make([]Path, 0, len(resp.Paths))
	for i := range resp.Paths {
		raw := &resp.Paths[i]

		geometry, err := decodeGeometry(resp.Info, raw)
		if err != nil {
			return nil, &Error{
				Code:      "GEOMETRY_DECODE",
				Message:   "could not decode route",
				PathIndex: i,
				Err:       ErrGeometryDecode,
				Cause:     err,
			}
		}

		path := Path{
			DistanceMeters: raw.Distance,
			DurationMillis: raw.Time,
			Transfers:      raw.Transfers,
			Geometry:       geometry,
		}

		if len(geometry) > 0 {
			b := Bounds(geometry)
			path.BBox = &b
		} else if len(raw.BBox) == 4 {
			// GraphHopper bbox order is minLon, minLat, maxLon, maxLat.
			path.BBox = &orb.Bound{
				Min: orb.Point{raw.BBox[0], raw.BBox[1]},
				Max: orb.Point{raw.BBox[2], raw.BBox[3]},
			}
		}

		for _, in := range raw.Instructions {
			ins := Instruction{
				Text:           in.Text,
				StreetName:     in.StreetName,
				DistanceMeters: in.Distance,
				DurationMillis: in.Time,
				Sign:           in.Sign,
			}
			if len(in.Interval) == 2 {
				ins.FirstPoint, ins.LastPoint = in.Interval[0], in.Interval[1]
			}
			path.Instructions = append(path.Instructions, ins)
		}

		paths = append(paths, path)
	}
	return paths, nil
}

// decodeGeometry reads a candidate's points. The shape is treated as an encoded
// polyline when the response or path flags points_encoded, or when points is a JSON
// string; otherwise points.coordinates holds [lng, lat] pairs.
func decodeGeometry(info *backend.RouteInfo, p *backend.RoutePath) ([]Point, error) {
	raw := bytes.TrimSpace(p.Points)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}

	isString := raw[0] == '"'
	flagged := (info != nil && isTrue(info.PointsEncoded)) || isTrue(p.PointsEncoded)

	if isString || (flagged && raw[0] != '{') {
		var encoded string
		if err := json.Unmarshal(raw, &encoded); err != nil {
			return nil, fmt.Errorf("points flagged as encoded but not a string: %w", err)
		}
		precision, err := precisionFor(p.PointsEncodedMultiplier)
		if err != nil {
			return nil, err
		}
		return polyline.DecodePrecision(encoded, precision)
	}

	var shape struct {
		Coordinates [][]float64 `json:"coordinates"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return nil, fmt.Errorf("points is neither an encoded string nor a LineString: %w", err)
	}

	geometry := make([]Point, 0, len(shape.Coordinates))
	for i, c := range shape.Coordinates {
		if len(c) < 2 {
			return nil, fmt.Errorf("coordinate %d has %d values, want [lng, lat]", i, len(c))
		}
		geometry = append(geometry, Point{Lat: c[1], Lon: c[0]})
	}
	return geometry, nil
}

// precisionFor converts points_encoded_multiplier (1e5, 1e6, ...) into decimal places.
func precisionFor(multiplier float64) (int, error) {
	if multiplier == 0 {
		multiplier = defaultMultiplier
	}
	if multiplier < 1 {
		return 0, fmt.Errorf("points_encoded_multiplier %v is below 1", multiplier)
	}
	precision := math.Round(math.Log10(multiplier))
	if math.Abs(math.Pow(10, precision)-multiplier) > 1e-6*multiplier {
		return 0, fmt.Errorf("points_encoded_multiplier %v is not a power of ten", multiplier)
	}
	return int(precision), nil
}

func isTrue(b *bool) bool {
	return b != nil && *b
}

// Summarize returns the display distance and duration of a path. When the backend
// reports no distance, the geometry length is used instead.
func Summarize(p *Path) Summary {
	meters := p.DistanceMeters
	if meters <= 0 && len(p.Geometry) > 1 {
		meters = polyline.Length(p.Geometry)
	}
	return Summary{
		DistanceKm:  strconv.FormatFloat(meters/1000, 'f', 2, 64),
		TimeMinutes: int(math.Round(p.DurationMillis / 60000)),
	}
}

// Bounds returns the bounding box of a geometry in orb's (lng, lat) order.
func Bounds(geometry []Point) orb.Bound {
	mp := make(orb.MultiPoint, 0, len(geometry))
	for _, c := range geometry {
		mp = append(mp, orb.Point{c.Lon, c.Lat})
	}
	return mp.Bound()
}

// minViewportPad keeps single-point or very short routes from zooming in to street level.
const minViewportPad = 0.002

// Viewport pads a bound by ratio of its larger side so the whole route fits on screen
// with a margin.
func Viewport(b orb.Bound, ratio float64) orb.Bound {
	span := math.Max(b.Max.X()-b.Min.X(), b.Max.Y()-b.Min.Y())
	return b.Pad(math.Max(span*ratio, minViewportPad))
}

// Feature renders a path as a GeoJSON LineString feature with its summary as properties.
func Feature(p *Path) *geojson.Feature {
	line := make(orb.LineString, 0, len(p.Geometry))
	for _, c := range p.Geometry {
		line = append(line, orb.Point{c.Lon, c.Lat})
	}

	f := geojson.NewFeature(line)
	s := Summarize(p)
	f.Properties["distanceMeters"] = p.DistanceMeters
	f.Properties["durationMillis"] = p.DurationMillis
	f.Properties["distanceKm"] = s.DistanceKm
	f.Properties["timeMinutes"] = s.TimeMinutes
	if p.BBox != nil {
		f.BBox = geojson.NewBBox(*p.BBox)
	}
	return f
}
