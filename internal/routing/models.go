// Package routing turns backend route candidates into drawable paths: it parses the
// requested endpoints, normalises each candidate's geometry to (lat, lng) points and
// derives summaries, bounds and GeoJSON for the clients.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"

	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/pkg/polyline"
)

// Sentinel errors for routing operations.
var (
	// ErrInvalidPoint indicates a "lat,lng" endpoint could not be parsed or is out of range.
	ErrInvalidPoint = errors.New("invalid point")
	// ErrNoRouteFound indicates the backend returned no candidate paths.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrGeometryDecode indicates a candidate's geometry could not be decoded.
	ErrGeometryDecode = errors.New("could not decode route")
)

// Fetcher asks the backend for candidate routes. *backend.Client implements it.
type Fetcher interface {
	Route(ctx context.Context, token, from, to string) (*backend.RouteResponse, error)
}

// Point is a WGS84 position.
type Point = polyline.Coordinate

// Path is one normalised route candidate.
type Path struct {
	DistanceMeters float64
	DurationMillis float64
	Transfers      int

	// Geometry is ordered (lat, lng). Empty when the backend sent no shape.
	Geometry []Point

	// BBox covers Geometry; when Geometry is empty it is the backend's bbox, if any.
	BBox *orb.Bound

	Instructions []Instruction
}

// GeometryAvailable reports whether the path can be drawn.
func (p *Path) GeometryAvailable() bool {
	return len(p.Geometry) > 0
}

// Instruction is a turn-by-turn step.
type Instruction struct {
	Text           string
	StreetName     string
	DistanceMeters float64
	DurationMillis float64
	Sign           int
	// FirstPoint and LastPoint index into Path.Geometry.
	FirstPoint int
	LastPoint  int
}

// Summary is the display form of a path's length and duration.
type Summary struct {
	// DistanceKm is kilometres with two decimals, e.g. "5.23".
	DistanceKm string
	// TimeMinutes is the duration rounded to whole minutes.
	TimeMinutes int
}

// Result is the outcome of a route search.
type Result struct {
	From      Point
	To        Point
	Paths     []Path
	FetchedAt time.Time
	// Stale is set when the backend failed and a previous result was served.
	Stale bool
}

// Error carries the failing path index alongside a routing sentinel.
type Error struct {
	Code      string // e.g. "GEOMETRY_DECODE"
	Message   string
	PathIndex int
	Err       error // routing sentinel
	Cause     error // underlying failure, e.g. a *polyline.DecodeError
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap exposes both the sentinel and the cause to errors.Is and errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
