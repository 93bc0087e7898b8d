package models

import "encoding/json"

// RouteSearchResponse is the response for GET /v1/routes.
type RouteSearchResponse struct {
	From      Point       `json:"from"`
	To        Point       `json:"to"`
	Paths     []RoutePath `json:"paths"`
	FetchedAt Timestamp   `json:"fetchedAt"`
	Stale     bool        `json:"stale"`
}

// RoutePath is one candidate route ready to draw.
type RoutePath struct {
	DistanceMeters float64      `json:"distanceMeters"`
	DurationMillis float64      `json:"durationMillis"`
	Transfers      int          `json:"transfers"`
	Summary        RouteSummary `json:"summary"`

	// GeometryAvailable is false when the backend sent no shape; Geometry is then empty
	// and clients show the summary without a line.
	GeometryAvailable bool    `json:"geometryAvailable"`
	Geometry          []Point `json:"geometry"`
	BBox              *GeoBox `json:"bbox,omitempty"`
	// Viewport is BBox padded so the whole line fits on screen.
	Viewport *GeoBox `json:"viewport,omitempty"`

	// GeoJSON is a LineString Feature of the same geometry.
	GeoJSON json.RawMessage `json:"geojson,omitempty"`

	Instructions []RouteInstruction `json:"instructions,omitempty"`
}

// RouteSummary is the display form of a path's length and duration.
type RouteSummary struct {
	DistanceKm  string `json:"distanceKm"`
	TimeMinutes int    `json:"timeMinutes"`
}

// RouteInstruction is a turn-by-turn step.
type RouteInstruction struct {
	Text           string  `json:"text"`
	StreetName     string  `json:"streetName,omitempty"`
	DistanceMeters float64 `json:"distanceMeters"`
	DurationMillis float64 `json:"durationMillis"`
	Sign           int     `json:"sign"`
	Interval       [2]int  `json:"interval"`
}
