// Package lines serves live bus positions: it flattens the backend's per-line payload
// into one row per vehicle, filters and paginates the rows, and keeps a shared
// snapshot in the store so every gateway instance sees the same refresh.
package lines

import (
	"context"
	"errors"
	"time"

	"github.com/rotabus/rotabus/internal/backend"
)

// SnapshotKey is the store key holding the latest positions snapshot.
const SnapshotKey = "lines:snapshot"

// Page sizes offered to clients.
const (
	DefaultPageSize = 10
)

// AllowedPageSizes lists the page sizes clients may request.
var AllowedPageSizes = []int{5, 10, 20}

// ErrNoSnapshot is returned when no snapshot is stored and the backend cannot be reached.
var ErrNoSnapshot = errors.New("no line positions available")

// Fetcher reads live positions from the backend. *backend.Client implements it.
type Fetcher interface {
	LinePositions(ctx context.Context, token string) (*backend.PositionsResponse, error)
}

// Vehicle is one bus on a line.
type Vehicle struct {
	// Destination is the line's lt0 terminal.
	Destination string `json:"lt0"`
	// Origin is the line's lt1 terminal.
	Origin string `json:"lt1"`
	// CapturedAt is the backend's ta timestamp, passed through as sent.
	CapturedAt string `json:"ta,omitempty"`
	// Prefix is the vehicle number.
	Prefix string `json:"vehicle"`

	LineCode   string   `json:"lineCode,omitempty"`
	Accessible bool     `json:"accessible,omitempty"`
	Lat        *float64 `json:"lat,omitempty"`
	Lng        *float64 `json:"lng,omitempty"`
}

// Snapshot is a flattened positions payload as stored and served.
type Snapshot struct {
	Hour      string    `json:"hour,omitempty"`
	Vehicles  []Vehicle `json:"vehicles"`
	FetchedAt time.Time `json:"fetchedAt"`

	// Stale is set when the backend failed and an older snapshot was served.
	Stale bool `json:"-"`
}

// Page is one page of filtered vehicles.
type Page struct {
	Items      []Vehicle `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
	TotalItems int       `json:"totalItems"`
}
