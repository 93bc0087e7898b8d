// Package destinations manages a user's saved home and work destinations: the
// display card for each slot, merged from backend preferences and cached per user.
package destinations

import (
	"context"
	"errors"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/backend"
)

// Kind selects the home or work slot.
type Kind = backend.DestinationKind

// Destination kinds.
const (
	KindHome = backend.KindHome
	KindWork = backend.KindWork
)

// DefaultSavedMessage is returned when the backend confirms a save without a message.
const DefaultSavedMessage = "Salvo com sucesso"

// ErrUnknownKind is returned for a slot other than home or work.
var ErrUnknownKind = errors.New("destination kind must be home or work")

// Backend is the slice of the backend client this package needs.
type Backend interface {
	Preferences(ctx context.Context, token, userID string) (*backend.Preferences, error)
	SetDestination(ctx context.Context, token string, kind backend.DestinationKind, req backend.SetDestinationRequest) (*backend.DestinationResult, error)
}

// Info is the display card of a saved destination.
type Info struct {
	Name     string `json:"name"`
	Time     string `json:"time,omitempty"`
	Distance string `json:"distance,omitempty"`
}

// Configured reports whether the card has both a time and a distance to show.
// An unconfigured card is rendered as "tap to set".
func (i Info) Configured() bool {
	return i.Time != "" && i.Distance != ""
}

// Destinations holds both slots of a user.
type Destinations struct {
	Home Info `json:"home"`
	Work Info `json:"work"`
}

// For returns a pointer to the slot for kind.
func (d *Destinations) For(kind Kind) *Info {
	if kind == KindWork {
		return &d.Work
	}
	return &d.Home
}

// Defaults returns the cards shown before anything is saved.
func Defaults() Destinations {
	return Destinations{
		Home: Info{Name: "Home", Time: "26 min", Distance: "2.4km"},
		Work: Info{Name: "Work"},
	}
}

// SetRequest is a save request for one slot. Points are "lat,lng".
type SetRequest struct {
	Name   string `json:"name"`
	Point1 string `json:"point1"`
	Point2 string `json:"point2"`
}

// SetResult is the outcome of a save.
type SetResult struct {
	Message      string       `json:"message"`
	Kind         Kind         `json:"kind"`
	Info         Info         `json:"info"`
	Destinations Destinations `json:"destinations"`
}

// ValidationError represents validation errors.
type ValidationError struct {
	Errors []models.FieldError
}

func (e *ValidationError) Error() string {
	return "validation failed"
}
