package destinations

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/api/models"
	"github.com/rotabus/rotabus/internal/backend"
	"github.com/rotabus/rotabus/internal/routing"
	"github.com/rotabus/rotabus/internal/store"
)

// MaxNameLength bounds a destination name.
const MaxNameLength = 80

// Service provides saved destination operations.
type Service struct {
	backend Backend
	store   store.Store
	logger  zerolog.Logger
}

// NewService creates a new destinations service.
func NewService(b Backend, st store.Store, logger zerolog.Logger) *Service {
	return &Service{
		backend: b,
		store:   st,
		logger:  logger.With().Str("component", "destinations").Logger(),
	}
}

func storeKey(userID string) string {
	return "destinations:" + userID
}

// Get returns the user's cards. Backend preferences override the cached cards when
// the backend answers; a backend failure falls back to the cache, then the defaults.
func (s *Service) Get(ctx context.Context, token, userID string) (*Destinations, error) {
	current := s.load(ctx, userID)

	prefs, err := s.backend.Preferences(ctx, token, userID)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("preferences unavailable, serving cached destinations")
		return &current, nil
	}

	defaults := Defaults()
	changed := false
	if prefs.Home != nil {
		current.Home = merge(prefs.Home, "", defaults.Home)
		changed = true
	}
	if prefs.Work != nil {
		current.Work = merge(prefs.Work, "", defaults.Work)
		changed = true
	}

	if changed {
		s.save(ctx, userID, current)
	}
	return &current, nil
}

// Set saves one slot on the backend and updates the cached card. The name falls back
// to the submitted name, then the slot's default name; time and distance the backend
// does not echo back keep the card's previous values.
func (s *Service) Set(ctx context.Context, token, userID string, kind Kind, req SetRequest) (*SetResult, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}

	name := strings.TrimSpace(req.Name)
	p1, p2, fieldErrors := validate(name, req)
	if len(fieldErrors) > 0 {
		return nil, &ValidationError{Errors: fieldErrors}
	}

	res, err := s.backend.SetDestination(ctx, token, kind, backend.SetDestinationRequest{
		UserID: userID,
		Point1: routing.FormatPoint(p1),
		Point2: routing.FormatPoint(p2),
		Name:   name,
	})
	if err != nil {
		return nil, fmt.Errorf("saving %s destination: %w", kind, err)
	}

	current := s.load(ctx, userID)
	slot := current.For(kind)

	echoed := res.For(kind)
	if echoed == nil {
		echoed = &backend.Destination{}
	}
	prev := *slot
	prev.Name = defaultName(kind)
	*slot = merge(echoed, name, prev)

	s.save(ctx, userID, current)

	message := res.Message
	if message == "" {
		message = DefaultSavedMessage
	}

	return &SetResult{
		Message:      message,
		Kind:         kind,
		Info:         *slot,
		Destinations: current,
	}, nil
}

// RenameHome sets the home card's name without touching the backend.
func (s *Service) RenameHome(ctx context.Context, userID, name string) error {
	current := s.load(ctx, userID)
	current.Home.Name = name
	return store.SetJSON(ctx, s.store, storeKey(userID), current, 0)
}

// Forget drops the cached cards of a user.
func (s *Service) Forget(ctx context.Context, userID string) error {
	return s.store.Delete(ctx, storeKey(userID))
}

func defaultName(kind Kind) string {
	d := Defaults()
	return d.For(kind).Name
}

// merge builds a card from a backend destination. Name falls back to submitted, then
// prev.Name. Time prefers the time string, then "<timeMinutes> min", then prev.Time.
// Distance prefers the distance string, then distanceMeters as "x.xx km", then
// prev.Distance.
func merge(d *backend.Destination, submitted string, prev Info) Info {
	out := prev

	switch {
	case d.Name != "":
		out.Name = d.Name
	case submitted != "":
		out.Name = submitted
	}

	switch {
	case d.Time != "":
		out.Time = d.Time
	case d.TimeMinutes != 0:
		out.Time = strconv.FormatFloat(d.TimeMinutes, 'f', -1, 64) + " min"
	}

	switch {
	case d.Distance != "":
		out.Distance = d.Distance
	case d.DistanceMeters != 0:
		out.Distance = strconv.FormatFloat(d.DistanceMeters/1000, 'f', 2, 64) + " km"
	}

	return out
}

func validate(name string, req SetRequest) (routing.Point, routing.Point, []models.FieldError) {
	var errs []models.FieldError

	if len(name) > MaxNameLength {
		errs = append(errs, models.FieldError{Field: "name", Message: "must be at most 80 characters"})
	}

	p1, err := routing.ParsePoint(req.Point1)
	if err != nil {
		errs = append(errs, models.FieldError{Field: "point1", Message: "must be \"lat,lng\" within range"})
	}
	p2, err := routing.ParsePoint(req.Point2)
	if err != nil {
		errs = append(errs, models.FieldError{Field: "point2", Message: "must be \"lat,lng\" within range"})
	}

	return p1, p2, errs
}

func (s *Service) load(ctx context.Context, userID string) Destinations {
	var d Destinations
	if err := store.GetJSON(ctx, s.store, storeKey(userID), &d); err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("reading cached destinations")
		}
		return Defaults()
	}
	return d
}

func (s *Service) save(ctx context.Context, userID string, d Destinations) {
	if err := store.SetJSON(ctx, s.store, storeKey(userID), d, 0); err != nil {
		s.logger.Error().Err(err).Str("user_id", userID).Msg("caching destinations")
	}
}
