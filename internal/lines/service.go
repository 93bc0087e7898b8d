package lines

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/store"
)

// ServiceConfig holds configuration for the lines service.
type ServiceConfig struct {
	Fetcher Fetcher
	Store   store.Store
	Logger  zerolog.Logger

	// MaxAge is how old a stored snapshot may be before a read refreshes it
	// (default: 90 seconds).
	MaxAge time.Duration

	// SnapshotTTL bounds how long a snapshot is kept for stale serving
	// (default: 1 hour).
	SnapshotTTL time.Duration

	// ServiceToken authenticates refreshes that have no caller token, such as the poller.
	ServiceToken string
}

// Service reads and refreshes the shared positions snapshot.
type Service struct {
	fetcher      Fetcher
	store        store.Store
	logger       zerolog.Logger
	maxAge       time.Duration
	snapshotTTL  time.Duration
	serviceToken string
	now          func() time.Time

	refreshMu sync.Mutex
}

// NewService creates a new lines service.
func NewService(cfg ServiceConfig) *Service {
	maxAge := cfg.MaxAge
	if maxAge == 0 {
		maxAge = 90 * time.Second
	}

	snapshotTTL := cfg.SnapshotTTL
	if snapshotTTL == 0 {
		snapshotTTL = time.Hour
	}

	return &Service{
		fetcher:      cfg.Fetcher,
		store:        cfg.Store,
		logger:       cfg.Logger.With().Str("component", "lines").Logger(),
		maxAge:       maxAge,
		snapshotTTL:  snapshotTTL,
		serviceToken: cfg.ServiceToken,
		now:          time.Now,
	}
}

// Snapshot returns the stored snapshot when it is younger than MaxAge, otherwise
// refreshes it from the backend. If the refresh fails, an older stored snapshot is
// returned with Stale set.
func (s *Service) Snapshot(ctx context.Context, token string) (*Snapshot, error) {
	stored, err := s.stored(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("reading stored positions snapshot")
	}
	if stored != nil && s.now().Sub(stored.FetchedAt) < s.maxAge {
		return stored, nil
	}

	fresh, err := s.Refresh(ctx, token)
	if err == nil {
		return fresh, nil
	}

	if stored != nil {
		s.logger.Warn().
			Err(err).
			Time("fetched_at", stored.FetchedAt).
			Msg("serving stale positions due to backend error")
		stored.Stale = true
		return stored, nil
	}
	return nil, err
}

// Refresh fetches positions from the backend and replaces the stored snapshot.
// An empty token falls back to the configured service token.
func (s *Service) Refresh(ctx context.Context, token string) (*Snapshot, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	if token == "" {
		token = s.serviceToken
	}

	resp, err := s.fetcher.LinePositions(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("fetching line positions: %w", err)
	}

	snap := &Snapshot{
		Hour:      resp.Hour,
		Vehicles:  Flatten(resp),
		FetchedAt: s.now(),
	}

	if err := store.SetJSON(ctx, s.store, SnapshotKey, snap, s.snapshotTTL); err != nil {
		// The caller still gets fresh data; the next read will refetch.
		s.logger.Error().Err(err).Msg("storing positions snapshot")
	}

	s.logger.Debug().
		Int("lines", len(resp.Lines)).
		Int("vehicles", len(snap.Vehicles)).
		Msg("refreshed line positions")

	return snap, nil
}

func (s *Service) stored(ctx context.Context) (*Snapshot, error) {
	var snap Snapshot
	if err := store.GetJSON(ctx, s.store, SnapshotKey, &snap); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &snap, nil
}

// Poller refreshes the snapshot on a fixed interval.
type Poller struct {
	service  *Service
	interval time.Duration
	logger   zerolog.Logger
}

// NewPoller creates a poller. A zero interval defaults to 30 seconds.
func NewPoller(service *Service, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Poller{
		service:  service,
		interval: interval,
		logger:   logger.With().Str("component", "lines-poller").Logger(),
	}
}

// Run refreshes once immediately and then on every tick until ctx is cancelled.
// Refresh failures are logged and do not stop the poller.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Info().Dur("interval", p.interval).Msg("starting positions poller")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.service.Refresh(ctx, ""); err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Msg("positions refresh failed")
		}

		select {
		case <-ctx.Done():
			p.logger.Info().Msg("positions poller stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
