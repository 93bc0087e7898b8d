package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// ServiceConfig holds configuration for the routing service.
type ServiceConfig struct {
	// Fetcher asks the backend for routes.
	Fetcher Fetcher

	Logger zerolog.Logger

	// CacheTTL is how long a normalised result is served without asking the backend
	// (default: 5 minutes).
	CacheTTL time.Duration

	// CacheGridSize is the cache cell size in degrees (default: 0.0001, about 11 m).
	// Endpoints within the same cell share cached routes.
	CacheGridSize float64

	// StaleIfErrorTTL allows serving an expired result while the backend is failing
	// (default: 30 minutes).
	StaleIfErrorTTL time.Duration

	// CleanupInterval is how often expired entries are dropped (default: 5 minutes).
	CleanupInterval time.Duration
}

// Service searches routes through the backend with a short-lived cache.
type Service struct {
	fetcher         Fetcher
	logger          zerolog.Logger
	cacheTTL        time.Duration
	cacheGridSize   float64
	staleIfErrorTTL time.Duration
	cleanupInterval time.Duration
	now             func() time.Time

	// group collapses concurrent misses for one cache key into a single backend call.
	group singleflight.Group

	mu          sync.RWMutex
	cache       map[string]*cachedResult
	lastCleanup time.Time
}

type cachedResult struct {
	paths     []Path
	fetchedAt time.Time
	expiresAt time.Time
}

// NewService creates a new routing service.
func NewService(cfg ServiceConfig) *Service {
	cacheTTL := cfg.CacheTTL
	if cacheTTL == 0 {
		cacheTTL = 5 * time.Minute
	}

	cacheGridSize := cfg.CacheGridSize
	if cacheGridSize == 0 {
		cacheGridSize = 0.0001
	}

	staleIfErrorTTL := cfg.StaleIfErrorTTL
	if staleIfErrorTTL == 0 {
		staleIfErrorTTL = 30 * time.Minute
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = 5 * time.Minute
	}

	return &Service{
		fetcher:         cfg.Fetcher,
		logger:          cfg.Logger,
		cacheTTL:        cacheTTL,
		cacheGridSize:   cacheGridSize,
		staleIfErrorTTL: staleIfErrorTTL,
		cleanupInterval: cleanupInterval,
		now:             time.Now,
		cache:           make(map[string]*cachedResult),
	}
}

// Search returns the normalised route candidates between two points.
// Fresh cached results are served without a backend call. When the backend fails,
// a result younger than StaleIfErrorTTL is served with Stale set. Geometry decode
// failures are never cached.
func (s *Service) Search(ctx context.Context, token string, from, to Point) (*Result, error) {
	if err := validatePoint(from); err != nil {
		return nil, err
	}
	if err := validatePoint(to); err != nil {
		return nil, err
	}

	key := s.cacheKey(from, to)

	s.mu.RLock()
	if cached, ok := s.cache[key]; ok && s.now().Before(cached.expiresAt) {
		s.mu.RUnlock()
		s.logger.Debug().Str("cache_key", key).Msg("cache hit for route")
		return s.result(from, to, cached, false), nil
	}
	s.mu.RUnlock()

	return s.fetch(ctx, token, from, to, key)
}

// fetched is what one backend call produces for every caller waiting on its key.
type fetched struct {
	entry *cachedResult
	stale bool
}

func (s *Service) fetch(ctx context.Context, token string, from, to Point, key string) (*Result, error) {
	v, err, _ := s.group.Do(key, func() (any, error) {
		return s.load(ctx, token, from, to, key)
	})
	if err != nil {
		return nil, err
	}
	f := v.(*fetched)
	return s.result(from, to, f.entry, f.stale), nil
}

// load asks the backend for a route and stores it. s.mu is never held across the
// backend call, so cache hits for other keys proceed while it is in flight.
func (s *Service) load(ctx context.Context, token string, from, to Point, key string) (*fetched, error) {
	// Double-check; another request may have filled the entry while we waited.
	s.mu.RLock()
	previous := s.cache[key]
	s.mu.RUnlock()
	if previous != nil && s.now().Before(previous.expiresAt) {
		return &fetched{entry: previous}, nil
	}

	s.logger.Debug().
		Str("from", FormatPoint(from)).
		Str("to", FormatPoint(to)).
		Msg("fetching route from backend")

	resp, err := s.fetcher.Route(ctx, token, FormatPoint(from), FormatPoint(to))
	if err != nil {
		if previous != nil && s.now().Before(previous.fetchedAt.Add(s.staleIfErrorTTL)) {
			s.logger.Warn().
				Err(err).
				Time("fetched_at", previous.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale route due to backend error")
			return &fetched{entry: previous, stale: true}, nil
		}
		return nil, fmt.Errorf("fetching route: %w", err)
	}

	paths, err := Normalize(resp)
	if err != nil {
		if errors.Is(err, ErrGeometryDecode) {
			s.logger.Error().Err(err).Str("cache_key", key).Msg("backend sent undecodable route geometry")
		}
		return nil, err
	}

	now := s.now()
	entry := &cachedResult{
		paths:     paths,
		fetchedAt: now,
		expiresAt: now.Add(s.cacheTTL),
	}

	s.mu.Lock()
	s.cache[key] = entry
	s.cleanupIfNeeded(now)
	s.mu.Unlock()

	return &fetched{entry: entry}, nil
}

func (s *Service) result(from, to Point, c *cachedResult, stale bool) *Result {
	return &Result{
		From:      from,
		To:        to,
		Paths:     c.paths,
		FetchedAt: c.fetchedAt,
		Stale:     stale,
	}
}

// cacheKey quantises both endpoints to the cache grid.
// Format: route:{fromLat},{fromLng}:{toLat},{toLng}.
func (s *Service) cacheKey(from, to Point) string {
	q := func(v float64) float64 {
		return math.Floor(v/s.cacheGridSize) * s.cacheGridSize
	}
	return fmt.Sprintf("route:%.5f,%.5f:%.5f,%.5f", q(from.Lat), q(from.Lon), q(to.Lat), q(to.Lon))
}

// cleanupIfNeeded drops entries past the stale window. Caller holds s.mu.
func (s *Service) cleanupIfNeeded(now time.Time) {
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now

	expired := 0
	for key, c := range s.cache {
		if now.After(c.fetchedAt.Add(s.staleIfErrorTTL)) {
			delete(s.cache, key)
			expired++
		}
	}

	if expired > 0 {
		s.logger.Debug().Int("expired_entries", expired).Msg("cleaned up route cache")
	}
}

// InvalidateCache clears all cached routes.
func (s *Service) InvalidateCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cachedResult)
}

// CacheStats contains cache statistics.
type CacheStats struct {
	TotalEntries int
	FreshEntries int
	StaleEntries int
}

// CacheStats returns cache statistics.
func (s *Service) CacheStats() CacheStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	stats := CacheStats{TotalEntries: len(s.cache)}
	for _, c := range s.cache {
		switch {
		case now.Before(c.expiresAt):
			stats.FreshEntries++
		case now.Before(c.fetchedAt.Add(s.staleIfErrorTTL)):
			stats.StaleEntries++
		}
	}
	return stats
}
