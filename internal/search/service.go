package search

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rotabus/rotabus/internal/store"
)

// MaxRecents caps the recents list; older entries fall off the end.
const MaxRecents = 50

// Service provides favorites and recents operations.
type Service struct {
	store  store.Store
	home   HomeRenamer
	logger zerolog.Logger

	// mu serialises read-modify-write of a user's lists within this instance.
	mu sync.Mutex
}

// NewService creates a new search service. home may be nil.
func NewService(st store.Store, home HomeRenamer, logger zerolog.Logger) *Service {
	return &Service{
		store:  st,
		home:   home,
		logger: logger.With().Str("component", "search").Logger(),
	}
}

func recentsKey(userID string) string   { return "recents:" + userID }
func favoritesKey(userID string) string { return "favorites:" + userID }

// Lists returns both lists of a user.
func (s *Service) Lists(ctx context.Context, userID string) (*Lists, error) {
	recents, err := s.load(ctx, recentsKey(userID))
	if err != nil {
		return nil, err
	}
	favorites, err := s.load(ctx, favoritesKey(userID))
	if err != nil {
		return nil, err
	}
	return &Lists{Recents: recents, Favorites: favorites}, nil
}

// AddRecent puts a place at the top of the recents list. Title and subtitle are
// trimmed and an empty title is rejected. A title of "home", in any case, also
// renames the saved home card to "Home".
func (s *Service) AddRecent(ctx context.Context, userID, title, subtitle string) (*Item, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyTitle
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	recents, err := s.load(ctx, recentsKey(userID))
	if err != nil {
		return nil, err
	}

	item := Item{
		ID:       "r-" + uuid.New().String(),
		Title:    title,
		Subtitle: strings.TrimSpace(subtitle),
	}
	recents = prepend(recents, item)
	if len(recents) > MaxRecents {
		recents = recents[:MaxRecents]
	}

	if err := s.save(ctx, recentsKey(userID), recents); err != nil {
		return nil, err
	}

	if strings.EqualFold(title, "home") && s.home != nil {
		if err := s.home.RenameHome(ctx, userID, "Home"); err != nil {
			s.logger.Warn().Err(err).Str("user_id", userID).Msg("renaming home destination")
		}
	}

	return &item, nil
}

// ToggleFromRecents stars or unstars a recent. Starring also adds a favorite with the
// same title unless one already exists; unstarring leaves favorites untouched.
func (s *Service) ToggleFromRecents(ctx context.Context, userID, recentID string) (*Lists, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lists, err := s.Lists(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := indexByID(lists.Recents, recentID)
	if idx < 0 {
		return nil, fmt.Errorf("recent %q: %w", recentID, ErrItemNotFound)
	}
	recent := lists.Recents[idx]

	if indexByTitle(lists.Favorites, recent.Title) < 0 {
		lists.Favorites = prepend(lists.Favorites, Item{
			ID:       "fav-" + uuid.New().String(),
			Title:    recent.Title,
			Subtitle: recent.Subtitle,
		})
		if err := s.save(ctx, favoritesKey(userID), lists.Favorites); err != nil {
			return nil, err
		}
	}

	lists.Recents[idx].Favorite = !recent.Favorite
	if err := s.save(ctx, recentsKey(userID), lists.Recents); err != nil {
		return nil, err
	}

	return lists, nil
}

// ToggleFromFavorites removes a favorite and puts it back into recents unless a
// recent with the same title exists.
func (s *Service) ToggleFromFavorites(ctx context.Context, userID, favoriteID string) (*Lists, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	lists, err := s.Lists(ctx, userID)
	if err != nil {
		return nil, err
	}

	idx := indexByID(lists.Favorites, favoriteID)
	if idx < 0 {
		return nil, fmt.Errorf("favorite %q: %w", favoriteID, ErrItemNotFound)
	}
	fav := lists.Favorites[idx]
	lists.Favorites = append(lists.Favorites[:idx:idx], lists.Favorites[idx+1:]...)

	if err := s.save(ctx, favoritesKey(userID), lists.Favorites); err != nil {
		return nil, err
	}

	if indexByTitle(lists.Recents, fav.Title) < 0 {
		lists.Recents = prepend(lists.Recents, Item{
			ID:       "r-" + uuid.New().String(),
			Title:    fav.Title,
			Subtitle: fav.Subtitle,
		})
		if err := s.save(ctx, recentsKey(userID), lists.Recents); err != nil {
			return nil, err
		}
	}

	return lists, nil
}

// Forget drops both lists of a user.
func (s *Service) Forget(ctx context.Context, userID string) error {
	return errors.Join(
		s.store.Delete(ctx, recentsKey(userID)),
		s.store.Delete(ctx, favoritesKey(userID)),
	)
}

func (s *Service) load(ctx context.Context, key string) ([]Item, error) {
	var items []Item
	if err := store.GetJSON(ctx, s.store, key, &items); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return []Item{}, nil
		}
		return nil, fmt.Errorf("loading %s: %w", key, err)
	}
	if items == nil {
		items = []Item{}
	}
	return items, nil
}

func (s *Service) save(ctx context.Context, key string, items []Item) error {
	if err := store.SetJSON(ctx, s.store, key, items, 0); err != nil {
		return fmt.Errorf("saving %s: %w", key, err)
	}
	return nil
}

func prepend(items []Item, item Item) []Item {
	out := make([]Item, 0, len(items)+1)
	out = append(out, item)
	return append(out, items...)
}

func indexByID(items []Item, id string) int {
	for i, it := range items {
		if it.ID == id {
			return i
		}
	}
	return -1
}

func indexByTitle(items []Item, title string) int {
	for i, it := range items {
		if it.Title == title {
			return i
		}
	}
	return -1
}
