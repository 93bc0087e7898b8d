// Package search keeps each user's recent places and favorites.
package search

import (
	"context"
	"errors"
)

// Errors.
var (
	ErrEmptyTitle   = errors.New("title is required")
	ErrItemNotFound = errors.New("item not found")
)

// Item is a place in the recents or favorites list.
type Item struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	// Favorite marks a recent that has been starred. Always false on favorites.
	Favorite bool `json:"favorite"`
}

// Lists holds both lists of a user, newest first.
type Lists struct {
	Recents   []Item `json:"recents"`
	Favorites []Item `json:"favorites"`
}

// HomeRenamer renames the user's saved home card. *destinations.Service implements it.
type HomeRenamer interface {
	RenameHome(ctx context.Context, userID, name string) error
}
