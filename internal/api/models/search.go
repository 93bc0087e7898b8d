package models

// SearchItem is an entry in the recents or favorites list.
type SearchItem struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
	Favorite bool   `json:"favorite"`
}

// SearchListsResponse returns both lists so clients can redraw after a toggle.
type SearchListsResponse struct {
	Recents   []SearchItem `json:"recents"`
	Favorites []SearchItem `json:"favorites"`
}

// AddRecentRequest is the request body for POST /v1/search/recents.
type AddRecentRequest struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle"`
}
