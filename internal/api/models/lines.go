package models

// Vehicle is one bus in the live positions list. The short field names are the
// ones the transit backend uses and clients already understand.
type Vehicle struct {
	Destination string `json:"lt0"`
	Origin      string `json:"lt1"`
	CapturedAt  string `json:"ta,omitempty"`
	Prefix      string `json:"vehicle"`
	LineCode    string `json:"lineCode,omitempty"`
	Accessible  bool   `json:"accessible"`
	Position    *Point `json:"position,omitempty"`
}

// LinesPageResponse is the response for GET /v1/lines.
type LinesPageResponse struct {
	Items      []Vehicle `json:"items"`
	Page       int       `json:"page"`
	PageSize   int       `json:"pageSize"`
	TotalPages int       `json:"totalPages"`
	TotalItems int       `json:"totalItems"`
	Query      string    `json:"query,omitempty"`
	Hour       string    `json:"hour,omitempty"`
	FetchedAt  Timestamp `json:"fetchedAt"`
	Stale      bool      `json:"stale"`
}

// LinesRefreshResponse is the response for POST /v1/lines:refresh.
type LinesRefreshResponse struct {
	// Mode is "queued" when the refresh was handed to the worker, "inline" otherwise.
	Mode      string     `json:"mode"`
	Vehicles  *int       `json:"vehicles,omitempty"`
	FetchedAt *Timestamp `json:"fetchedAt,omitempty"`
	MessageID string     `json:"messageId,omitempty"`
}
