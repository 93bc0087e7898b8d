package models

// Destination is a saved home or work card. Time and Distance are display strings
// such as "26 min" and "2.4km"; both are empty for a destination never set.
type Destination struct {
	Name       string `json:"name"`
	Time       string `json:"time"`
	Distance   string `json:"distance"`
	Configured bool   `json:"configured"`
}

// DirectionsResponse is the response for GET /v1/directions.
type DirectionsResponse struct {
	Home Destination `json:"home"`
	Work Destination `json:"work"`
}

// SetDestinationRequest is the request body for PUT /v1/directions/{kind}.
// Points are "lat,lng" strings.
type SetDestinationRequest struct {
	Name   string `json:"name"`
	Point1 string `json:"point1"`
	Point2 string `json:"point2"`
}

// SetDestinationResponse echoes the backend confirmation and the updated cards.
type SetDestinationResponse struct {
	Message     string             `json:"message"`
	Kind        string             `json:"kind"`
	Destination Destination        `json:"destination"`
	Directions  DirectionsResponse `json:"directions"`
}
