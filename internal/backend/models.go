package backend

import (
	"bytes"
	"encoding/json"
)

// ID is an identifier the backend may send either as a JSON string or a number.
type ID string

// UnmarshalJSON accepts "42", 42 and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as text.
func (id ID) String() string {
	return string(id)
}

// User is the account record returned by /auth/login and /auth/me.
type User struct {
	ID       ID     `json:"id,omitempty"`
	Name     string `json:"name,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

// IsZero reports whether the backend sent no usable user fields.
func (u *User) IsZero() bool {
	return u == nil || (u.ID == "" && u.Name == "" && u.FullName == "" && u.Username == "" && u.Email == "")
}

// LoginResult is the body of a successful /auth/login call.
type LoginResult struct {
	Token string `json:"token"`
	User  *User  `json:"user,omitempty"`
}

// RegisterRequest is the body sent to /auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// DestinationKind selects the saved destination slot.
type DestinationKind string

// Destination kinds.
const (
	KindHome DestinationKind = "home"
	KindWork DestinationKind = "work"
)

// Valid reports whether k is home or work.
func (k DestinationKind) Valid() bool {
	return k == KindHome || k == KindWork
}

// Destination is a saved home or work entry as the backend describes it.
// Any field may be missing.
type Destination struct {
	Name           string  `json:"name,omitempty"`
	Time           string  `json:"time,omitempty"`
	TimeMinutes    float64 `json:"timeMinutes,omitempty"`
	Distance       string  `json:"distance,omitempty"`
	DistanceMeters float64 `json:"distanceMeters,omitempty"`
	Point1         string  `json:"point1,omitempty"`
	Point2         string  `json:"point2,omitempty"`
}

// Preferences is the body of /directions/preferences.
type Preferences struct {
	Home *Destination `json:"home,omitempty"`
	Work *Destination `json:"work,omitempty"`
}

// SetDestinationRequest carries the fields for /directions/setHome and /directions/setWork.
type SetDestinationRequest struct {
	UserID string
	Point1 string
	Point2 string
	Name   string
}

// body renders the request with the name field the backend expects for kind.
func (r SetDestinationRequest) body(kind DestinationKind) map[string]string {
	b := map[string]string{
		"userId": r.UserID,
		"point1": r.Point1,
		"point2": r.Point2,
	}
	if kind == KindHome {
		b["homeName"] = r.Name
	} else {
		b["workName"] = r.Name
	}
	return b
}

// DestinationResult is the reply to a set-destination call.
type DestinationResult struct {
	Message string       `json:"message,omitempty"`
	Home    *Destination `json:"home,omitempty"`
	Work    *Destination `json:"work,omitempty"`
}

// For returns the destination in the reply matching kind, if any.
func (r *DestinationResult) For(kind DestinationKind) *Destination {
	if r == nil {
		return nil
	}
	if kind == KindHome {
		return r.Home
	}
	return r.Work
}

// PositionsResponse is the /lines/positions payload: every tracked line with its vehicles.
type PositionsResponse struct {
	Hour  string `json:"hr,omitempty"`
	Lines []Line `json:"l"`
}

// Line is one bus line in a positions payload.
type Line struct {
	Code        string            `json:"c,omitempty"`
	LineID      int               `json:"cl,omitempty"`
	Direction   int               `json:"sl,omitempty"`
	Destination string            `json:"lt0"`
	Origin      string            `json:"lt1"`
	Count       int               `json:"qv,omitempty"`
	Vehicles    []VehiclePosition `json:"vs"`
}

// VehiclePosition is a single vehicle report.
type VehiclePosition struct {
	Prefix     ID       `json:"p"`
	Accessible bool     `json:"a,omitempty"`
	CapturedAt string   `json:"ta,omitempty"`
	Lat        *float64 `json:"py,omitempty"`
	Lng        *float64 `json:"px,omitempty"`
}

// RouteResponse is the /stations/route payload in GraphHopper shape.
type RouteResponse struct {
	Info  *RouteInfo  `json:"info,omitempty"`
	Paths []RoutePath `json:"paths"`
}

// RouteInfo carries response-level flags.
type RouteInfo struct {
	PointsEncoded *bool    `json:"points_encoded,omitempty"`
	Took          float64  `json:"took,omitempty"`
	Copyrights    []string `json:"copyrights,omitempty"`
}

// RoutePath is one candidate route.
type RoutePath struct {
	Distance                float64         `json:"distance"`
	Time                    float64         `json:"time"`
	Points                  json.RawMessage `json:"points,omitempty"`
	PointsEncoded           *bool           `json:"points_encoded,omitempty"`
	PointsEncodedMultiplier float64         `json:"points_encoded_multiplier,omitempty"`
	BBox                    []float64       `json:"bbox,omitempty"`
	Instructions            []Instruction   `json:"instructions,omitempty"`
	Transfers               int             `json:"transfers,omitempty"`
}

// Instruction is one turn-by-turn step.
type Instruction struct {
	Text       string  `json:"text"`
	StreetName string  `json:"street_name,omitempty"`
	Distance   float64 `json:"distance"`
	Time       float64 `json:"time"`
	Sign       int     `json:"sign"`
	Interval   []int   `json:"interval,omitempty"`
}

// errorBody is the error envelope the backend uses; both keys are optional.
type errorBody struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// messageFromBody extracts a human-readable message: "message", then "error", then the
// body itself when it is a JSON string or plain text.
func messageFromBody(body []byte) string {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return ""
	}

	var eb errorBody
	if err := json.Unmarshal(body, &eb); err == nil {
		if eb.Message != "" {
			return eb.Message
		}
		if eb.Error != "" {
			return eb.Error
		}
		return ""
	}

	var s string
	if err := json.Unmarshal(body, &s); err == nil {
		return s
	}

	if body[0] == '{' || body[0] == '[' {
		return ""
	}
	const maxPlain = 200
	if len(body) > maxPlain {
		return string(body[:maxPlain])
	}
	return string(body)
}
