package models

// LoginRequest is the request body for POST /v1/auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RegisterRequest is the request body for POST /v1/auth/register.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the signed-in account summary.
type User struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// LoginResponse carries the backend token the client sends back as a bearer token.
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// ProfileResponse is the profile screen: the password is only ever shown masked.
type ProfileResponse struct {
	Name           string `json:"name"`
	Email          string `json:"email"`
	MaskedPassword string `json:"maskedPassword"`
}
