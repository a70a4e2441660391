package model

// User is the authenticated caller as identified by the bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Tier  Tier   `json:"tier"`
}
