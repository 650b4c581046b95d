package account

import "time"

// Account is a candidate known to the development backend.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Password  string    `json:"-"`
	Phone     string    `json:"phone_number,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tokens is the credential pair issued at login.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
