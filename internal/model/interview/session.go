package interview

import "time"

// Session captures one interview attempt for one authenticated candidate.
type Session struct {
	ID        string    `json:"id"`
	Token     string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
}
