package models

import "time"

type User struct {
	ID           string
	UserName     string
	PasswordHash string
	CreatedAt    time.Time
}

// Requester identifies the caller of a service operation. A nil *Requester
// means an anonymous request.
type Requester struct {
	UserID    string
	UserName  string
	ExpiresAt time.Time
}

// ID returns the user id or "" for anonymous callers.
func (r *Requester) ID() string {
	if r == nil {
		return ""
	}
	return r.UserID
}
