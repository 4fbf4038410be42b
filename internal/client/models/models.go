// Package models defines client-side records of the gophdrop CLI: the local
// upload history, the stored session and the listings returned by the server.
package models

import "time"

// Upload is a history row written after every successful upload.
type Upload struct {
	Token      string
	Filename   string
	Size       int64
	Protected  bool
	UploadedAt time.Time
}

// Session holds the tokens of the logged-in user.
type Session struct {
	UserName     string
	AccessToken  string
	RefreshToken string
	UpdatedAt    time.Time
}

// RemoteFile is one entry of the owner listings.
type RemoteFile struct {
	Filename  string     `json:"filename"`
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	Size      int64      `json:"size"`
	Protected bool       `json:"protected"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// SharedFile is a file some other user shared with the caller.
type SharedFile struct {
	Filename string    `json:"filename"`
	Token    string    `json:"token"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	Owner    string    `json:"owner"`
	SharedAt time.Time `json:"shared_at"`
}

// Recipient is a user a file is shared with.
type Recipient struct {
	UserName string    `json:"username"`
	SharedAt time.Time `json:"shared_at"`
}
