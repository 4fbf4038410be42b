package models

import "time"

// Share grants SharedWithID visibility of a file in their shared list.
// SharedByID is the file owner at the time of sharing.
type Share struct {
	ID           string
	FileID       string
	SharedWithID string
	SharedByID   string
	SharedAt     time.Time
}

// SharedFile is the recipient-facing projection of a share. It carries no
// storage path and no password state.
type SharedFile struct {
	AccessToken string
	Filename    string
	Size        int64
	OwnerName   string
	SharedAt    time.Time
}

// Recipient is the owner-facing projection of a share.
type Recipient struct {
	UserName string
	SharedAt time.Time
}
