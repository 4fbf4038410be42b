// Package models defines server-side data models persisted in the database.
package models

import "time"

// FileState is the lifecycle state of a stored file.
type FileState string

const (
	FileActive FileState = "active"
	FileBinned FileState = "binned"
)

// File is one uploaded blob and its access metadata.
//
// ID and StoredPath are internal: the only public handle of a file is its
// AccessToken. PasswordHash is an argon2id PHC string, never plaintext.
type File struct {
	ID           string
	StoredPath   string
	AccessToken  string
	PasswordHash *string
	OwnerID      *string
	DeletedAt    *time.Time
	Filename     string
	Size         int64
	CreatedAt    time.Time
}

// State derives the lifecycle state from DeletedAt.
func (f *File) State() FileState {
	if f.DeletedAt != nil {
		return FileBinned
	}
	return FileActive
}

// IsProtected reports whether downloads must present a password.
func (f *File) IsProtected() bool {
	return f.PasswordHash != nil && *f.PasswordHash != ""
}

// IsOwnedBy reports whether userID owns the file. Anonymous uploads are
// owned by nobody.
func (f *File) IsOwnedBy(userID string) bool {
	return f.OwnerID != nil && userID != "" && *f.OwnerID == userID
}
