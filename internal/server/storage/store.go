// Package storage implements blob storage for uploaded files. Blobs are
// addressed by an opaque relative path, grouped by upload date:
//
//	uploads/2026/10/15/<uuid>_<name>
//
// Callers treat the path as a handle and never derive meaning from it.
package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// Prefix is the root of every blob path.
const Prefix = "uploads"

// Object describes a stored blob.
type Object struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Store is the blob storage contract. Open and Delete return
// common.ErrBlobNotFound for missing paths; other failures match
// common.ErrStorage.
type Store interface {
	Put(ctx context.Context, r io.Reader, name string) (*Object, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	Delete(ctx context.Context, path string) error
	Exists(ctx context.Context, path string) (bool, error)
	// Walk calls fn for every object under Prefix, unfinished uploads
	// included. Returning an error from fn stops the walk.
	Walk(ctx context.Context, fn func(Object) error) error
}

// NewKey builds a unique blob path for a file called name uploaded at now.
func NewKey(now time.Time, name string) string {
	now = now.UTC()
	return path.Join(Prefix,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", int(now.Month())),
		fmt.Sprintf("%02d", now.Day()),
		uuid.NewString()+"_"+sanitize(name))
}

// sanitize keeps letters, digits, dot, dash and underscore, capped at 64 runes.
func sanitize(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	n := 0
	for _, r := range name {
		if n == 64 {
			break
		}
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '.' || r == '-' || r == '_' {
			b.WriteRune(r)
			n++
		}
	}
	s := strings.Trim(b.String(), ".")
	if s == "" {
		return "file"
	}
	return s
}
