// Package common defines shared helpers and sentinel errors used across
// client and server layers of gophdrop. Callers should use errors.Is to
// match these values.
//
// Errors are grouped by kind: every specific error wraps one of the kind
// sentinels, so errors.Is(ErrFileNotFound, ErrorNotFound) holds and the
// transport layer only needs to switch on kinds.
package common

import (
	"errors"
	"fmt"
)

// Kinds.
var (
	ErrorNotFound     = errors.New("not found")
	ErrorGone         = errors.New("gone")
	ErrorForbidden    = errors.New("forbidden")
	ErrorConflict     = errors.New("conflict")
	ErrorInvalidInput = errors.New("invalid input")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorInternal     = errors.New("internal error")
)

// NotFound.
var (
	ErrFileNotFound  = fmt.Errorf("file %w", ErrorNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrorNotFound)
	ErrShareNotFound = fmt.Errorf("share %w", ErrorNotFound)
	ErrBlobNotFound  = fmt.Errorf("blob %w", ErrorNotFound)
)

// Gone.
var ErrFileBinned = fmt.Errorf("file is in bin: %w", ErrorGone)

// Forbidden.
var ErrForbidden = fmt.Errorf("not the owner: %w", ErrorForbidden)

// Conflict.
var (
	ErrAlreadyBinned  = fmt.Errorf("file already in bin: %w", ErrorConflict)
	ErrNotBinned      = fmt.Errorf("file not in bin: %w", ErrorConflict)
	ErrAlreadyShared  = fmt.Errorf("file already shared with user: %w", ErrorConflict)
	ErrUserExists     = fmt.Errorf("username already taken: %w", ErrorConflict)
	ErrDuplicateToken = fmt.Errorf("duplicate access token: %w", ErrorConflict)
)

// InvalidInput.
var (
	ErrSizeExceeded  = fmt.Errorf("file size exceeds limit: %w", ErrorInvalidInput)
	ErrWeakPassword  = fmt.Errorf("password too short: %w", ErrorInvalidInput)
	ErrInvalidTarget = fmt.Errorf("cannot share with yourself: %w", ErrorInvalidInput)
	ErrInvalidInput  = fmt.Errorf("malformed request: %w", ErrorInvalidInput)
)

// Unauthenticated.
var (
	ErrUnauthenticated     = fmt.Errorf("authentication required: %w", ErrorUnauthorized)
	ErrPasswordRequired    = fmt.Errorf("password required: %w", ErrorUnauthorized)
	ErrWrongPassword       = fmt.Errorf("wrong password: %w", ErrorUnauthorized)
	ErrInvalidCredentials  = fmt.Errorf("invalid username or password: %w", ErrorUnauthorized)
	ErrInvalidToken        = fmt.Errorf("invalid token: %w", ErrorUnauthorized)
	ErrTokenExpired        = fmt.Errorf("token expired: %w", ErrorUnauthorized)
	ErrRefreshTokenExpired = fmt.Errorf("refresh token expired: %w", ErrorUnauthorized)
)

// Internal.
var (
	ErrStorage          = fmt.Errorf("storage failure: %w", ErrorInternal)
	ErrEncryptionFailed = fmt.Errorf("encryption failed: %w", ErrorInternal)
	ErrTokenExhausted   = fmt.Errorf("could not allocate access token: %w", ErrorInternal)
)

// StorageError wraps an I/O failure so that it matches ErrStorage while
// keeping the underlying cause for logs.
func StorageError(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}
