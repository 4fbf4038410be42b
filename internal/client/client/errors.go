package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

var (
	ErrUnavailable = errors.New("server unavailable")
	ErrNotLoggedIn = errors.New("not logged in")
)

// APIError is a non-2xx response. Message is the server's error text.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return e.Message
}

// Unwrap maps the status back to the error kind the server started from.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return common.ErrorNotFound
	case http.StatusGone:
		return common.ErrorGone
	case http.StatusForbidden:
		return common.ErrorForbidden
	case http.StatusConflict:
		return common.ErrorConflict
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return common.ErrorInvalidInput
	case http.StatusUnauthorized:
		return common.ErrorUnauthorized
	default:
		return common.ErrorInternal
	}
}

// tokenExpired reports whether the server rejected an expired access token.
func (e *APIError) tokenExpired() bool {
	return e.Status == http.StatusUnauthorized && e.Message == common.ErrTokenExpired.Error()
}
