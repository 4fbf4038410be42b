package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps a service error to its HTTP status by kind.
func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUserExists):
		return http.StatusConflict
	case errors.Is(err, common.ErrorNotFound):
		return http.StatusNotFound
	case errors.Is(err, common.ErrorGone):
		return http.StatusGone
	case errors.Is(err, common.ErrorForbidden):
		return http.StatusForbidden
	case errors.Is(err, common.ErrorConflict), errors.Is(err, common.ErrorInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, common.ErrorUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage strips wrapped causes: clients only ever see the sentinel.
func publicMessage(err error) string {
	for _, e := range []error{
		common.ErrFileNotFound, common.ErrUserNotFound, common.ErrShareNotFound,
		common.ErrFileBinned, common.ErrForbidden,
		common.ErrAlreadyBinned, common.ErrNotBinned, common.ErrAlreadyShared, common.ErrUserExists,
		common.ErrSizeExceeded, common.ErrWeakPassword, common.ErrInvalidTarget,
		common.ErrUnauthenticated, common.ErrPasswordRequired, common.ErrWrongPassword,
		common.ErrInvalidCredentials, common.ErrTokenExpired, common.ErrRefreshTokenExpired,
		common.ErrInvalidToken,
	} {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	if errors.Is(err, common.ErrorInvalidInput) {
		// validation messages are written for clients
		return err.Error()
	}
	if errors.Is(err, common.ErrorUnauthorized) {
		return common.ErrorUnauthorized.Error()
	}
	return common.ErrorInternal.Error()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: publicMessage(err)})
}
