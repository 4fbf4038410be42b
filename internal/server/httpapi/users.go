package httpapi

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

const maxCredentialsBody = 64 << 10

type credentialsRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
	Refresh  string `json:"refresh"`
}

// decodeCredentials accepts either a JSON body or a urlencoded/multipart form.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (*credentialsRequest, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBody)

	c := &credentialsRequest{}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(c); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
		}
		return c, nil
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxCredentialsBody); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	c.UserName = r.PostFormValue("username")
	c.Password = r.PostFormValue("password")
	c.Refresh = r.PostFormValue("refresh")
	return c, nil
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	u, err := h.users.Register(r.Context(), c.UserName, c.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{ID: u.ID, UserName: u.UserName})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if c.UserName == "" || c.Password == "" {
		h.fail(w, r, fmt.Errorf("%w: username and password are required", common.ErrInvalidInput))
		return
	}

	pair, err := h.users.Login(r.Context(), c.UserName, c.Password)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{Access: pair.AccessToken, Refresh: pair.RefreshToken})
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if c.Refresh == "" {
		h.fail(w, r, fmt.Errorf("%w: refresh token is required", common.ErrInvalidInput))
		return
	}

	pair, err := h.users.RefreshToken(r.Context(), c.Refresh)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{Access: pair.AccessToken, Refresh: pair.RefreshToken})
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if c.Refresh == "" {
		h.fail(w, r, fmt.Errorf("%w: refresh token is required", common.ErrInvalidInput))
		return
	}

	if err := h.users.Logout(r.Context(), c.Refresh); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "logged out"})
}

func (h *Handler) sessionInfo(w http.ResponseWriter, r *http.Request) {
	info, err := h.users.SessionInfo(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{UserID: info.UserID, UserName: info.UserName, ExpiresAt: info.ExpiresAt})
}
