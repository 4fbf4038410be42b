package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) share(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	userName := chi.URLParam(r, "username")

	s, err := h.shares.Share(r.Context(), requesterFrom(r.Context()), token, userName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, shareResponse{Token: token, UserName: userName, SharedAt: s.SharedAt})
}

func (h *Handler) listSharedWith(w http.ResponseWriter, r *http.Request) {
	list, err := h.shares.ListSharedWith(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]sharedFileResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sharedFileResponse{
			Filename: s.Filename,
			Token:    s.AccessToken,
			URL:      fileURL(s.AccessToken),
			Size:     s.Size,
			Owner:    s.OwnerName,
			SharedAt: s.SharedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) listRecipients(w http.ResponseWriter, r *http.Request) {
	list, err := h.shares.ListRecipients(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := make([]recipientResponse, 0, len(list))
	for _, rc := range list {
		out = append(out, recipientResponse{UserName: rc.UserName, SharedAt: rc.SharedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) unshare(w http.ResponseWriter, r *http.Request) {
	err := h.shares.Unshare(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token"), chi.URLParam(r, "username"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unshareAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.shares.UnshareAll(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, unshareAllResponse{Removed: n})
}
