package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/server/services"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory;
	// the rest spills to temp files.
	multipartMemory = 32 << 20
	// multipartOverhead is allowed on top of the upload limit for part
	// headers and form fields.
	multipartOverhead = 1 << 20
)

func (h *Handler) upload(w http.ResponseWriter, r *http.Request) {
	if h.maxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadSize+multipartOverhead)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			h.fail(w, r, common.ErrSizeExceeded)
			return
		}
		h.fail(w, r, fmt.Errorf("%w: expected multipart form", common.ErrInvalidInput))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: missing file field", common.ErrInvalidInput))
		return
	}
	defer file.Close()

	password := r.Header.Get("password")
	if password == "" {
		password = r.FormValue("password")
	}

	f, err := h.files.Upload(r.Context(), requesterFrom(r.Context()), services.UploadInput{
		Name:     header.Filename,
		Size:     header.Size,
		Password: password,
		Body:     file,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, uploadResponse{URL: fileURL(f.AccessToken), Token: f.AccessToken})
}

// filePassword reads the download password from, in order, the "password"
// header, the X-File-Password header and the "password" query parameter.
func filePassword(r *http.Request) string {
	for _, v := range []string{
		r.Header.Get("password"),
		r.Header.Get("X-File-Password"),
		r.URL.Query().Get("password"),
	} {
		if v != "" {
			return v
		}
	}
	return ""
}

func (h *Handler) download(w http.ResponseWriter, r *http.Request) {
	d, err := h.files.Download(r.Context(), chi.URLParam(r, "token"), filePassword(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	defer d.Body.Close()

	contentType := "application/octet-stream"
	if d.Sealed {
		contentType = "application/zip"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", attachment(d.Name))
	if d.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(d.Size, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, d.Body); err != nil {
		h.log.Warn(r.Context(), "download interrupted", "error", err)
	}
}

func attachment(name string) string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": name}); v != "" {
		return v
	}
	return "attachment"
}

func (h *Handler) purge(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Purge(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) bin(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Bin(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "binned"})
}

func (h *Handler) restore(w http.ResponseWriter, r *http.Request) {
	if err := h.files.Restore(r.Context(), requesterFrom(r.Context()), chi.URLParam(r, "token")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "restored"})
}

func (h *Handler) listActive(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListActive(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponses(files))
}

func (h *Handler) listBinned(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.ListBinned(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFileResponses(files))
}

func (h *Handler) bundle(w http.ResponseWriter, r *http.Request) {
	files, err := h.files.BundleFiles(r.Context(), requesterFrom(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/gzip")
	w.Header().Set("Content-Disposition", attachment("files.tar.gz"))
	w.WriteHeader(http.StatusOK)

	// headers are out; a failure can only truncate the stream
	_ = h.files.Bundle(r.Context(), w, files)
}
