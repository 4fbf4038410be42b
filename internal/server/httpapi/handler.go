// Package httpapi is the public HTTP surface of the server: routing,
// authentication, request decoding and error translation. Business rules
// live in the services package.
package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/services"
)

// FileCatalog is implemented by *services.FileService.
type FileCatalog interface {
	Upload(ctx context.Context, requester *models.Requester, in services.UploadInput) (*models.File, error)
	Download(ctx context.Context, token, password string) (*services.Download, error)
	Bin(ctx context.Context, requester *models.Requester, token string) error
	Restore(ctx context.Context, requester *models.Requester, token string) error
	Purge(ctx context.Context, requester *models.Requester, token string) error
	ListActive(ctx context.Context, requester *models.Requester) ([]*models.File, error)
	ListBinned(ctx context.Context, requester *models.Requester) ([]*models.File, error)
	BundleFiles(ctx context.Context, requester *models.Requester) ([]*models.File, error)
	Bundle(ctx context.Context, w io.Writer, files []*models.File) error
}

// ShareRegistry is implemented by *services.ShareService.
type ShareRegistry interface {
	Share(ctx context.Context, requester *models.Requester, token, toUserName string) (*models.Share, error)
	ListSharedWith(ctx context.Context, requester *models.Requester) ([]*models.SharedFile, error)
	ListRecipients(ctx context.Context, requester *models.Requester, token string) ([]*models.Recipient, error)
	Unshare(ctx context.Context, requester *models.Requester, token, toUserName string) error
	UnshareAll(ctx context.Context, requester *models.Requester, token string) (int64, error)
}

// Identity is implemented by *services.UserService.
type Identity interface {
	Register(ctx context.Context, userName, password string) (*models.User, error)
	Login(ctx context.Context, userName, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Logout(ctx context.Context, refreshToken string) error
	SessionInfo(ctx context.Context, requester *models.Requester) (*services.SessionInfo, error)
	Authenticate(accessToken string) (*models.Requester, error)
}

// Pinger reports backing store health; *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	files         FileCatalog
	shares        ShareRegistry
	users         Identity
	db            Pinger
	log           logging.Logger
	maxUploadSize int64
}

func NewHandler(files FileCatalog, shares ShareRegistry, users Identity, db Pinger, maxUploadSize int64, log logging.Logger) *Handler {
	return &Handler{
		files:         files,
		shares:        shares,
		users:         users,
		db:            db,
		log:           log.With("component", "http"),
		maxUploadSize: maxUploadSize,
	}
}

// Routes builds the router with the full middleware chain.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(RequestLogger(h.log))
	r.Use(Metrics())

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(h.users))

		r.Post("/file/", h.upload)
		r.Get("/file/{token}/", h.download)
		r.Delete("/file/{token}/", h.purge)
		r.Put("/file/bin/{token}/", h.bin)
		r.Put("/file/bin/restore/{token}/", h.restore)
		r.Get("/file/bin/all/", h.listBinned)

		r.Post("/share/{token}/{username}/", h.share)
		r.Get("/share/", h.listSharedWith)
		r.Get("/share/{token}/", h.listRecipients)
		r.Delete("/share/{token}/{username}/", h.unshare)
		r.Delete("/share/{token}/", h.unshareAll)

		r.Get("/user_filenames/", h.listActive)
		r.Get("/user_files/", h.bundle)

		r.Post("/register/", h.register)
		r.Post("/login/", h.login)
		r.Post("/logout/", h.logout)
		r.Post("/token/refresh/", h.refresh)
		r.Get("/session_info/", h.sessionInfo)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	if err := h.db.PingContext(r.Context()); err != nil {
		h.log.Error(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes err and logs it when it is not a client error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if statusFor(err) >= http.StatusInternalServerError {
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, err)
}
