package httpapi

import (
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

type uploadResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

type fileResponse struct {
	Filename  string     `json:"filename"`
	Token     string     `json:"token"`
	URL       string     `json:"url"`
	Size      int64      `json:"size"`
	Protected bool       `json:"protected"`
	CreatedAt time.Time  `json:"created_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

type sharedFileResponse struct {
	Filename string    `json:"filename"`
	Token    string    `json:"token"`
	URL      string    `json:"url"`
	Size     int64     `json:"size"`
	Owner    string    `json:"owner"`
	SharedAt time.Time `json:"shared_at"`
}

type recipientResponse struct {
	UserName string    `json:"username"`
	SharedAt time.Time `json:"shared_at"`
}

type shareResponse struct {
	Token    string    `json:"token"`
	UserName string    `json:"username"`
	SharedAt time.Time `json:"shared_at"`
}

type userResponse struct {
	ID       string `json:"id"`
	UserName string `json:"username"`
}

type tokenPairResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type sessionResponse struct {
	UserID    string    `json:"user_id"`
	UserName  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type unshareAllResponse struct {
	Removed int64 `json:"removed"`
}

func fileURL(token string) string {
	return "/file/" + token + "/"
}

func toFileResponses(files []*models.File) []fileResponse {
	out := make([]fileResponse, 0, len(files))
	for _, f := range files {
		out = append(out, fileResponse{
			Filename:  f.Filename,
			Token:     f.AccessToken,
			URL:       fileURL(f.AccessToken),
			Size:      f.Size,
			Protected: f.IsProtected(),
			CreatedAt: f.CreatedAt,
			DeletedAt: f.DeletedAt,
		})
	}
	return out
}
