package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/gophdrop/internal/client/models"
)

// Client is the gophdrop API as seen by the CLI.
type Client interface {
	Ping(ctx context.Context) error

	Register(ctx context.Context, userName, password string) error
	Login(ctx context.Context, userName, password string) (*Tokens, error)
	Logout(ctx context.Context) error
	SetTokens(t *Tokens)
	OnRefresh(fn func(*Tokens))

	Upload(ctx context.Context, name string, body io.ReadSeeker, password string) (*UploadResult, error)
	Download(ctx context.Context, token, password string) (*DownloadResult, error)
	Bin(ctx context.Context, token string) error
	Restore(ctx context.Context, token string) error
	Purge(ctx context.Context, token string) error
	ListFiles(ctx context.Context) ([]models.RemoteFile, error)
	ListBinned(ctx context.Context) ([]models.RemoteFile, error)
	Bundle(ctx context.Context) (io.ReadCloser, error)

	Share(ctx context.Context, token, userName string) error
	Unshare(ctx context.Context, token, userName string) error
	UnshareAll(ctx context.Context, token string) (int64, error)
	ListShared(ctx context.Context) ([]models.SharedFile, error)
	ListRecipients(ctx context.Context, token string) ([]models.Recipient, error)
}

type Tokens struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

type UploadResult struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// DownloadResult streams a file. Sealed is set when Body is a password
// protected ZIP archive rather than the raw file.
type DownloadResult struct {
	Filename string
	Sealed   bool
	Body     io.ReadCloser
}
