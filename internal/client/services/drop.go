// Package services contains the application logic of the gophdrop CLI. It
// combines the API client with the local history and session stores.
package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/client/client"
	"github.com/dmitrijs2005/gophdrop/internal/client/models"
	"github.com/dmitrijs2005/gophdrop/internal/client/repositories/history"
	"github.com/dmitrijs2005/gophdrop/internal/client/repositories/session"
	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/filex"
)

type DropService struct {
	api     client.Client
	history history.Repository
	session session.Repository
	now     func() time.Time
}

func NewDropService(api client.Client, db dbx.DBTX) *DropService {
	return &DropService{
		api:     api,
		history: history.NewSQLiteRepository(db),
		session: session.NewSQLiteRepository(db),
		now:     time.Now,
	}
}

// RestoreSession loads the stored session into the API client and keeps it
// up to date when the client refreshes tokens. It returns nil when nobody
// is logged in.
func (s *DropService) RestoreSession(ctx context.Context) (*models.Session, error) {
	sess, err := s.session.Get(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}

	s.api.SetTokens(&client.Tokens{Access: sess.AccessToken, Refresh: sess.RefreshToken})
	s.api.OnRefresh(func(t *client.Tokens) {
		sess.AccessToken = t.Access
		sess.RefreshToken = t.Refresh
		sess.UpdatedAt = s.now()
		// best effort: the old refresh token is already spent
		_ = s.session.Save(context.WithoutCancel(ctx), sess)
	})
	return sess, nil
}

func (s *DropService) Ping(ctx context.Context) error {
	return s.api.Ping(ctx)
}

func (s *DropService) Register(ctx context.Context, userName string, password []byte) error {
	return s.api.Register(ctx, userName, string(password))
}

func (s *DropService) Login(ctx context.Context, userName string, password []byte) error {
	t, err := s.api.Login(ctx, userName, string(password))
	if err != nil {
		return err
	}
	return s.session.Save(ctx, &models.Session{
		UserName:     userName,
		AccessToken:  t.Access,
		RefreshToken: t.Refresh,
		UpdatedAt:    s.now(),
	})
}

// Logout revokes the session on the server and always forgets it locally.
func (s *DropService) Logout(ctx context.Context) error {
	err := s.api.Logout(ctx)
	if cerr := s.session.Clear(ctx); cerr != nil {
		return cerr
	}
	if errors.Is(err, client.ErrNotLoggedIn) {
		return nil
	}
	return err
}

func (s *DropService) WhoAmI(ctx context.Context) (*models.Session, error) {
	sess, err := s.session.Get(ctx)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, client.ErrNotLoggedIn
	}
	return sess, nil
}

// Upload sends the file at path and records the token in the history.
func (s *DropService) Upload(ctx context.Context, path, password string) (*client.UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory: %w", path, common.ErrInvalidInput)
	}

	name := filepath.Base(path)
	res, err := s.api.Upload(ctx, name, f, password)
	if err != nil {
		return nil, err
	}

	err = s.history.Add(ctx, &models.Upload{
		Token:      res.Token,
		Filename:   name,
		Size:       info.Size(),
		Protected:  password != "",
		UploadedAt: s.now(),
	})
	if err != nil {
		return res, fmt.Errorf("uploaded but not recorded: %w", err)
	}
	return res, nil
}

// Download saves the file behind token. out may be empty (current
// directory, server-provided name), a directory, or a file path. Existing
// files are never overwritten; the path actually written is returned.
func (s *DropService) Download(ctx context.Context, token, password, out string) (string, error) {
	d, err := s.api.Download(ctx, token, password)
	if err != nil {
		return "", err
	}
	defer d.Body.Close()

	return save(d.Body, out, filepath.Base(d.Filename))
}

// Bundle saves the archive of the caller's unprotected files.
func (s *DropService) Bundle(ctx context.Context, out string) (string, error) {
	body, err := s.api.Bundle(ctx)
	if err != nil {
		return "", err
	}
	defer body.Close()

	return save(body, out, "files.tar.gz")
}

func save(r io.Reader, out, name string) (string, error) {
	target := out
	if target == "" {
		target = name
	} else if info, err := os.Stat(target); err == nil && info.IsDir() {
		target = filepath.Join(target, name)
	}

	target, err := filex.FreePath(target)
	if err != nil {
		return "", err
	}
	if err := filex.EnsureParentDir(target); err != nil {
		return "", err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(target)
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(target)
		return "", err
	}
	return target, nil
}

func (s *DropService) Bin(ctx context.Context, token string) error {
	return s.api.Bin(ctx, token)
}

func (s *DropService) Restore(ctx context.Context, token string) error {
	return s.api.Restore(ctx, token)
}

// Purge deletes the file for good and drops it from the history.
func (s *DropService) Purge(ctx context.Context, token string) error {
	if err := s.api.Purge(ctx, token); err != nil {
		return err
	}
	return s.history.Delete(ctx, token)
}

func (s *DropService) ListFiles(ctx context.Context, binned bool) ([]models.RemoteFile, error) {
	if binned {
		return s.api.ListBinned(ctx)
	}
	return s.api.ListFiles(ctx)
}

func (s *DropService) Share(ctx context.Context, token, userName string) error {
	return s.api.Share(ctx, token, userName)
}

// Unshare removes one recipient, or every recipient when userName is empty.
// It returns the number of shares removed.
func (s *DropService) Unshare(ctx context.Context, token, userName string) (int64, error) {
	if userName == "" {
		return s.api.UnshareAll(ctx, token)
	}
	if err := s.api.Unshare(ctx, token, userName); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *DropService) ListShared(ctx context.Context) ([]models.SharedFile, error) {
	return s.api.ListShared(ctx)
}

func (s *DropService) ListRecipients(ctx context.Context, token string) ([]models.Recipient, error) {
	return s.api.ListRecipients(ctx, token)
}

func (s *DropService) History(ctx context.Context) ([]*models.Upload, error) {
	return s.history.List(ctx)
}
