package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/gophdrop/internal/archive"
	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/cryptox"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/config"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophdrop/internal/server/storage"
)

// UploadInput describes an incoming file. Size is the client's hint; -1
// when unknown. The body is limited independently of the hint.
type UploadInput struct {
	Name     string
	Size     int64
	Password string
	Body     io.Reader
}

// Download is a readable file ready to be sent to a client. The caller must
// close Body.
type Download struct {
	Name   string
	Size   int64
	Sealed bool
	Body   io.ReadCloser
}

// FileService implements the file lifecycle:
//
//	upload -> active -> binned -> active (restore)
//	                          \-> purged
//
// Blob writes happen before catalog inserts and blob deletes after catalog
// deletes, so a crash can only leave an orphaned blob, never a record
// pointing at nothing. The sweeper reclaims orphans.
type FileService struct {
	tx                dbx.Transactor
	repomanager       repomanager.RepositoryManager
	store             storage.Store
	tokens            *TokenGenerator
	log               logging.Logger
	now               func() time.Time
	maxUploadSize     int64
	minPasswordLength int
}

func NewFileService(tx dbx.Transactor, m repomanager.RepositoryManager, store storage.Store, cfg *config.Config, log logging.Logger) *FileService {
	return &FileService{
		tx:                tx,
		repomanager:       m,
		store:             store,
		tokens:            NewTokenGenerator(m.Files(tx.Conn())),
		log:               log.With("component", "files"),
		now:               time.Now,
		maxUploadSize:     cfg.MaxUploadSize,
		minPasswordLength: cfg.MinPasswordLength,
	}
}

func (s *FileService) Upload(ctx context.Context, requester *models.Requester, in UploadInput) (*models.File, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" || in.Body == nil {
		return nil, common.ErrInvalidInput
	}
	if s.maxUploadSize > 0 && in.Size > s.maxUploadSize {
		return nil, common.ErrSizeExceeded
	}

	var hash *string
	if in.Password != "" {
		if utf8.RuneCountInString(in.Password) < s.minPasswordLength {
			return nil, common.ErrWeakPassword
		}
		h, err := cryptox.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = &h
	}

	var owner *string
	if id := requester.ID(); id != "" {
		owner = &id
	}

	token, err := s.tokens.Generate(ctx)
	if err != nil {
		s.log.Error(ctx, "token generation failed", "error", err)
		return nil, err
	}

	obj, err := s.store.Put(ctx, storage.LimitReader(in.Body, s.maxUploadSize), name)
	if err != nil {
		return nil, err
	}

	rec := &models.File{
		StoredPath:   obj.Path,
		AccessToken:  token,
		PasswordHash: hash,
		OwnerID:      owner,
		Filename:     name,
		Size:         obj.Size,
	}

	repo := s.repomanager.Files(s.tx.Conn())
	created, err := repo.Create(ctx, rec)
	if errors.Is(err, common.ErrDuplicateToken) {
		// lost a race with a concurrent upload; one fresh token is enough
		if rec.AccessToken, err = s.tokens.Generate(ctx); err == nil {
			created, err = repo.Create(ctx, rec)
		}
		if errors.Is(err, common.ErrDuplicateToken) {
			err = fmt.Errorf("%w: %w", common.ErrTokenExhausted, err)
		}
	}
	if err != nil {
		s.discardBlob(ctx, obj.Path)
		return nil, err
	}

	s.log.Info(ctx, "file uploaded", "token", created.AccessToken, "size", created.Size, "protected", created.IsProtected())
	return created, nil
}

// Download opens the file for reading. Protected files are sealed into an
// AES-256 ZIP with the presented password; the archive is spooled to a temp
// file that is removed when Body is closed.
func (s *FileService) Download(ctx context.Context, token, password string) (*Download, error) {
	f, err := s.repomanager.Files(s.tx.Conn()).GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if f.State() == models.FileBinned {
		return nil, common.ErrFileBinned
	}

	if f.IsProtected() {
		if password == "" {
			return nil, common.ErrPasswordRequired
		}
		ok, err := cryptox.VerifyPassword(password, *f.PasswordHash)
		if err != nil {
			return nil, fmt.Errorf("verify password: %w", err)
		}
		if !ok {
			return nil, common.ErrWrongPassword
		}
	}

	rc, err := s.store.Open(ctx, f.StoredPath)
	if err != nil {
		if errors.Is(err, common.ErrBlobNotFound) {
			s.log.Warn(ctx, "record without blob", "token", f.AccessToken, "path", f.StoredPath)
			return nil, common.ErrFileNotFound
		}
		return nil, err
	}

	if !f.IsProtected() {
		return &Download{Name: f.Filename, Size: f.Size, Body: rc}, nil
	}

	defer rc.Close()
	return s.seal(rc, f.Filename, password)
}

func (s *FileService) seal(r io.Reader, name, password string) (*Download, error) {
	tmp, err := os.CreateTemp("", "gophdrop-seal-*.zip")
	if err != nil {
		return nil, common.StorageError("create spool", err)
	}
	fail := func(err error) (*Download, error) {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}

	if err := archive.Seal(tmp, r, name, password); err != nil {
		return fail(err)
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fail(common.StorageError("spool", err))
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fail(common.StorageError("spool", err))
	}

	return &Download{Name: name + ".zip", Size: size, Sealed: true, Body: &spoolFile{File: tmp}}, nil
}

// spoolFile removes itself on Close.
type spoolFile struct {
	*os.File
}

func (f *spoolFile) Close() error {
	err := f.File.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil && err == nil {
		err = rmErr
	}
	return err
}

// Bin moves an active file to the bin and revokes all of its shares.
func (s *FileService) Bin(ctx context.Context, requester *models.Requester, token string) error {
	if requester.ID() == "" {
		return common.ErrUnauthenticated
	}

	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.ownedForUpdate(ctx, tx, requester, token)
		if err != nil {
			return err
		}
		if f.State() == models.FileBinned {
			return common.ErrAlreadyBinned
		}
		if err := s.repomanager.Files(tx).MarkBinned(ctx, f.ID, s.now().UTC()); err != nil {
			return err
		}
		n, err := s.repomanager.Shares(tx).DeleteByFile(ctx, f.ID)
		if err != nil {
			return err
		}
		s.log.Info(ctx, "file binned", "token", token, "shares_revoked", n)
		return nil
	})
}

// Restore moves a binned file back to active. Revoked shares stay revoked.
func (s *FileService) Restore(ctx context.Context, requester *models.Requester, token string) error {
	if requester.ID() == "" {
		return common.ErrUnauthenticated
	}

	return s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		f, err := s.ownedForUpdate(ctx, tx, requester, token)
		if err != nil {
			return err
		}
		if f.State() != models.FileBinned {
			return common.ErrNotBinned
		}
		if err := s.repomanager.Files(tx).Restore(ctx, f.ID); err != nil {
			return err
		}
		s.log.Info(ctx, "file restored", "token", token)
		return nil
	})
}

// Purge deletes a file permanently from any state. Owned files require the
// owner; anonymous uploads can be purged by whoever holds the token.
func (s *FileService) Purge(ctx context.Context, requester *models.Requester, token string) error {
	var f *models.File
	err := s.tx.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		var err error
		f, err = s.repomanager.Files(tx).LockByToken(ctx, token)
		if err != nil {
			return err
		}
		if f.OwnerID != nil && !f.IsOwnedBy(requester.ID()) {
			if requester.ID() == "" {
				return common.ErrUnauthenticated
			}
			return common.ErrForbidden
		}
		if _, err := s.repomanager.Shares(tx).DeleteByFile(ctx, f.ID); err != nil {
			return err
		}
		return s.repomanager.Files(tx).Delete(ctx, f.ID)
	})
	if err != nil {
		return err
	}

	s.discardBlob(ctx, f.StoredPath)
	s.log.Info(ctx, "file purged", "token", token)
	return nil
}

func (s *FileService) ListActive(ctx context.Context, requester *models.Requester) ([]*models.File, error) {
	return s.list(ctx, requester, models.FileActive)
}

func (s *FileService) ListBinned(ctx context.Context, requester *models.Requester) ([]*models.File, error) {
	return s.list(ctx, requester, models.FileBinned)
}

func (s *FileService) list(ctx context.Context, requester *models.Requester, state models.FileState) ([]*models.File, error) {
	if requester.ID() == "" {
		return nil, common.ErrUnauthenticated
	}
	return s.repomanager.Files(s.tx.Conn()).ListByOwner(ctx, requester.ID(), state)
}

// BundleFiles returns the requester's active files that can go into a
// bundle. Protected files are left out: there is no password to seal them.
func (s *FileService) BundleFiles(ctx context.Context, requester *models.Requester) ([]*models.File, error) {
	all, err := s.ListActive(ctx, requester)
	if err != nil {
		return nil, err
	}
	var out []*models.File
	for _, f := range all {
		if !f.IsProtected() {
			out = append(out, f)
		}
	}
	if len(out) == 0 {
		return nil, common.ErrFileNotFound
	}
	return out, nil
}

// Bundle writes the files returned by BundleFiles to w as tar.gz. A file
// whose blob is missing is left out of the archive.
func (s *FileService) Bundle(ctx context.Context, w io.Writer, files []*models.File) error {
	entries := make([]archive.BundleEntry, 0, len(files))
	for _, f := range files {
		entries = append(entries, archive.BundleEntry{
			Name:    f.Filename,
			Size:    f.Size,
			ModTime: f.CreatedAt,
			Open: func(ctx context.Context) (io.ReadCloser, error) {
				rc, err := s.store.Open(ctx, f.StoredPath)
				if errors.Is(err, common.ErrBlobNotFound) {
					s.log.Warn(ctx, "record without blob", "token", f.AccessToken, "path", f.StoredPath)
					return nil, fmt.Errorf("%s: %w", f.AccessToken, archive.ErrSkip)
				}
				return rc, err
			},
		})
	}
	if err := archive.Bundle(ctx, w, entries); err != nil {
		s.log.Error(ctx, "bundle failed", "error", err)
		return err
	}
	return nil
}

func (s *FileService) ownedForUpdate(ctx context.Context, tx dbx.DBTX, requester *models.Requester, token string) (*models.File, error) {
	f, err := s.repomanager.Files(tx).LockByToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !f.IsOwnedBy(requester.ID()) {
		return nil, common.ErrForbidden
	}
	return f, nil
}

// discardBlob deletes a blob whose record is gone. Failures are left for
// the sweeper.
func (s *FileService) discardBlob(ctx context.Context, path string) {
	ctx = context.WithoutCancel(ctx)
	if err := s.store.Delete(ctx, path); err != nil {
		if errors.Is(err, common.ErrBlobNotFound) {
			s.log.Warn(ctx, "blob already gone", "path", path)
			return
		}
		s.log.Error(ctx, "blob delete failed", "path", path, "error", err)
	}
}
