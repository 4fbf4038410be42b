// Package memory is an in-process implementation of the repository manager.
// It enforces the same uniqueness rules as the PostgreSQL schema and is used
// by service, sweeper and HTTP tests. Transactions are not isolated.
package memory

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/dbx"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/files"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/shares"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/users"
	"github.com/google/uuid"
)

// Store holds every table. The zero value is not usable; call NewStore.
type Store struct {
	mu     sync.Mutex
	users  map[string]*models.User
	tokens map[string]*models.RefreshToken
	files  map[string]*models.File
	shares map[string]*models.Share
	Now    func() time.Time
}

func NewStore() *Store {
	return &Store{
		users:  map[string]*models.User{},
		tokens: map[string]*models.RefreshToken{},
		files:  map[string]*models.File{},
		shares: map[string]*models.Share{},
		Now:    time.Now,
	}
}

// Manager implements repomanager.RepositoryManager on top of a Store.
type Manager struct {
	store *Store
}

func NewManager(s *Store) *Manager { return &Manager{store: s} }

func (m *Manager) RunMigrations(context.Context, *sql.DB) error { return nil }

func (m *Manager) Users(dbx.DBTX) users.Repository                 { return (*userRepo)(m.store) }
func (m *Manager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return (*tokenRepo)(m.store) }
func (m *Manager) Files(dbx.DBTX) files.Repository                 { return (*fileRepo)(m.store) }
func (m *Manager) Shares(dbx.DBTX) shares.Repository               { return (*shareRepo)(m.store) }

// Transactor runs fn directly; there is nothing to commit or roll back.
type Transactor struct{}

func (Transactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	return fn(ctx, nil)
}

func (Transactor) Conn() dbx.DBTX { return nil }

// --- users ---

type userRepo Store

func (r *userRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.UserName == u.UserName {
			return nil, common.ErrUserExists
		}
	}
	u.ID = uuid.NewString()
	u.CreatedAt = r.Now()
	c := *u
	r.users[u.ID] = &c
	return u, nil
}

func (r *userRepo) GetUserByLogin(_ context.Context, login string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.UserName == login {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrUserNotFound
}

func (r *userRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, common.ErrUserNotFound
	}
	c := *u
	return &c, nil
}

// --- refresh tokens ---

type tokenRepo Store

func (r *tokenRepo) Create(_ context.Context, userID, token string, expires time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[token] = &models.RefreshToken{
		ID: uuid.NewString(), UserID: userID, Token: token, Expires: expires, CreatedAt: r.Now(),
	}
	return nil
}

func (r *tokenRepo) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *t
	return &c, nil
}

func (r *tokenRepo) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tokens, token)
	return nil
}

func (r *tokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, t := range r.tokens {
		if t.Expired(now) {
			delete(r.tokens, k)
			n++
		}
	}
	return n, nil
}

// --- files ---

type fileRepo Store

func copyFile(f *models.File) *models.File {
	c := *f
	return &c
}

func (r *fileRepo) Create(_ context.Context, f *models.File) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.files {
		if existing.AccessToken == f.AccessToken {
			return nil, common.ErrDuplicateToken
		}
	}
	f.ID = uuid.NewString()
	f.CreatedAt = r.Now()
	r.files[f.ID] = copyFile(f)
	return f, nil
}

func (r *fileRepo) TokenExists(_ context.Context, token string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.AccessToken == token {
			return true, nil
		}
	}
	return false, nil
}

func (r *fileRepo) GetByToken(_ context.Context, token string) (*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.AccessToken == token {
			return copyFile(f), nil
		}
	}
	return nil, common.ErrFileNotFound
}

func (r *fileRepo) LockByToken(ctx context.Context, token string) (*models.File, error) {
	return r.GetByToken(ctx, token)
}

func (r *fileRepo) ListByOwner(_ context.Context, ownerID string, state models.FileState) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.IsOwnedBy(ownerID) && f.State() == state {
			out = append(out, copyFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *fileRepo) MarkBinned(_ context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.DeletedAt != nil {
		return common.ErrAlreadyBinned
	}
	f.DeletedAt = &at
	return nil
}

func (r *fileRepo) Restore(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.files[id]
	if !ok || f.DeletedAt == nil {
		return common.ErrNotBinned
	}
	f.DeletedAt = nil
	return nil
}

func (r *fileRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.files[id]; !ok {
		return common.ErrFileNotFound
	}
	delete(r.files, id)
	for sid, s := range r.shares {
		if s.FileID == id {
			delete(r.shares, sid)
		}
	}
	return nil
}

func (r *fileRepo) ListBinnedBefore(_ context.Context, cutoff time.Time, limit int) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.DeletedAt != nil && f.DeletedAt.Before(cutoff) {
			out = append(out, copyFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeletedAt.Before(*out[j].DeletedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fileRepo) ListPage(_ context.Context, afterID string, limit int) ([]*models.File, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.File
	for _, f := range r.files {
		if f.ID > afterID {
			out = append(out, copyFile(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fileRepo) ExistsByStoredPath(_ context.Context, path string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, f := range r.files {
		if f.StoredPath == path {
			return true, nil
		}
	}
	return false, nil
}

// --- shares ---

type shareRepo Store

func (r *shareRepo) Create(_ context.Context, s *models.Share) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.shares {
		if existing.FileID == s.FileID && existing.SharedWithID == s.SharedWithID {
			return nil, common.ErrAlreadyShared
		}
	}
	s.ID = uuid.NewString()
	s.SharedAt = r.Now()
	c := *s
	r.shares[s.ID] = &c
	return s, nil
}

func (r *shareRepo) Get(_ context.Context, fileID, sharedWithID string) (*models.Share, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.shares {
		if s.FileID == fileID && s.SharedWithID == sharedWithID {
			c := *s
			return &c, nil
		}
	}
	return nil, common.ErrShareNotFound
}

func (r *shareRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shares[id]; !ok {
		return common.ErrShareNotFound
	}
	delete(r.shares, id)
	return nil
}

func (r *shareRepo) DeleteByFile(_ context.Context, fileID string) (int64, error) {
	return r.deleteWhere(func(s *models.Share) bool { return s.FileID == fileID }), nil
}

func (r *shareRepo) DeleteByFileAndSharer(_ context.Context, fileID, sharedByID string) (int64, error) {
	return r.deleteWhere(func(s *models.Share) bool { return s.FileID == fileID && s.SharedByID == sharedByID }), nil
}

func (r *shareRepo) deleteWhere(match func(*models.Share) bool) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.shares {
		if match(s) {
			delete(r.shares, id)
			n++
		}
	}
	return n
}

func (r *shareRepo) ListSharedWith(_ context.Context, userID string) ([]*models.SharedFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.SharedFile
	for _, s := range r.shares {
		if s.SharedWithID != userID {
			continue
		}
		f, ok := r.files[s.FileID]
		if !ok || f.DeletedAt != nil {
			continue
		}
		owner := ""
		if u, ok := r.users[s.SharedByID]; ok {
			owner = u.UserName
		}
		out = append(out, &models.SharedFile{
			AccessToken: f.AccessToken,
			Filename:    f.Filename,
			Size:        f.Size,
			OwnerName:   owner,
			SharedAt:    s.SharedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SharedAt.After(out[j].SharedAt) })
	return out, nil
}

func (r *shareRepo) ListRecipients(_ context.Context, fileID string) ([]*models.Recipient, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Recipient
	for _, s := range r.shares {
		if s.FileID != fileID {
			continue
		}
		name := ""
		if u, ok := r.users[s.SharedWithID]; ok {
			name = u.UserName
		}
		out = append(out, &models.Recipient{UserName: name, SharedAt: s.SharedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserName < out[j].UserName })
	return out, nil
}

// ShareCount reports how many shares reference fileID. Test helper.
func (s *Store) ShareCount(fileID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sh := range s.shares {
		if sh.FileID == fileID {
			n++
		}
	}
	return n
}

// FileCount reports the number of catalog records. Test helper.
func (s *Store) FileCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.files)
}

// PutFile inserts a record verbatim, bypassing Create. Test helper for
// seeding records with chosen timestamps.
func (s *Store) PutFile(f *models.File) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	s.files[f.ID] = copyFile(f)
}
