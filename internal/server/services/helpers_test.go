package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/gophdrop/internal/logging"
	"github.com/dmitrijs2005/gophdrop/internal/server/config"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
	"github.com/dmitrijs2005/gophdrop/internal/server/repositories/memory"
	"github.com/dmitrijs2005/gophdrop/internal/server/storage"
)

type env struct {
	store  *memory.Store
	blobs  *storage.FSStore
	files  *FileService
	shares *ShareService
	users  *UserService
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.MaxUploadSize = 1 << 20
	return cfg
}

func newEnv(t *testing.T) *env {
	t.Helper()
	store := memory.NewStore()
	m := memory.NewManager(store)
	blobs, err := storage.NewFSStore(t.TempDir())
	require.NoError(t, err)

	cfg := testConfig()
	log := logging.Nop{}
	return &env{
		store:  store,
		blobs:  blobs,
		files:  NewFileService(memory.Transactor{}, m, blobs, cfg, log),
		shares: NewShareService(memory.Transactor{}, m, log),
		users:  NewUserService(memory.Transactor{}, m, cfg, log),
	}
}

// register creates a user and returns it as a requester.
func (e *env) register(t *testing.T, name string) *models.Requester {
	t.Helper()
	u, err := e.users.Register(context.Background(), name, "password-"+name)
	require.NoError(t, err)
	return &models.Requester{UserID: u.ID, UserName: u.UserName, ExpiresAt: time.Now().Add(time.Hour)}
}

func (e *env) upload(t *testing.T, r *models.Requester, name, body, password string) *models.File {
	t.Helper()
	f, err := e.files.Upload(context.Background(), r, UploadInput{
		Name:     name,
		Size:     int64(len(body)),
		Password: password,
		Body:     strings.NewReader(body),
	})
	require.NoError(t, err)
	return f
}

func (e *env) blobCount(t *testing.T) int {
	t.Helper()
	n := 0
	require.NoError(t, e.blobs.Walk(context.Background(), func(storage.Object) error {
		n++
		return nil
	}))
	return n
}
