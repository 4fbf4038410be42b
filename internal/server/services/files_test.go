package services

import (
	"archive/tar"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yeka/zip"

	"github.com/dmitrijs2005/gophdrop/internal/common"
	"github.com/dmitrijs2005/gophdrop/internal/server/models"
)

func unzip(t *testing.T, data []byte, password string) (string, string) {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, zr.File, 1)
	f := zr.File[0]
	f.SetPassword(password)
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	return f.Name, string(body)
}

func TestUploadDownload_ProtectedFile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	f := e.upload(t, nil, "hello.txt", "hello world", "secret123")
	assert.Len(t, f.AccessToken, 32)
	assert.Nil(t, f.OwnerID)
	assert.True(t, f.IsProtected())
	assert.NotContains(t, *f.PasswordHash, "secret123")
	assert.Equal(t, int64(11), f.Size)

	_, err := e.files.Download(ctx, f.AccessToken, "")
	assert.ErrorIs(t, err, common.ErrPasswordRequired)

	_, err = e.files.Download(ctx, f.AccessToken, "nope")
	assert.ErrorIs(t, err, common.ErrWrongPassword)

	d, err := e.files.Download(ctx, f.AccessToken, "secret123")
	require.NoError(t, err)
	assert.Equal(t, "hello.txt.zip", d.Name)
	assert.True(t, d.Sealed)

	spool := d.Body.(*spoolFile).Name()
	data, err := io.ReadAll(d.Body)
	require.NoError(t, err)
	require.NoError(t, d.Body.Close())
	assert.Equal(t, int64(len(data)), d.Size)

	_, statErr := os.Stat(spool)
	assert.True(t, os.IsNotExist(statErr), "spool file should be removed on close")

	name, body := unzip(t, data, "secret123")
	assert.Equal(t, "hello.txt", name)
	assert.Equal(t, "hello world", body)
}

func TestUploadDownload_PlainFile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	f := e.upload(t, alice, "notes.md", "# notes", "")
	require.NotNil(t, f.OwnerID)
	assert.Equal(t, alice.UserID, *f.OwnerID)
	assert.False(t, f.IsProtected())

	d, err := e.files.Download(ctx, f.AccessToken, "ignored")
	require.NoError(t, err)
	defer d.Body.Close()
	assert.Equal(t, "notes.md", d.Name)
	assert.False(t, d.Sealed)
	body, _ := io.ReadAll(d.Body)
	assert.Equal(t, "# notes", string(body))
}

func TestUpload_Validation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.files.Upload(ctx, nil, UploadInput{Name: "big", Size: 2 << 20, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrSizeExceeded)

	// lying size hint: the body itself is limited
	_, err = e.files.Upload(ctx, nil, UploadInput{Name: "big", Size: 1, Body: bytes.NewReader(make([]byte, 2<<20))})
	assert.ErrorIs(t, err, common.ErrSizeExceeded)

	_, err = e.files.Upload(ctx, nil, UploadInput{Name: "x", Size: 1, Password: "short", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrWeakPassword)

	_, err = e.files.Upload(ctx, nil, UploadInput{Name: "  ", Size: 1, Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Equal(t, 0, e.store.FileCount())
	assert.Equal(t, 0, e.blobCount(t))
}

type alwaysFree struct{}

func (alwaysFree) TokenExists(context.Context, string) (bool, error) { return false, nil }

func TestUpload_DuplicateTokenRetriedOnce(t *testing.T) {
	e := newEnv(t)
	first := e.upload(t, nil, "a.txt", "a", "")

	e.files.tokens = NewTokenGenerator(alwaysFree{})
	e.files.tokens.random = sequence(first.AccessToken, "0123456789abcdef0123456789abcdef")

	second := e.upload(t, nil, "b.txt", "b", "")
	assert.Equal(t, "0123456789abcdef0123456789abcdef", second.AccessToken)
	assert.Equal(t, 2, e.store.FileCount())
}

func TestUpload_RecordFailureDiscardsBlob(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	first := e.upload(t, nil, "a.txt", "a", "")

	e.files.tokens = NewTokenGenerator(alwaysFree{})
	e.files.tokens.random = sequence(first.AccessToken)

	_, err := e.files.Upload(ctx, nil, UploadInput{Name: "b.txt", Size: 1, Body: strings.NewReader("b")})
	assert.ErrorIs(t, err, common.ErrTokenExhausted)
	assert.Equal(t, 1, e.store.FileCount())
	assert.Equal(t, 1, e.blobCount(t))
}

func TestUpload_ConcurrentTokensAreUnique(t *testing.T) {
	const n = 64
	e := newEnv(t)

	tokens := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body := fmt.Sprintf("body-%d", i)
			f, err := e.files.Upload(context.Background(), nil, UploadInput{
				Name: fmt.Sprintf("f%d.txt", i),
				Size: int64(len(body)),
				Body: strings.NewReader(body),
			})
			errs[i] = err
			if err == nil {
				tokens[i] = f.AccessToken
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for i := range n {
		require.NoError(t, errs[i])
		seen[tokens[i]] = struct{}{}
	}
	assert.Len(t, seen, n)
	assert.Equal(t, n, e.store.FileCount())
	assert.Equal(t, n, e.blobCount(t))
}

func TestDownload_Errors(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)

	_, err := e.files.Download(ctx, "deadbeef", "")
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	f := e.upload(t, nil, "a.txt", "a", "")
	require.NoError(t, e.blobs.Delete(ctx, f.StoredPath))

	_, err = e.files.Download(ctx, f.AccessToken, "")
	assert.ErrorIs(t, err, common.ErrFileNotFound)
}

func TestBinRestore(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	f := e.upload(t, alice, "a.txt", "a", "")
	_, err := e.shares.Share(ctx, alice, f.AccessToken, "bob")
	require.NoError(t, err)
	require.Equal(t, 1, e.store.ShareCount(f.ID))

	assert.ErrorIs(t, e.files.Bin(ctx, nil, f.AccessToken), common.ErrUnauthenticated)
	assert.ErrorIs(t, e.files.Bin(ctx, bob, f.AccessToken), common.ErrForbidden)
	assert.ErrorIs(t, e.files.Bin(ctx, alice, "missing"), common.ErrFileNotFound)
	assert.ErrorIs(t, e.files.Restore(ctx, alice, f.AccessToken), common.ErrNotBinned)

	require.NoError(t, e.files.Bin(ctx, alice, f.AccessToken))
	assert.Equal(t, 0, e.store.ShareCount(f.ID))
	assert.ErrorIs(t, e.files.Bin(ctx, alice, f.AccessToken), common.ErrAlreadyBinned)

	_, err = e.files.Download(ctx, f.AccessToken, "")
	assert.ErrorIs(t, err, common.ErrFileBinned)

	active, err := e.files.ListActive(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, active)
	binned, err := e.files.ListBinned(ctx, alice)
	require.NoError(t, err)
	require.Len(t, binned, 1)
	assert.NotNil(t, binned[0].DeletedAt)

	assert.ErrorIs(t, e.files.Restore(ctx, bob, f.AccessToken), common.ErrForbidden)
	require.NoError(t, e.files.Restore(ctx, alice, f.AccessToken))
	assert.ErrorIs(t, e.files.Restore(ctx, alice, f.AccessToken), common.ErrNotBinned)

	// shares are not restored
	assert.Equal(t, 0, e.store.ShareCount(f.ID))

	d, err := e.files.Download(ctx, f.AccessToken, "")
	require.NoError(t, err)
	d.Body.Close()
}

func TestBin_AnonymousFileCannotBeBinned(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	f := e.upload(t, nil, "a.txt", "a", "")

	assert.ErrorIs(t, e.files.Bin(context.Background(), alice, f.AccessToken), common.ErrForbidden)
}

func TestPurge(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")
	bob := e.register(t, "bob")

	owned := e.upload(t, alice, "a.txt", "a", "")
	_, err := e.shares.Share(ctx, alice, owned.AccessToken, "bob")
	require.NoError(t, err)

	assert.ErrorIs(t, e.files.Purge(ctx, nil, owned.AccessToken), common.ErrUnauthenticated)
	assert.ErrorIs(t, e.files.Purge(ctx, bob, owned.AccessToken), common.ErrForbidden)

	require.NoError(t, e.files.Bin(ctx, alice, owned.AccessToken))
	require.NoError(t, e.files.Purge(ctx, alice, owned.AccessToken))
	assert.ErrorIs(t, e.files.Purge(ctx, alice, owned.AccessToken), common.ErrFileNotFound)

	_, err = e.files.Download(ctx, owned.AccessToken, "")
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	anon := e.upload(t, nil, "b.txt", "b", "")
	require.NoError(t, e.files.Purge(ctx, bob, anon.AccessToken))

	anon2 := e.upload(t, nil, "c.txt", "c", "")
	require.NoError(t, e.files.Purge(ctx, nil, anon2.AccessToken))

	assert.Equal(t, 0, e.store.FileCount())
	assert.Equal(t, 0, e.blobCount(t))
}

func TestPurge_MissingBlobStillSucceeds(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	f := e.upload(t, nil, "a.txt", "a", "")
	require.NoError(t, e.blobs.Delete(ctx, f.StoredPath))

	require.NoError(t, e.files.Purge(ctx, nil, f.AccessToken))
	assert.Equal(t, 0, e.store.FileCount())
}

func TestListActive_RequiresUser(t *testing.T) {
	_, err := newEnv(t).files.ListActive(context.Background(), nil)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}

func TestBundle(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	_, err := e.files.BundleFiles(ctx, alice)
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	e.upload(t, alice, "a.txt", "alpha", "")
	e.upload(t, alice, "a.txt", "again", "")
	e.upload(t, alice, "secret.txt", "hidden", "secret123")
	binned := e.upload(t, alice, "old.txt", "old", "")
	require.NoError(t, e.files.Bin(ctx, alice, binned.AccessToken))

	files, err := e.files.BundleFiles(ctx, alice)
	require.NoError(t, err)
	require.Len(t, files, 2)

	var buf bytes.Buffer
	require.NoError(t, e.files.Bundle(ctx, &buf, files))

	got := readTarGz(t, &buf)
	assert.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"alpha", "again"}, []string{got["a.txt"], got["a (2).txt"]})
}

func TestBundle_MissingBlobIsSkipped(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t)
	alice := e.register(t, "alice")

	gone := e.upload(t, alice, "gone.txt", "vanished", "")
	e.upload(t, alice, "kept.txt", "still here", "")
	require.NoError(t, e.blobs.Delete(ctx, gone.StoredPath))

	files, err := e.files.BundleFiles(ctx, alice)
	require.NoError(t, err)
	require.Len(t, files, 2)

	var buf bytes.Buffer
	require.NoError(t, e.files.Bundle(ctx, &buf, files))
	assert.Equal(t, map[string]string{"kept.txt": "still here"}, readTarGz(t, &buf))
}

func readTarGz(t *testing.T, r io.Reader) map[string]string {
	t.Helper()
	gz, err := gzip.NewReader(r)
	require.NoError(t, err)
	tr := tar.NewReader(gz)
	got := map[string]string{}
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(b)
	}
	return got
}

func TestBundle_OnlyProtectedFiles(t *testing.T) {
	e := newEnv(t)
	alice := e.register(t, "alice")
	e.upload(t, alice, "secret.txt", "hidden", "secret123")

	_, err := e.files.BundleFiles(context.Background(), alice)
	assert.ErrorIs(t, err, common.ErrFileNotFound)

	var nobody *models.Requester
	_, err = e.files.BundleFiles(context.Background(), nobody)
	assert.ErrorIs(t, err, common.ErrUnauthenticated)
}
