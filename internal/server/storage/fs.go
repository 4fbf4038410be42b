package storage

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

const tmpPrefix = ".upload-"

// FSStore keeps blobs in a local directory.
type FSStore struct {
	root string
	now  func() time.Time
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	if err := os.MkdirAll(filepath.Join(root, Prefix), 0o750); err != nil {
		return nil, common.StorageError("create data dir", err)
	}
	return &FSStore{root: root, now: time.Now}, nil
}

func (s *FSStore) fullPath(key string) (string, error) {
	p := filepath.FromSlash(key)
	if !filepath.IsLocal(p) || !strings.HasPrefix(key, Prefix+"/") {
		return "", common.ErrBlobNotFound
	}
	return filepath.Join(s.root, p), nil
}

// Put streams r into a temp file next to the destination, fsyncs it and
// renames it into place, so readers never observe a partial blob.
func (s *FSStore) Put(ctx context.Context, r io.Reader, name string) (*Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.now()
	key := NewKey(now, name)
	full, _ := s.fullPath(key)
	dir := filepath.Dir(full)

	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, common.StorageError("create dir", err)
	}

	f, err := os.CreateTemp(dir, tmpPrefix+"*")
	if err != nil {
		return nil, common.StorageError("create temp file", err)
	}
	tmp := f.Name()

	size, err := io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		f.Close()
		os.Remove(tmp)
		if errors.Is(err, common.ErrSizeExceeded) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, common.StorageError("write", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return nil, common.StorageError("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return nil, common.StorageError("close", err)
	}
	if err := os.Rename(tmp, full); err != nil {
		os.Remove(tmp)
		return nil, common.StorageError("rename", err)
	}

	return &Object{Path: key, Size: size, ModTime: now}, nil
}

func (s *FSStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, common.ErrBlobNotFound
		}
		return nil, common.StorageError("open", err)
	}
	return f, nil
}

func (s *FSStore) Delete(_ context.Context, key string) error {
	full, err := s.fullPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return common.ErrBlobNotFound
		}
		return common.StorageError("delete", err)
	}
	return nil
}

func (s *FSStore) Exists(_ context.Context, key string) (bool, error) {
	full, err := s.fullPath(key)
	if err != nil {
		return false, nil
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, common.StorageError("stat", err)
	}
	return true, nil
}

// Walk also reports temp files left behind by interrupted uploads. They have
// no record, so the sweeper reclaims them once they are past the orphan grace.
func (s *FSStore) Walk(ctx context.Context, fn func(Object) error) error {
	base := filepath.Join(s.root, Prefix)
	return filepath.WalkDir(base, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return common.StorageError("walk", err)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return common.StorageError("stat", err)
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return common.StorageError("walk", err)
		}
		return fn(Object{Path: filepath.ToSlash(rel), Size: info.Size(), ModTime: info.ModTime()})
	})
}

// ctxReader stops a long copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
