package archive

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// ErrSkip, returned by BundleEntry.Open, leaves the entry out of the bundle.
var ErrSkip = errors.New("skip bundle entry")

// BundleEntry is one file of a bundle. Open is called lazily, right before
// the entry is written.
type BundleEntry struct {
	Name    string
	Size    int64
	ModTime time.Time
	Open    func(ctx context.Context) (io.ReadCloser, error)
}

// Bundle writes entries to w as a gzip-compressed tar stream. Repeated names
// get a " (n)" suffix before the extension.
func Bundle(ctx context.Context, w io.Writer, entries []BundleEntry) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	seen := make(map[string]int, len(entries))
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEntry(ctx, tw, seen, e); err != nil {
			if errors.Is(err, ErrSkip) {
				continue
			}
			return err
		}
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close gzip: %w", err)
	}
	return nil
}

func writeEntry(ctx context.Context, tw *tar.Writer, seen map[string]int, e BundleEntry) error {
	rc, err := e.Open(ctx)
	if err != nil {
		return fmt.Errorf("open %s: %w", e.Name, err)
	}
	defer rc.Close()

	name := uniqueName(seen, e.Name)
	hdr := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Size:     e.Size,
		Mode:     0o644,
		ModTime:  e.ModTime,
		Format:   tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}
	n, err := io.Copy(tw, rc)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	if n != e.Size {
		return fmt.Errorf("write %s: size mismatch, want %d got %d", name, e.Size, n)
	}
	return nil
}

func uniqueName(seen map[string]int, name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" || name == ".." {
		name = "file"
	}
	for {
		seen[name]++
		if seen[name] == 1 {
			return name
		}
		ext := path.Ext(name)
		candidate := fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), seen[name], ext)
		if seen[candidate] == 0 {
			seen[candidate] = 1
			return candidate
		}
	}
}
