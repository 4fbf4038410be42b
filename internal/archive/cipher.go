// Package archive produces the download formats served to clients:
// password-sealed ZIP archives and tar.gz bundles.
package archive

import (
	"bytes"
	"fmt"
	"io"

	"github.com/yeka/zip"

	"github.com/dmitrijs2005/gophdrop/internal/common"
)

// Seal writes a single-entry ZIP to w containing r under entryName,
// deflate-compressed and encrypted with WinZip AES-256 using password.
// On error w may hold a partial archive and must be discarded.
func Seal(w io.Writer, r io.Reader, entryName, password string) error {
	if password == "" {
		return fmt.Errorf("%w: empty password", common.ErrEncryptionFailed)
	}

	zw := zip.NewWriter(w)
	ew, err := zw.Encrypt(entryName, password, zip.AES256Encryption)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryptionFailed, err)
	}
	if _, err := io.Copy(ew, r); err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryptionFailed, err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrEncryptionFailed, err)
	}
	return nil
}

// SealBytes is Seal over an in-memory payload.
func SealBytes(plain []byte, entryName, password string) ([]byte, error) {
	var buf bytes.Buffer
	if err := Seal(&buf, bytes.NewReader(plain), entryName, password); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
