package filex

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEnsureParentDir_CreatesDirectory(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "a", "b", "history.db")

	require.NoError(t, EnsureParentDir(path))

	fi, err := os.Stat(filepath.Join(tmp, "a", "b"))
	require.NoError(t, err)
	require.True(t, fi.IsDir(), "should create a directory")

	if runtime.GOOS != "windows" {
		perm := fi.Mode().Perm()
		require.Equal(t, os.FileMode(0o700), perm&0o700)
	}
}

func TestEnsureParentDir_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "x.db")

	require.NoError(t, EnsureParentDir(path))
	require.NoError(t, EnsureParentDir(path))
}

func TestEnsureParentDir_BareName(t *testing.T) {
	require.NoError(t, EnsureParentDir("history.db"))
}

func TestEnsureParentDir_FailsIfFileWithSameNameExists(t *testing.T) {
	tmp := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmp, "sub"), []byte("x"), 0o660))

	err := EnsureParentDir(filepath.Join(tmp, "sub", "x.db"))
	require.Error(t, err, "should fail when a file exists with the same name")
}

func TestFreePath(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "report.pdf")

	got, err := FreePath(path)
	require.NoError(t, err)
	require.Equal(t, path, got)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
	got, err = FreePath(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "report (1).pdf"), got)

	require.NoError(t, os.WriteFile(got, []byte("x"), 0o600))
	got, err = FreePath(path)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(tmp, "report (2).pdf"), got)
}
