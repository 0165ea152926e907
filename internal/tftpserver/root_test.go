package tftpserver

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alexculea/preboot-oxide/internal/poerr"
	"github.com/stretchr/testify/require"
)

func TestResolvePathRejectsTraversal(t *testing.T) {
	root := t.TempDir()

	cases := []string{
		"../etc/passwd",
		"../../etc/passwd",
		"a/../../etc/passwd",
		"/etc/passwd",
	}
	for _, name := range cases {
		_, err := resolvePath(root, name)
		require.ErrorIs(t, err, poerr.ErrPathEscape, "name=%q", name)
	}
}

func TestResolvePathAllowsNestedFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "pxelinux.cfg"), 0o755))

	full, err := resolvePath(root, "pxelinux.cfg/default")
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "pxelinux.cfg", "default"), full)
}

func TestOpenFileNotFound(t *testing.T) {
	root := t.TempDir()
	_, _, err := openFile(root, "missing.efi")
	require.ErrorIs(t, err, poerr.ErrFileNotFound)
}

func TestOpenFileRejectsDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "subdir"), 0o755))

	_, _, err := openFile(root, "subdir")
	require.ErrorIs(t, err, poerr.ErrFileNotFound)
}

func TestOpenFileReturnsSize(t *testing.T) {
	root := t.TempDir()
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(filepath.Join(root, "boot.efi"), content, 0o644))

	f, size, err := openFile(root, "boot.efi")
	require.NoError(t, err)
	defer f.Close()
	require.Equal(t, int64(len(content)), size)
}

func TestOpenFileRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret"), []byte("x"), 0o644))

	_, _, err := openFile(root, "../"+filepath.Base(outside)+"/secret")
	require.ErrorIs(t, err, poerr.ErrPathEscape)
}
