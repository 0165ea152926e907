// Package tftpserver implements the read-only TFTP server (§4.5): RRQ-only
// RFC 1350 transfers plus the RFC 2347/2348/2349 blksize/tsize/timeout
// option extensions and RFC 7440 windowed flow control, each transfer
// handled on its own ephemeral UDP socket. The Handler abstraction and
// per-transfer ephemeral-socket model is grounded on this repository's
// tftp/handlers.go and pixiecore/tftp.go (a path/addr -> (io.ReadCloser,
// size, error) handler), generalized here to resolve real files under a
// configured root instead of serving fixed in-memory blobs, and with the
// window/retransmit control §4.5 requires that an off-the-shelf TFTP
// library's io.ReaderFrom-style handler does not expose (see DESIGN.md).
package tftpserver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/alexculea/preboot-oxide/internal/poerr"
)

// resolvePath resolves name against root, rejecting any path that
// normalizes outside of it (§4.5 step 1, §8's path-traversal property).
// A request like "../etc/passwd" must fail, not be silently clamped back
// under root.
func resolvePath(root, name string) (string, error) {
	cleaned := filepath.Clean(filepath.ToSlash(name))
	if filepath.IsAbs(cleaned) || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", poerr.ErrPathEscape
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	full := filepath.Join(rootAbs, cleaned)

	rel, err := filepath.Rel(rootAbs, full)
	if err != nil {
		return "", poerr.ErrPathEscape
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", poerr.ErrPathEscape
	}

	return full, nil
}

// openFile resolves and opens name for reading, enforcing §4.5 step 1:
// no path traversal, must exist, must be a regular file.
func openFile(root, name string) (*os.File, int64, error) {
	full, err := resolvePath(root, name)
	if err != nil {
		return nil, 0, err
	}

	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, poerr.ErrFileNotFound
		}
		return nil, 0, err
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, 0, poerr.ErrFileNotFound
	}

	return f, info.Size(), nil
}
