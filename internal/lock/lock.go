// Package lock provides a single-instance guard so two preboot-oxide
// processes never bind the same sockets out of the same config (§6). The
// guard is an advisory file lock on a file under the system temp
// directory, named after a hash of the resolved config path so that
// running against two different configs on the same host is fine, but
// running twice against the same one is not.
package lock

import (
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/blake2b"
)

// Lock holds the single-instance guard for as long as the process runs.
type Lock struct {
	f *os.File
}

// Acquire takes the single-instance lock scoped to confPath. It returns
// poerr.ErrAlreadyRunning if another process already holds it.
func Acquire(confPath string) (*Lock, error) {
	path := pidFilePath(confPath)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("lock: opening %s: %w", path, err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	if err := f.Truncate(0); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.WriteString(fmt.Sprintf("%d\n", os.Getpid())); err != nil {
		f.Close()
		return nil, err
	}

	return &Lock{f: f}, nil
}

// Release drops the lock and removes the pidfile.
func (l *Lock) Release() error {
	path := l.f.Name()
	if err := unlockFile(l.f); err != nil {
		l.f.Close()
		return err
	}
	if err := l.f.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

func pidFilePath(confPath string) string {
	sum := blake2b.Sum256([]byte(confPath))
	name := fmt.Sprintf("preboot-oxide-%x.pid", sum[:8])
	return filepath.Join(os.TempDir(), name)
}
