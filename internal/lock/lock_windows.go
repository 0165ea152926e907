//go:build windows

package lock

import "os"

// lockFile is a no-op on Windows; this process's single-instance guard
// only provides advisory locking where flock(2) exists. Running twice
// against the same config on Windows is not detected.
func lockFile(f *os.File) error { return nil }

func unlockFile(f *os.File) error { return nil }
