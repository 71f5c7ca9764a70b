//go:build unix

package fsutil

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

type flockUnlocker struct {
	f *os.File
}

// Lock takes an exclusive flock on "<name>.lock", creating it if needed.
// flock locks belong to the open file description, so separate Lock calls
// exclude each other within one process as well as across processes.
func (OSFileSystem) Lock(name string) (Unlocker, error) {
	f, err := os.OpenFile(LockPath(name), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	for {
		err = unix.Flock(int(f.Fd()), unix.LOCK_EX)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("flock %s: %w", LockPath(name), err)
	}
	return flockUnlocker{f: f}, nil
}

func (u flockUnlocker) Unlock() error {
	err := unix.Flock(int(u.f.Fd()), unix.LOCK_UN)
	if cerr := u.f.Close(); err == nil {
		err = cerr
	}
	return err
}
