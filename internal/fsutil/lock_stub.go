//go:build !unix

package fsutil

import "sync"

var stubLocks sync.Map

// Lock falls back to a process-local mutex on platforms without flock.
// Concurrent writer processes are not excluded there.
func (OSFileSystem) Lock(name string) (Unlocker, error) {
	v, _ := stubLocks.LoadOrStore(LockPath(name), &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return memUnlocker{mu}, nil
}
