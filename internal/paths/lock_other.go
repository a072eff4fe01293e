//go:build !unix

package paths

import (
	"fmt"
	"os"
)

// InstanceLock is the non-unix fallback: it only guards against a
// second process racing the same path by holding the file open with
// exclusive create semantics, since flock has no portable
// non-unix equivalent here.
type InstanceLock struct {
	file *os.File
}

// AcquireLock opens path exclusively, failing if it already exists.
// The file is removed on Release so a later AcquireLock can succeed;
// an unclean process exit (no Release) leaves the lock file behind,
// unlike the unix flock-based variant.
func AcquireLock(path string) (*InstanceLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0o600)
	if err != nil {
		return nil, fmt.Errorf("another tako instance is running (lock held on %s)", path)
	}
	return &InstanceLock{file: f}, nil
}

// Release closes and removes the lock file. Safe to call more than once.
func (l *InstanceLock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	path := l.file.Name()
	err := l.file.Close()
	l.file = nil
	_ = os.Remove(path)
	return err
}
