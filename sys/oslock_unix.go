//go:build unix

package sys

import (
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// AcquireOSFileLock takes the dataset writer lock with flock on lockPath,
// polling every lockRetryInterval until timeout. Release removes the lock
// file before unlocking it.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	fd := int(f.Fd())

	deadline := time.Now().Add(timeout)
	for {
		if err = unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err == nil {
			break
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, err
		}
		time.Sleep(lockRetryInterval)
	}
	return func() error {
		os.Remove(lockPath)
		unix.Flock(fd, unix.LOCK_UN)
		return f.Close()
	}, nil
}
