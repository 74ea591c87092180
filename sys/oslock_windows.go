//go:build windows

package sys

import (
	"os"
	"time"

	"golang.org/x/sys/windows"
)

// AcquireOSFileLock takes the dataset writer lock with LockFileEx on the
// first byte of lockPath, polling every lockRetryInterval until timeout.
// Release closes the handle before removing the lock file.
func AcquireOSFileLock(lockPath string, timeout time.Duration) (func() error, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	h := windows.Handle(f.Fd())
	ov := new(windows.Overlapped)
	const flags = windows.LOCKFILE_EXCLUSIVE_LOCK | windows.LOCKFILE_FAIL_IMMEDIATELY

	deadline := time.Now().Add(timeout)
	for {
		if err = windows.LockFileEx(h, flags, 0, 1, 0, ov); err == nil {
			break
		}
		if time.Now().After(deadline) {
			f.Close()
			return nil, err
		}
		time.Sleep(lockRetryInterval)
	}
	return func() error {
		windows.UnlockFileEx(h, 0, 1, 0, ov)
		if err := f.Close(); err != nil {
			return err
		}
		if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}, nil
}
