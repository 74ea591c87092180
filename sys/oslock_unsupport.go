//go:build !unix && !windows

package sys

import "time"

// AcquireOSFileLock has no advisory lock to offer here; AcquireWriterLock
// falls back to an exclusively created lock file.
func AcquireOSFileLock(string, time.Duration) (func() error, error) {
	return nil, ErrOSFileLockNotSupported
}
