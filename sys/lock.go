package sys

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"time"
)

// ErrLocked is returned when another writer holds the dataset lock.
var ErrLocked = errors.New("dataset is locked by another writer")

// DefaultLockTimeout is how long AcquireWriterLock waits for a busy lock.
var DefaultLockTimeout = 2 * time.Second

const lockRetryInterval = 25 * time.Millisecond

// AcquireWriterLock takes the single-writer lock for the dataset at path.
// The lock lives in path + ".lock". An OS advisory lock is used where the
// platform has one; elsewhere the lock file is created exclusively. The
// returned function releases the lock and removes the lock file.
func AcquireWriterLock(path string, timeout time.Duration) (func() error, error) {
	lockPath := path + ".lock"
	rel, err := AcquireOSFileLock(lockPath, timeout)
	if err == nil {
		writeLockOwner(lockPath)
		return rel, nil
	}
	if !errors.Is(err, ErrOSFileLockNotSupported) {
		return nil, fmt.Errorf("AcquireWriterLock %s: %w (%v)", lockPath, ErrLocked, err)
	}

	deadline := time.Now().Add(timeout)
	for {
		f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
		if err == nil {
			f.Close()
			writeLockOwner(lockPath)
			return func() error {
				if err := os.Remove(lockPath); err != nil && !os.IsNotExist(err) {
					return err
				}
				return nil
			}, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("AcquireWriterLock %s: %w", lockPath, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("AcquireWriterLock %s: %w", lockPath, ErrLocked)
		}
		time.Sleep(lockRetryInterval)
	}
}

// writeLockOwner records pid (uint32) and unixnano timestamp (uint64) in the
// lock file for diagnostics. Errors are ignored.
func writeLockOwner(lockPath string) {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(os.Getpid()))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(time.Now().UTC().UnixNano()))
	_ = os.WriteFile(lockPath, buf, 0644)
}

// LockOwner reads the pid and acquisition time recorded in a lock file.
func LockOwner(path string) (pid int, since time.Time, err error) {
	b, err := os.ReadFile(path + ".lock")
	if err != nil {
		return 0, time.Time{}, err
	}
	if len(b) < 12 {
		return 0, time.Time{}, fmt.Errorf("lock file %s.lock: unexpected content", path)
	}
	pid = int(binary.LittleEndian.Uint32(b[0:4]))
	since = time.Unix(0, int64(binary.LittleEndian.Uint64(b[4:12])))
	return pid, since, nil
}

// ErrOSFileLockNotSupported is returned by AcquireOSFileLock on platforms
// without advisory locks.
var ErrOSFileLockNotSupported = errors.New("OS file locking not supported on this platform")
