//go:build unix || linux || darwin || freebsd || netbsd || openbsd || dragonfly || aix

package pkg

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// fileLock is an OS file descriptor held under an exclusive flock(2).
type fileLock struct {
	f *os.File
}

// acquireFileLock opens (creating if absent) path and blocks, retrying with a short
// backoff, until it can take an exclusive non-blocking flock or the timeout elapses.
func acquireFileLock(path string, timeout time.Duration) (fileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o600)
	if err != nil {
		return fileLock{}, err
	}

	deadline := time.Now().Add(timeout)
	for {
		err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
		if err == nil {
			return fileLock{f: f}, nil
		}
		if time.Now().After(deadline) {
			f.Close()
			return fileLock{}, fmt.Errorf("timed out acquiring lock on %s: %w", path, err)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (l fileLock) Release() error {
	if l.f == nil {
		return nil
	}
	_ = unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
