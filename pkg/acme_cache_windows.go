//go:build windows

package pkg

import "time"

// fileLock on Windows degrades to process-local exclusivity; the ACME cache
// directory is not expected to be shared across processes on this platform.
type fileLock struct{}

func acquireFileLock(path string, timeout time.Duration) (fileLock, error) {
	return fileLock{}, nil
}

func (l fileLock) Release() error { return nil }
