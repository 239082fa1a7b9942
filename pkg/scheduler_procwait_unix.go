//go:build unix || linux || darwin || freebsd || netbsd || openbsd || dragonfly || aix

package pkg

import (
	"golang.org/x/sys/unix"
)

// ProcessStatus is the outcome of a ProcessWait: the pid that changed state and
// its raw wait status.
type ProcessStatus struct {
	PID    int
	Status unix.WaitStatus
}

type processWaitResult struct {
	status ProcessStatus
	err    error
}

// ProcessWait suspends the calling fiber until the given pid changes state,
// offloading the blocking wait4(2) to a transient goroutine that posts the result
// back through Unblock, the same shape AddressResolve uses.
func (s *Scheduler) ProcessWait(f *Fiber, pid int, flags int) (ProcessStatus, error) {
	s.beginBlock(f, 0)
	go func() {
		var ws unix.WaitStatus
		wpid, err := unix.Wait4(pid, &ws, flags, nil)
		s.Unblock(f.id, f, processWaitResult{status: ProcessStatus{PID: wpid, Status: ws}, err: err})
	}()
	v, err := s.awaitBlock(f)
	if err != nil {
		return ProcessStatus{}, err
	}
	res := v.(processWaitResult)
	return res.status, res.err
}
