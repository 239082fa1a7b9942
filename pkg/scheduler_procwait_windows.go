//go:build windows

package pkg

// ProcessStatus is the outcome of a ProcessWait. Windows has no wait4(2)
// analogue; the Status field is the raw exit code.
type ProcessStatus struct {
	PID    int
	Status int
}

// ProcessWait is unsupported on Windows: child-process supervision there goes
// through os/exec's own Wait, not raw pid waits.
func (s *Scheduler) ProcessWait(f *Fiber, pid int, flags int) (ProcessStatus, error) {
	return ProcessStatus{}, NewCoreError(KindUnsupportedProtocol, "process_wait is not supported on windows")
}
