//go:build !linux && unix

package pkg

import (
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// ReadyEvent is one readiness notification returned from a Wait call.
type ReadyEvent struct {
	FD     int
	Events ReadinessMask
}

// Poller abstracts the readiness-polling primitive the Scheduler drives its event
// loop with, so platforms without epoll can still satisfy the same contract.
type Poller interface {
	Register(fd int, events ReadinessMask) error
	Deregister(fd int) error
	PollNow(fd int, events ReadinessMask) ReadinessMask
	Wait(timeout time.Duration) []ReadyEvent
	Wake()
}

// selectPoller backs non-Linux unix platforms (darwin, the BSDs) with select(2)
// through a self-pipe waker. It trades epoll's O(ready) scan for select's O(nfds),
// acceptable at the fd counts a single server process multiplexes.
type selectPoller struct {
	mu       sync.Mutex
	interest map[int]ReadinessMask
	wakeR    int
	wakeW    int
}

func newPoller() (Poller, error) {
	fds := make([]int, 2)
	if err := unix.Pipe(fds); err != nil {
		return nil, err
	}
	unix.SetNonblock(fds[0], true)
	unix.SetNonblock(fds[1], true)
	return &selectPoller{interest: make(map[int]ReadinessMask), wakeR: fds[0], wakeW: fds[1]}, nil
}

func (p *selectPoller) Register(fd int, events ReadinessMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.interest[fd] |= events
	return nil
}

func (p *selectPoller) Deregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.interest, fd)
	return nil
}

func (p *selectPoller) PollNow(fd int, events ReadinessMask) ReadinessMask {
	rset, wset := &unix.FdSet{}, &unix.FdSet{}
	if events&(ReadinessReadable|ReadinessPriority) != 0 {
		rset.Set(fd)
	}
	if events&ReadinessWritable != 0 {
		wset.Set(fd)
	}
	tv := unix.Timeval{}
	n, err := unix.Select(fd+1, rset, wset, nil, &tv)
	if err != nil || n <= 0 {
		return 0
	}
	var ready ReadinessMask
	if rset.IsSet(fd) {
		ready |= ReadinessReadable
	}
	if wset.IsSet(fd) {
		ready |= ReadinessWritable
	}
	return ready
}

func (p *selectPoller) Wait(timeout time.Duration) []ReadyEvent {
	p.mu.Lock()
	interest := make(map[int]ReadinessMask, len(p.interest))
	for fd, ev := range p.interest {
		interest[fd] = ev
	}
	p.mu.Unlock()

	rset, wset := &unix.FdSet{}, &unix.FdSet{}
	maxFD := p.wakeR
	rset.Set(p.wakeR)
	for fd, ev := range interest {
		if ev&(ReadinessReadable|ReadinessPriority) != 0 {
			rset.Set(fd)
		}
		if ev&ReadinessWritable != 0 {
			wset.Set(fd)
		}
		if fd > maxFD {
			maxFD = fd
		}
	}

	var tv *unix.Timeval
	if timeout >= 0 {
		t := unix.NsecToTimeval(timeout.Nanoseconds())
		tv = &t
	}

	n, err := unix.Select(maxFD+1, rset, wset, nil, tv)
	if err != nil || n <= 0 {
		return nil
	}

	var ready []ReadyEvent
	if rset.IsSet(p.wakeR) {
		var buf [64]byte
		unix.Read(p.wakeR, buf[:])
	}
	for fd, ev := range interest {
		var got ReadinessMask
		if ev&(ReadinessReadable|ReadinessPriority) != 0 && rset.IsSet(fd) {
			got |= ReadinessReadable
		}
		if ev&ReadinessWritable != 0 && wset.IsSet(fd) {
			got |= ReadinessWritable
		}
		if got != 0 {
			ready = append(ready, ReadyEvent{FD: fd, Events: got})
		}
	}
	return ready
}

func (p *selectPoller) Wake() {
	var one [1]byte
	unix.Write(p.wakeW, one[:])
}
