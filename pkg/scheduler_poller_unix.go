//go:build linux

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
	// PollNow checks current readiness for fd without blocking or registering interest.
	PollNow(fd int, events ReadinessMask) ReadinessMask
	// Wait blocks up to timeout (negative means indefinite, zero means don't block) and
	// returns any ready events.
	Wait(timeout time.Duration) []ReadyEvent
	// Wake interrupts a blocked Wait call from any goroutine.
	Wake()
}

func toEpollEvents(mask ReadinessMask) uint32 {
	var e uint32
	if mask&ReadinessReadable != 0 {
		e |= unix.EPOLLIN
	}
	if mask&ReadinessPriority != 0 {
		e |= unix.EPOLLPRI
	}
	if mask&ReadinessWritable != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}

func fromEpollEvents(e uint32) ReadinessMask {
	var mask ReadinessMask
	if e&unix.EPOLLIN != 0 {
		mask |= ReadinessReadable
	}
	if e&unix.EPOLLPRI != 0 {
		mask |= ReadinessPriority
	}
	if e&unix.EPOLLOUT != 0 {
		mask |= ReadinessWritable
	}
	return mask
}

// epollPoller is a golang.org/x/sys/unix epoll(7)-backed Poller. The wake fd is an
// eventfd registered for read-readiness so Unblock/Shutdown can interrupt a blocked
// epoll_wait from any goroutine (§4.3's cross-thread waker requirement).
type epollPoller struct {
	epfd   int
	wakeFD int

	mu       sync.Mutex
	interest map[int]ReadinessMask
}

func newPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, _, errno := unix.Syscall(unix.SYS_EVENTFD2, 0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC, 0)
	if errno != 0 {
		unix.Close(epfd)
		return nil, errno
	}

	p := &epollPoller{epfd: epfd, wakeFD: int(wakeFD), interest: make(map[int]ReadinessMask)}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(p.wakeFD)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, p.wakeFD, &ev); err != nil {
		unix.Close(epfd)
		unix.Close(int(wakeFD))
		return nil, err
	}
	return p, nil
}

func (p *epollPoller) Register(fd int, events ReadinessMask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, had := p.interest[fd]
	combined := existing | events
	p.interest[fd] = combined
	ev := unix.EpollEvent{Events: toEpollEvents(combined), Fd: int32(fd)}
	if had {
		return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	}
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (p *epollPoller) Deregister(fd int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.interest, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) PollNow(fd int, events ReadinessMask) ReadinessMask {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: int16(toEpollEvents(events))}}
	n, err := unix.Poll(pfd, 0)
	if err != nil || n == 0 {
		return 0
	}
	return fromEpollEvents(uint32(pfd[0].Revents))
}

func (p *epollPoller) Wait(timeout time.Duration) []ReadyEvent {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout.Milliseconds())
	}

	events := make([]unix.EpollEvent, 64)
	n, err := unix.EpollWait(p.epfd, events, ms)
	if err != nil || n <= 0 {
		return nil
	}

	var ready []ReadyEvent
	for i := 0; i < n; i++ {
		fd := int(events[i].Fd)
		if fd == p.wakeFD {
			var buf [8]byte
			unix.Read(p.wakeFD, buf[:])
			continue
		}
		ready = append(ready, ReadyEvent{FD: fd, Events: fromEpollEvents(events[i].Events)})
	}
	return ready
}

func (p *epollPoller) Wake() {
	var one [8]byte
	one[0] = 1
	unix.Write(p.wakeFD, one[:])
}
