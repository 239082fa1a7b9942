//go:build windows

package pkg

import (
	"log"
	"os"
	"os/signal"
	"time"
)

// SignalManager on Windows only wires the signals Go's os/signal package
// actually supports there (os.Interrupt); SIGHUP/SIGUSR1/SIGUSR2/SIGTTIN/
// SIGTTOU/SIGCHLD have no Windows analogue, so Restart/Reload/worker-count/
// reap are unreachable on this platform (ClusterMode is a Unix-only serve
// strategy here, matching prepareFDForHandover's unix-only FD handover).
type SignalManager struct {
	framework     *Framework
	shutdownGrace time.Duration

	ReloadFunc  func()
	WorkerDelta func(delta int)

	sigCh chan os.Signal
	stop  chan struct{}
}

func NewSignalManager(f *Framework, shutdownGrace time.Duration) *SignalManager {
	if shutdownGrace <= 0 {
		shutdownGrace = 30 * time.Second
	}
	return &SignalManager{
		framework:     f,
		shutdownGrace: shutdownGrace,
		sigCh:         make(chan os.Signal, 1),
		stop:          make(chan struct{}),
	}
}

func (sm *SignalManager) Install() {
	signal.Notify(sm.sigCh, os.Interrupt)
	go sm.loop()
}

func (sm *SignalManager) Stop() {
	signal.Stop(sm.sigCh)
	close(sm.stop)
}

func (sm *SignalManager) loop() {
	for {
		select {
		case <-sm.stop:
			return
		case <-sm.sigCh:
			log.Println("shutdown signal received, draining in-flight requests")
			if err := sm.framework.Shutdown(sm.shutdownGrace); err != nil {
				log.Printf("shutdown error: %v", err)
				os.Exit(1)
			}
			os.Exit(0)
		}
	}
}
