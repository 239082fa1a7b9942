package pkg

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// ParseBindList splits a comma-separated bind-URI list and parses each entry with
// ParseBind (§4.1). A single bare address with no scheme is treated as one bind.
func ParseBindList(raw string) ([]*Bind, error) {
	parts := strings.Split(raw, ",")
	binds := make([]*Bind, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := ParseBind(p)
		if err != nil {
			return nil, fmt.Errorf("bind %q: %w", p, err)
		}
		binds = append(binds, b)
	}
	if len(binds) == 0 {
		return nil, fmt.Errorf("no binds specified")
	}
	return binds, nil
}

// itsiListenerAdapter makes an ItsiListener satisfy net.Listener, so the existing
// net/http-based httpServer.ServeListener can drive it without caring whether the
// underlying socket is plain, TLS-terminated, fresh, or inherited across a re-exec.
type itsiListenerAdapter struct {
	inner *ItsiListener
}

func (a *itsiListenerAdapter) Accept() (net.Conn, error) {
	for {
		stream, err := a.inner.Accept()
		if err != nil {
			if IsPass(err) {
				continue // ACME challenge probe or similar: keep accepting (§4.2)
			}
			return nil, err
		}
		return stream, nil
	}
}

func (a *itsiListenerAdapter) Close() error   { return a.inner.Close() }
func (a *itsiListenerAdapter) Addr() net.Addr { return a.inner.Addr() }

const envPreforkWorkerIndex = "ITSI_PREFORK_WORKER_INDEX"

// bindWantsHTTP3 reports whether a bind asked for an additional HTTP/3 (QUIC)
// listener via the h3=true query option. Only TLS TCP binds qualify: QUIC has
// no cleartext or unix-socket form.
func bindWantsHTTP3(b *Bind) bool {
	if b.TLS == nil || b.Address.IsUnix() {
		return false
	}
	return strings.EqualFold(b.TLS.Options["h3"], "true")
}

// ListenBinds starts the framework across every bind in the comma-separated raw
// list, forking `workers` worker processes first when workers > 1 (§4.9 cluster
// mode). In the master of a multi-worker run this spawns children and waits on
// them; each child (or the sole process in single-worker mode) binds every address
// in raw and serves until one listener returns a fatal error or the process is
// asked to shut down.
func (f *Framework) ListenBinds(raw string, workers int) error {
	if workers > 1 && os.Getenv(envPreforkWorkerIndex) == "" {
		return f.runPreforkMaster(raw, workers)
	}

	binds, err := ParseBindList(raw)
	if err != nil {
		return err
	}

	server := f.serverManager.NewServer(f.buildServeConfig())
	httpSrv, ok := server.(*httpServer)
	if !ok {
		return NewCoreError(KindUnsupportedProtocol, "server manager did not produce an httpServer")
	}

	httpSrv.SetRouter(f.router)
	httpSrv.SetMiddleware(f.globalMiddleware...)
	if f.errorHandler != nil {
		httpSrv.SetErrorHandler(f.errorHandler)
	}
	logger := NewLogger(nil)
	httpSrv.SetManagers(logger, f.database, f.cache, f.config, f.security)
	for _, hook := range f.shutdownHooks {
		httpSrv.RegisterShutdownHook(hook)
	}

	if err := f.runStartupHooks(); err != nil {
		return err
	}
	if err := f.wireItsiPipeline(server); err != nil {
		return err
	}

	// Register the server so Framework.Shutdown's GracefulShutdown pass finds
	// it and drains in-flight requests (§4.10); one httpServer serves every
	// bind, so it is registered once under the first bind-string.
	if err := f.serverManager.AddServer(binds[0].String(), server); err != nil {
		return err
	}
	f.isRunning = true

	// Bind (or adopt, after a re-exec) every listener before installing signal
	// handling, so a restart signal always sees the complete handover set.
	inherited, err := inheritedListenersFromEnv()
	if err != nil {
		return err
	}
	listeners := make(map[string]*ItsiListener, len(binds))
	for _, b := range binds {
		var listener *ItsiListener
		if fd, ok := inherited[b.String()]; ok {
			listener, err = AdoptInheritedListener(b, fd)
		} else {
			listener, err = NewListenerFromBind(b, ListenerConfig{})
		}
		if err != nil {
			for _, l := range listeners {
				l.Close()
			}
			return fmt.Errorf("bind %s: %w", b.String(), err)
		}
		listeners[b.String()] = listener
	}
	f.boundListeners = listeners

	sigMgr := NewSignalManager(f, 30*time.Second)
	sigMgr.WorkerDelta = func(delta int) {
		if f.workerPool == nil {
			return
		}
		if delta > 0 {
			for i := 0; i < delta; i++ {
				if err := f.workerPool.AddWorker(); err != nil {
					logger.Error(fmt.Sprintf("failed to add worker: %v", err))
					return
				}
			}
		} else {
			for i := 0; i < -delta; i++ {
				f.workerPool.RemoveWorker()
			}
		}
	}
	sigMgr.ReloadFunc = func() {
		if f.config == nil {
			return
		}
		if err := f.config.Reload(); err != nil {
			logger.Error(fmt.Sprintf("config reload failed: %v", err))
			return
		}
		logger.Info("configuration reloaded from disk")
	}
	sigMgr.Install()
	defer sigMgr.Stop()

	var wg sync.WaitGroup
	errCh := make(chan error, 2*len(binds))

	for _, b := range binds {
		listener := listeners[b.String()]

		wg.Add(1)
		go func(b *Bind, l *ItsiListener) {
			defer wg.Done()
			adapter := &itsiListenerAdapter{inner: l}
			if serveErr := httpSrv.ServeListener(adapter); serveErr != nil {
				errCh <- fmt.Errorf("bind %s: %w", b.String(), serveErr)
			}
		}(b, listener)

		// h3=true on a TLS TCP bind additionally serves the same handler over
		// QUIC on the same host:port (§4.13), reusing the bind's TLS acceptor.
		if bindWantsHTTP3(b) && listener.TLS != nil {
			_, addr := networkAndAddress(b)
			wg.Add(1)
			go func(b *Bind, addr string, tlsCfg *tls.Config) {
				defer wg.Done()
				if serveErr := httpSrv.ServeHTTP3(addr, tlsCfg); serveErr != nil {
					errCh <- fmt.Errorf("bind %s (h3): %w", b.String(), serveErr)
				}
			}(b, addr, listener.TLS.Config)
		}
	}

	wg.Wait()
	close(errCh)
	for e := range errCh {
		if e != nil {
			return e
		}
	}
	return nil
}

func (f *Framework) buildServeConfig() ServerConfig {
	return ServerConfig{
		EnableHTTP1: true,
		EnableHTTP2: true,
	}
}

func (f *Framework) runStartupHooks() error {
	ctx := context.Background()
	for _, hook := range f.startupHooks {
		if err := hook(ctx); err != nil {
			return fmt.Errorf("startup hook failed: %w", err)
		}
	}
	return nil
}

// runPreforkMaster spawns `workers` copies of the current executable, each tagged
// with its worker index via ITSI_PREFORK_WORKER_INDEX, and waits for all of them
// (§4.9). It does not itself bind any socket. Per §4.10's ClusterMode, the
// supervisor respawns any worker that dies before a shutdown was requested;
// SIGINT/SIGTERM to the master stop respawning and forward the signal to every
// child so they drain gracefully via their own SingleMode SignalManager.
func (f *Framework) runPreforkMaster(raw string, workers int) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to resolve executable for prefork: %w", err)
	}

	var shuttingDown atomic.Bool
	var mu sync.Mutex
	children := make([]*exec.Cmd, workers)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		shuttingDown.Store(true)
		mu.Lock()
		for _, c := range children {
			if c != nil && c.Process != nil {
				_ = c.Process.Signal(syscall.SIGTERM)
			}
		}
		mu.Unlock()
	}()

	spawn := func(idx int) (*exec.Cmd, error) {
		cmd := exec.Command(executable, os.Args[1:]...)
		cmd.Env = append(os.Environ(), fmt.Sprintf("%s=%d", envPreforkWorkerIndex, idx))
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		if err := cmd.Start(); err != nil {
			return nil, fmt.Errorf("failed to spawn worker %d: %w", idx, err)
		}
		return cmd, nil
	}

	var wg sync.WaitGroup
	errCh := make(chan error, workers)

	for i := 0; i < workers; i++ {
		cmd, err := spawn(i)
		if err != nil {
			return err
		}
		mu.Lock()
		children[i] = cmd
		mu.Unlock()

		wg.Add(1)
		go func(idx int, c *exec.Cmd) {
			defer wg.Done()
			for {
				werr := c.Wait()
				if shuttingDown.Load() {
					return
				}
				if werr == nil {
					return // clean exit outside a shutdown request: don't respawn
				}
				next, spawnErr := spawn(idx)
				if spawnErr != nil {
					errCh <- fmt.Errorf("worker %d respawn failed: %w", idx, spawnErr)
					return
				}
				mu.Lock()
				children[idx] = next
				mu.Unlock()
				c = next
			}
		}(i, cmd)
	}

	wg.Wait()
	close(errCh)
	for e := range errCh {
		if e != nil {
			return e
		}
	}
	return nil
}
