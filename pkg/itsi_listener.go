package pkg

import (
	"crypto/tls"
	"fmt"
	"net"
	"os"
)

// ItsiListener owns a bound socket exclusively and yields IOStreams (§3/§4.4). It is
// either freshly created from a Bind or inherited from an FD handed over across a
// re-exec (§6).
type ItsiListener struct {
	Bind *Bind
	TLS  *TLSAcceptor

	raw net.Listener
}

// NewListenerFromBind creates a fresh socket for bind b, applying SO_REUSEADDR,
// SO_REUSEPORT, TCP_NODELAY and any buffer sizes set in opts. opts.Backlog is not
// applied; the listen backlog is the one the Go net package picks.
func NewListenerFromBind(b *Bind, opts ListenerConfig) (*ItsiListener, error) {
	opts.Network, opts.Address = networkAndAddress(b)
	opts.ReuseAddr = true
	opts.ReusePort = true
	opts.NoDelay = true

	raw, err := CreateListener(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener for %s: %w", b.String(), err)
	}

	var acceptor *TLSAcceptor
	if b.TLS != nil {
		acceptor, err = BuildTLSAcceptor(b.TLS.Host, b.TLS.Options)
		if err != nil {
			raw.Close()
			return nil, err
		}
	}

	return &ItsiListener{Bind: b, TLS: acceptor, raw: raw}, nil
}

// AdoptInheritedListener rebuilds an ItsiListener from an inherited FD without
// re-binding (§4.10's reload-vs-re-exec handover path).
func AdoptInheritedListener(b *Bind, fd int) (*ItsiListener, error) {
	network, _ := networkAndAddress(b)
	raw, err := inheritListener(fd, network)
	if err != nil {
		return nil, err
	}

	var acceptor *TLSAcceptor
	if b.TLS != nil {
		acceptor, err = BuildTLSAcceptor(b.TLS.Host, b.TLS.Options)
		if err != nil {
			raw.Close()
			return nil, err
		}
	}

	return &ItsiListener{Bind: b, TLS: acceptor, raw: raw}, nil
}

func networkAndAddress(b *Bind) (string, string) {
	if b.Address.IsUnix() {
		return "unix", b.Address.UnixPath
	}
	port := 0
	if b.Port != nil {
		port = *b.Port
	}
	return "tcp", fmt.Sprintf("%s:%d", b.Address.IP.String(), port)
}

// Accept blocks for the next connection and wraps it into an IOStream. For a TLS
// listener, the handshake runs synchronously in this call for manual acceptors;
// ACME acceptors may return a Pass error for non-HTTPS-handshake probe traffic,
// which callers should treat as "continue accepting" rather than a hard failure.
func (l *ItsiListener) Accept() (*IOStream, error) {
	conn, err := l.raw.Accept()
	if err != nil {
		return nil, err
	}

	if l.TLS == nil {
		return newIOStream(conn, false), nil
	}

	tlsConn := tls.Server(conn, l.TLS.Config)
	if err := tlsConn.Handshake(); err != nil {
		conn.Close()
		return nil, NewCoreError(KindClientConnectionClosed, fmt.Sprintf("tls handshake failed: %v", err))
	}
	if l.TLS.IsChallengeProbe(tlsConn) {
		tlsConn.Close()
		return nil, NewCoreError(KindPass, "acme-tls/1 challenge probe")
	}

	return newIOStream(tlsConn, true), nil
}

// File returns a dup of the listener's backing file for handover across a
// re-exec (the dup rides os/exec's ExtraFiles into the child).
func (l *ItsiListener) File() (*os.File, error) {
	type filer interface {
		File() (*os.File, error)
	}
	f, ok := l.raw.(filer)
	if !ok {
		return nil, NewCoreError(KindUnsupportedProtocol, "listener does not support FD handover")
	}
	return f.File()
}

// FD returns the raw file descriptor backing this listener, for handover (§6).
// The returned *os.File is a dup of the listener's fd; callers must keep it alive
// for as long as the fd needs to remain valid across exec.
func (l *ItsiListener) FD() (int, error) {
	type filer interface {
		File() (*os.File, error)
	}
	f, ok := l.raw.(filer)
	if !ok {
		return 0, NewCoreError(KindUnsupportedProtocol, "listener does not support FD handover")
	}
	osFile, err := f.File()
	if err != nil {
		return 0, err
	}
	fd := int(osFile.Fd())
	prepareFDForHandover(fd)
	return fd, nil
}

func (l *ItsiListener) Close() error {
	return l.raw.Close()
}

func (l *ItsiListener) Addr() net.Addr {
	return l.raw.Addr()
}
