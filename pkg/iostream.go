package pkg

import (
	"net"
)

// IOStream is a uniform wrapper over a plain or TLS-wrapped TCP/Unix connection,
// carrying the peer address alongside the raw net.Conn (§3/§4.4).
type IOStream struct {
	net.Conn
	PeerAddr net.Addr
	isTLS    bool
}

func newIOStream(conn net.Conn, isTLS bool) *IOStream {
	return &IOStream{Conn: conn, PeerAddr: conn.RemoteAddr(), isTLS: isTLS}
}

// IsTLS reports whether this stream is carried over a TLS-wrapped connection.
func (s *IOStream) IsTLS() bool { return s.isTLS }
