package pkg

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// BindProtocol identifies the wire protocol a Bind listens for.
type BindProtocol int

const (
	BindProtocolHTTP BindProtocol = iota
	BindProtocolHTTPS
	BindProtocolUnix
	BindProtocolUnixs
)

func (p BindProtocol) String() string {
	switch p {
	case BindProtocolHTTP:
		return "http"
	case BindProtocolHTTPS:
		return "https"
	case BindProtocolUnix:
		return "unix"
	case BindProtocolUnixs:
		return "unixs"
	default:
		return "unknown"
	}
}

func parseBindProtocol(s string) (BindProtocol, error) {
	switch strings.ToLower(s) {
	case "http", "tcp":
		return BindProtocolHTTP, nil
	case "https":
		return BindProtocolHTTPS, nil
	case "unix":
		return BindProtocolUnix, nil
	case "unixs":
		return BindProtocolUnixs, nil
	default:
		return 0, NewCoreError(KindInvalidInput, fmt.Sprintf("unsupported bind scheme: %s", s))
	}
}

// BindAddress is either an IP (v4 or v6) or a Unix domain socket path.
type BindAddress struct {
	IP       net.IP
	UnixPath string
}

func (a BindAddress) IsUnix() bool { return a.UnixPath != "" }

// TLSOptions carries the raw query-string options for TLS provisioning (§4.2), keyed
// by the recognised parameter names (cert, key, domains, domain, acme_email, ...).
type TLSOptions struct {
	Host    string
	Options map[string]string
}

// Bind is the parsed form of a bind URI: address + port + protocol + optional TLS
// options. See §4.1 of the design for the exact parsing rules this implements.
type Bind struct {
	Address  BindAddress
	Port     *int // nil for Unix sockets
	Protocol BindProtocol
	TLS      *TLSOptions
}

// String renders the canonical bind-string form used as the key in the FD handover
// map (§6): "tcp://host:port" or "unix:///path".
func (b *Bind) String() string {
	if b.Address.IsUnix() {
		return fmt.Sprintf("unix://%s", b.Address.UnixPath)
	}
	port := 0
	if b.Port != nil {
		port = *b.Port
	}
	return fmt.Sprintf("tcp://%s:%d", b.Address.IP.String(), port)
}

// ParseBind parses a bind URI of the form scheme://host[:port][?k=v&...] into a Bind.
// Missing scheme defaults to https. IPv6 literals must be bracketed when a port is
// given. unix[s]://<path> yields a Unix-socket bind with no port. Hostnames are
// resolved preferring IPv4.
func ParseBind(raw string) (*Bind, error) {
	protocol := BindProtocolHTTPS
	remainder := raw
	if idx := strings.Index(raw, "://"); idx >= 0 {
		p, err := parseBindProtocol(raw[:idx])
		if err != nil {
			return nil, err
		}
		protocol = p
		remainder = raw[idx+3:]
	}

	url := remainder
	options := map[string]string{}
	if idx := strings.IndexByte(remainder, '?'); idx >= 0 {
		url = remainder[:idx]
		options = parseBindOptions(remainder[idx+1:])
	}

	var host, portStr string
	var hasPort bool

	switch {
	case strings.HasPrefix(url, "["):
		end := strings.IndexByte(url, ']')
		if end < 0 {
			return nil, NewCoreError(KindInvalidInput, "invalid IPv6 address format")
		}
		host = url[1:end]
		rest := url[end+1:]
		if strings.HasPrefix(rest, ":") {
			portStr = rest[1:]
			hasPort = true
		}
	case strings.LastIndexByte(url, ':') >= 0 && looksLikeHostPort(url):
		idx := strings.LastIndexByte(url, ':')
		host, portStr = url[:idx], url[idx+1:]
		hasPort = true
	default:
		host = url
	}

	if net.ParseIP(host) != nil && strings.Contains(host, ":") && !strings.Contains(url, "[") {
		return nil, NewCoreError(KindInvalidInput, "IPv6 addresses must use [ ] when specifying a port")
	}

	var port *int
	if hasPort {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("invalid port: %s", portStr))
		}
		port = &p
	}

	address := BindAddress{}
	switch protocol {
	case BindProtocolUnix, BindProtocolUnixs:
		address.UnixPath = host
		port = nil
	default:
		if ip := net.ParseIP(host); ip != nil {
			address.IP = ip
		} else {
			ip, err := resolveHostname(host)
			if err != nil {
				return nil, NewCoreError(KindInvalidInput, fmt.Sprintf("failed to resolve hostname %s", host))
			}
			address.IP = ip
		}
	}

	switch protocol {
	case BindProtocolHTTP:
		if port == nil {
			p := 80
			port = &p
		}
	case BindProtocolHTTPS:
		if port == nil {
			p := 443
			port = &p
		}
	}

	var tlsOpts *TLSOptions
	switch protocol {
	case BindProtocolHTTPS, BindProtocolUnixs:
		tlsOpts = &TLSOptions{Host: host, Options: options}
	}

	return &Bind{Address: address, Port: port, Protocol: protocol, TLS: tlsOpts}, nil
}

// looksLikeHostPort distinguishes "host:port" from a bare IPv6 literal with no brackets.
func looksLikeHostPort(s string) bool {
	idx := strings.LastIndexByte(s, ':')
	if idx < 0 {
		return false
	}
	host, port := s[:idx], s[idx+1:]
	if _, err := strconv.Atoi(port); err != nil {
		return false
	}
	// A bare (unbracketed) IPv6 literal contains more than one colon in its host part.
	return strings.Count(host, ":") == 0
}

func parseBindOptions(query string) map[string]string {
	out := map[string]string{}
	for _, pair := range strings.Split(query, "&") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		out[k] = v
	}
	return out
}

// resolveHostname resolves a hostname to an IP, preferring IPv4 when both families
// are available.
func resolveHostname(hostname string) (net.IP, error) {
	addrs, err := net.LookupIP(hostname)
	if err != nil || len(addrs) == 0 {
		return nil, fmt.Errorf("failed to resolve hostname %s", hostname)
	}
	for _, a := range addrs {
		if a.To4() != nil {
			return a, nil
		}
	}
	return addrs[0], nil
}
