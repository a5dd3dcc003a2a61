package session

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

const (
	schemeTCP = "tcp"
	schemeTLS = "tls"
	schemeWS  = "ws"
	schemeWSS = "wss"
)

type endpoint struct {
	scheme string
	addr   string
	url    string
}

func (e endpoint) websocket() bool {
	return e.scheme == schemeWS || e.scheme == schemeWSS
}

func (e endpoint) secure() bool {
	return e.scheme == schemeTLS || e.scheme == schemeWSS
}

// origin is the http(s) origin sent in the websocket handshake.
func (e endpoint) origin() string {
	if e.secure() {
		return "https://" + e.addr
	}
	return "http://" + e.addr
}

func parseEndpoint(host string, tlsEnabled bool) (endpoint, error) {
	host = strings.TrimSpace(host)
	if !strings.Contains(host, "://") {
		host = schemeTCP + "://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return endpoint{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case schemeTCP, schemeTLS, schemeWS, schemeWSS:
	default:
		return endpoint{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	if tlsEnabled {
		switch scheme {
		case schemeTCP:
			scheme = schemeTLS
		case schemeWS:
			scheme = schemeWSS
		}
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return endpoint{}, fmt.Errorf("%w: host %q: %v", ErrInvalidConfig, u.Host, err)
	}

	ep := endpoint{scheme: scheme, addr: u.Host}
	if ep.websocket() {
		u.Scheme = scheme
		ep.url = u.String()
	}
	return ep, nil
}
