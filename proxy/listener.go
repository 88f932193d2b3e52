package proxy

import (
	"net"

	"github.com/fango6/proxyproto"
)

// ListenerWithProxyProtocol wraps ln so that every accepted connection is
// first unwrapped for a v1/v2 PROXY protocol header, recovering the real
// client address from in front of a load balancer or HAProxy before SOCKS5
// or HTTP detection ever sees a byte. When enabled is false, ln is returned
// unchanged.
func ListenerWithProxyProtocol(ln net.Listener, enabled bool) net.Listener {
	if !enabled {
		return ln
	}
	return proxyproto.NewListener(ln)
}
