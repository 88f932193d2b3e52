package proxy

import (
	"io"
	"net"

	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/glue"
	"github.com/mohanson/veil/httpproxy"
	"github.com/mohanson/veil/socks5"
	veil "github.com/mohanson/veil"
)

// Outbound resolves a routing policy into an established connection toward
// dest. The routing matcher (C7) picks the policy name; an Outbound is what
// that name is bound to.
type Outbound interface {
	Dial(dest addr.Address) (io.ReadWriteCloser, error)
}

// DirectOutbound dials dest directly with the standard network stack.
type DirectOutbound struct{}

func (DirectOutbound) Dial(dest addr.Address) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", dest.String())
	if err != nil {
		return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: direct dial", err)
	}
	return conn, nil
}

// RejectOutbound refuses every destination, for a policy like REJECT or
// BLOCK in the rule list.
type RejectOutbound struct{}

func (RejectOutbound) Dial(dest addr.Address) (io.ReadWriteCloser, error) {
	return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: destination rejected by policy", nil)
}

// SOCKS5ParentOutbound relays the CONNECT through an upstream SOCKS5 proxy
// (C3's client FSM), used when this gateway itself sits behind another
// proxy.
type SOCKS5ParentOutbound struct {
	Upstream string
	Auth     *socks5.Auth
}

func (o SOCKS5ParentOutbound) Dial(dest addr.Address) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", o.Upstream)
	if err != nil {
		return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: dial SOCKS5 parent", err)
	}
	client := socks5.NewClient(conn)
	if _, err := client.Negotiate(dest, o.Auth); err != nil {
		conn.Close()
		return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: SOCKS5 parent negotiate", err)
	}
	return glue.Wrap(client.Reader(), client.Conn(), client.Conn()), nil
}

// HTTPParentOutbound relays the CONNECT through an upstream HTTP/1.1 proxy
// (C5's client FSM).
type HTTPParentOutbound struct {
	Upstream string
	Auth     *httpproxy.BasicAuth
}

func (o HTTPParentOutbound) Dial(dest addr.Address) (io.ReadWriteCloser, error) {
	conn, err := net.Dial("tcp", o.Upstream)
	if err != nil {
		return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: dial HTTP parent", err)
	}
	client := httpproxy.NewClient(conn)
	tunnel, err := client.Connect(dest.String(), o.Auth)
	if err != nil {
		conn.Close()
		return nil, veil.NewError(veil.KindUpstreamUnreachable, "proxy: HTTP parent CONNECT", err)
	}
	return tunnel, nil
}

// buildOutbound turns an OutboundConfig into a concrete Outbound.
func buildOutbound(cfg OutboundConfig) (Outbound, error) {
	switch cfg.Kind {
	case "DIRECT":
		return DirectOutbound{}, nil
	case "REJECT":
		return RejectOutbound{}, nil
	case "PROXY":
		if cfg.UpstreamIsHTTP {
			var auth *httpproxy.BasicAuth
			if cfg.UpstreamUsername != "" {
				auth = &httpproxy.BasicAuth{Username: cfg.UpstreamUsername, Password: cfg.UpstreamPassword}
			}
			return HTTPParentOutbound{Upstream: cfg.Upstream, Auth: auth}, nil
		}
		var auth *socks5.Auth
		if cfg.UpstreamUsername != "" {
			auth = &socks5.Auth{Username: cfg.UpstreamUsername, Password: cfg.UpstreamPassword}
		}
		return SOCKS5ParentOutbound{Upstream: cfg.Upstream, Auth: auth}, nil
	default:
		return nil, veil.NewError(veil.KindConfigError, "proxy: unknown outbound kind "+cfg.Kind, nil)
	}
}
