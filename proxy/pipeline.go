package proxy

import (
	"io"
	"net"

	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/glue"
	"github.com/mohanson/veil/httpproxy"
	"github.com/mohanson/veil/mitm"
	"github.com/mohanson/veil/router"
	"github.com/mohanson/veil/socks5"
	veil "github.com/mohanson/veil"
)

// Pipeline assembles the per-connection handler stack shared by both
// ingress listeners: negotiate with the client, consult the routing
// matcher, dial the resolved outbound, and glue the two sides together
// (§4: "Data flow").
type Pipeline struct {
	Matcher     *router.CachedMatcher
	Outbounds   map[string]Outbound
	Credentials Credentials
	Certs       *mitm.CertEngine
	Capture     httpproxy.CaptureFunc
}

// dial resolves dest to an outbound connection by consulting the routing
// matcher for a policy name and then the policy table for an Outbound.
func (p *Pipeline) dial(dest addr.Address) (io.ReadWriteCloser, error) {
	policy, ok := p.Matcher.Policy(dest)
	if !ok {
		return nil, veil.NewError(veil.KindResourceError, "proxy: routing matcher produced no policy", nil)
	}
	out, ok := p.Outbounds[policy]
	if !ok {
		return nil, veil.NewError(veil.KindConfigError, "proxy: no outbound bound to policy "+policy, nil)
	}
	return out.Dial(dest)
}

// credentialsAdapter adapts the package-local Credentials contract to
// socks5.Credentials / httpproxy.Credentials without either package
// importing this one. All three interfaces share the same method set.
type credentialsAdapter struct{ c Credentials }

func (a credentialsAdapter) Check(username, password string) bool { return a.c.Check(username, password) }

// connID derives a stable per-connection log tag from the remote address,
// replacing the teacher's incrementing-counter cid with something that
// needs no shared state between goroutines.
func connID(conn net.Conn) uint32 {
	s := conn.RemoteAddr().String()
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// HandleSOCKS5 drives one accepted SOCKS5 connection to completion (C4 →
// C7 → C10).
func (p *Pipeline) HandleSOCKS5(conn net.Conn) {
	defer conn.Close()
	log := veil.CidLogger(connID(conn))

	var outbound io.ReadWriteCloser
	srv := socks5.NewServer(conn)
	var creds socks5.Credentials
	if p.Credentials != nil {
		creds = credentialsAdapter{p.Credentials}
	}

	tunnel, dest, err := srv.Serve(creds, func(dest addr.Address) (io.ReadWriteCloser, addr.Address, error) {
		out, err := p.dial(dest)
		if err != nil {
			return nil, addr.Address{}, err
		}
		outbound = out
		return out, boundAddress(out), nil
	})
	if err != nil {
		log.Debugw("socks5: rejected", "err", err)
		if outbound != nil {
			outbound.Close()
		}
		return
	}
	log.Infow("socks5: connected", "dest", dest.String())

	if err := glue.Pump(glue.Wrap(tunnel, tunnel, tunnel), glue.Wrap(outbound, outbound, outbound)); err != nil {
		log.Debugw("socks5: pump ended", "err", err)
	}
}

// HandleHTTP drives one accepted HTTP/1.1 proxy connection to completion
// (C6 → C7 → C8/C10). httpproxy.Server owns the CONNECT/absolute-form
// dispatch and the MitM decision internally, so Pipeline's job here is just
// wiring the dial callback and shared config.
func (p *Pipeline) HandleHTTP(conn net.Conn) {
	defer conn.Close()
	log := veil.CidLogger(connID(conn))

	srv := httpproxy.NewServer(conn)
	if p.Credentials != nil {
		srv.Creds = credentialsAdapter{p.Credentials}
	}
	srv.Certs = p.Certs
	srv.Capture = p.Capture

	if err := srv.Serve(func(dest addr.Address) (io.ReadWriteCloser, error) {
		return p.dial(dest)
	}); err != nil {
		log.Debugw("http: closed", "err", err)
	}
}

// boundAddress reports the local address an outbound connection bound to,
// for the SOCKS5 reply's BND.ADDR/BND.PORT field. Falls back to the unbound
// wildcard address when out is not a net.Conn (e.g. in tests using
// net.Pipe, which has no real address).
func boundAddress(out io.ReadWriteCloser) addr.Address {
	if nc, ok := out.(net.Conn); ok {
		if tcp, ok := nc.LocalAddr().(*net.TCPAddr); ok {
			return addr.FromNetAddr(tcp.IP, tcp.Port)
		}
	}
	return addr.NewIPv4([4]byte{0, 0, 0, 0}, 0)
}
