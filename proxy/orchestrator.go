package proxy

import (
	"net"
	"sync"

	"github.com/mohanson/veil/mitm"
	"github.com/mohanson/veil/router"
	veil "github.com/mohanson/veil"
)

// Orchestrator owns the listeners built from a Profile and the Pipeline
// they feed, and covers the "start listeners" end of the startup ordering:
// New builds all in-memory state, then Listen opens the listeners. Rules and
// MitM material are expected to already be resolved by the time a Profile
// reaches New. Orchestrator itself never fetches external resources.
type Orchestrator struct {
	pipeline *Pipeline
	socksLn  net.Listener
	httpLn   net.Listener

	wg sync.WaitGroup
}

// New builds the Pipeline from profile: the outbound policy table, the
// cached routing matcher, and (if configured) the MitM cert engine.
func New(profile Profile) (*Orchestrator, error) {
	outbounds := map[string]Outbound{}
	for name, cfg := range profile.Outbounds {
		out, err := buildOutbound(cfg)
		if err != nil {
			return nil, err
		}
		outbounds[name] = out
	}

	matcher := router.NewCachedMatcher(router.NewMatcher(profile.Rules, nil, nil), 1024)

	var certs *mitm.CertEngine
	if profile.MitM != nil {
		engine, err := mitm.NewCertEngine(profile.MitM.RootP12, profile.MitM.Passphrase, profile.MitM.SkipVerify)
		if err != nil {
			return nil, err
		}
		patterns := make([]mitm.Pattern, len(profile.MitM.Patterns))
		for i, p := range profile.MitM.Patterns {
			patterns[i] = mitm.ParsePattern(p)
		}
		engine.SetPatterns(patterns)
		certs = engine
	}

	return &Orchestrator{
		pipeline: &Pipeline{
			Matcher:     matcher,
			Outbounds:   outbounds,
			Credentials: profile.Credentials,
			Certs:       certs,
		},
	}, nil
}

// Listen opens the configured listeners, wrapping them with PROXY protocol
// support per profile.ProxyProtocol. It does not start accepting yet.
func (o *Orchestrator) Listen(profile Profile) error {
	if profile.SocksListen != "" {
		ln, err := net.Listen("tcp", profile.SocksListen)
		if err != nil {
			return veil.NewError(veil.KindConfigError, "proxy: listen SOCKS5", err)
		}
		o.socksLn = ListenerWithProxyProtocol(ln, profile.ProxyProtocol)
	}
	if profile.HTTPListen != "" {
		ln, err := net.Listen("tcp", profile.HTTPListen)
		if err != nil {
			return veil.NewError(veil.KindConfigError, "proxy: listen HTTP", err)
		}
		o.httpLn = ListenerWithProxyProtocol(ln, profile.ProxyProtocol)
	}
	return nil
}

// Serve accepts connections on every open listener until it is closed by
// Shutdown. It blocks until both accept loops have returned.
func (o *Orchestrator) Serve() {
	if o.socksLn != nil {
		o.wg.Add(1)
		go o.acceptLoop(o.socksLn, o.pipeline.HandleSOCKS5)
	}
	if o.httpLn != nil {
		o.wg.Add(1)
		go o.acceptLoop(o.httpLn, o.pipeline.HandleHTTP)
	}
	o.wg.Wait()
}

func (o *Orchestrator) acceptLoop(ln net.Listener, handle func(net.Conn)) {
	defer o.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			veil.Log().Debugw("proxy: accept loop ended", "err", err)
			return
		}
		go handle(conn)
	}
}

// Shutdown closes every open listener, causing Serve's accept loops to
// return once their current Accept call unblocks with an error. In-flight
// connections are not forcibly closed; they drain on their own, matching
// spec.md §6's "exit code 0 on graceful shutdown" rather than a hard kill.
// This is adapted from the teacher's lib/gracefulexit signal-channel idiom:
// this method's caller (cmd/veild) calls it after gracefulexit.Wait returns.
func (o *Orchestrator) Shutdown() {
	if o.socksLn != nil {
		o.socksLn.Close()
	}
	if o.httpLn != nil {
		o.httpLn.Close()
	}
}
