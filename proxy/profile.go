// Package proxy implements the orchestrator (C11): it owns the ingress
// listeners, wires the routing matcher to an outbound policy table, and
// assembles the per-connection pipeline (SOCKS5 or HTTP dispatch, glue pump,
// optional MitM) that every other package only supplies pieces of.
package proxy

import "github.com/mohanson/veil/router"

// Profile is the external configuration contract (§6): everything an
// operator supplies to stand up one gateway instance. Profile/config
// parsing itself is out of scope (spec.md §1); this struct is the shape a
// real config loader would populate.
type Profile struct {
	// SocksListen is the "host:port" the SOCKS5 ingress binds, or "" to
	// disable that listener.
	SocksListen string
	// HTTPListen is the "host:port" the HTTP/1.1 ingress binds, or "" to
	// disable that listener.
	HTTPListen string
	// ProxyProtocol enables PROXY protocol v1/v2 unwrapping on both
	// listeners, for deployments behind a load balancer or HAProxy.
	ProxyProtocol bool

	// Rules is the already-parsed, already-resource-resolved routing rule
	// list (§4.6); building it from text form is router.ParseRuleList plus
	// a router.Loader, done by the caller before constructing a Profile.
	Rules []router.Rule

	// Outbounds maps a policy name (as named by Rules) to how traffic
	// tagged with that policy leaves the process.
	Outbounds map[string]OutboundConfig

	// Credentials, if non-nil, are required on both ingress listeners
	// (SOCKS5 username/password, HTTP Proxy-Authorization).
	Credentials Credentials

	// MitM, if non-nil, enables TLS interception for CONNECT tunnels whose
	// destination matches one of its patterns.
	MitM *MitMConfig
}

// Credentials checks a username/password pair. Satisfied by
// socks5.StaticCredentials and httpproxy's equivalent without either
// package importing this one.
type Credentials interface {
	Check(username, password string) bool
}

// OutboundConfig describes one named egress policy.
type OutboundConfig struct {
	// Kind selects the Outbound implementation: "DIRECT", "REJECT", or
	// "PROXY" (relay through an upstream SOCKS5 or HTTP CONNECT proxy).
	Kind string
	// Upstream is the "host:port" of the parent proxy. Only meaningful
	// when Kind == "PROXY".
	Upstream string
	// UpstreamIsHTTP selects an HTTP CONNECT parent instead of a SOCKS5
	// one when Kind == "PROXY".
	UpstreamIsHTTP bool
	// UpstreamUsername and UpstreamPassword, used when UpstreamUsername is
	// non-empty, authenticate to the upstream proxy.
	UpstreamUsername, UpstreamPassword string
}

// MitMConfig carries the root PKCS#12 bundle and the set of hostname
// patterns eligible for interception (§4.7).
type MitMConfig struct {
	RootP12    []byte
	Passphrase string
	Patterns   []string
	SkipVerify bool
}
