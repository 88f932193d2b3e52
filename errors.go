// Package veil implements an intercepting proxy gateway: SOCKS5 and HTTP/1.1
// ingress, policy-driven outbound dialing, and optional TLS interception.
//
// The sub-packages (socks5, httpproxy, mitm, router, glue, proxy) hold the
// wire/dispatch engine; this root package holds the shared error taxonomy,
// address-independent context, and the logging glue every sub-package draws
// on.
package veil

import "github.com/pkg/errors"

// Kind classifies an error into one of the taxonomy buckets from the
// protocol design (protocol violations, auth failures, unreachable
// upstreams, ...). Handlers switch on Kind to decide which wire response
// to emit, never on the wrapped message text.
type Kind int

const (
	// KindProtocolViolation covers malformed wire data: bad version bytes,
	// bad reserved bytes, unknown address types, malformed HTTP framing.
	KindProtocolViolation Kind = iota
	// KindAuthRequired means the peer didn't present credentials where
	// the listener requires them.
	KindAuthRequired
	// KindAuthFailed means the peer presented credentials that didn't match.
	KindAuthFailed
	// KindUpstreamUnreachable means the outbound dial failed.
	KindUpstreamUnreachable
	// KindUpstreamRejected means an upstream (parent) proxy answered with a
	// non-2xx status to a CONNECT request.
	KindUpstreamRejected
	// KindInvalidState means a handler received an event illegal for its
	// current state. Always fatal to the connection.
	KindInvalidState
	// KindResourceError means a supporting resource (cert, rule file,
	// GeoIP database) failed to load. Fatal to the feature it backs, not to
	// the process.
	KindResourceError
	// KindConfigError means a required setting is missing or contradictory.
	// Rejected at start-up, before any listener opens.
	KindConfigError
)

func (k Kind) String() string {
	switch k {
	case KindProtocolViolation:
		return "protocol_violation"
	case KindAuthRequired:
		return "auth_required"
	case KindAuthFailed:
		return "auth_failed"
	case KindUpstreamUnreachable:
		return "upstream_unreachable"
	case KindUpstreamRejected:
		return "upstream_rejected"
	case KindInvalidState:
		return "invalid_state"
	case KindResourceError:
		return "resource_error"
	case KindConfigError:
		return "config_error"
	default:
		return "unknown"
	}
}

// Error is the concrete error type carried through the FSMs. The wrapped
// Cause, when present, is attached with github.com/pkg/errors so %+v prints
// a trace back through the handler that raised it.
type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return e.Msg + ": " + e.Cause.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds an *Error of the given kind, wrapping cause (which may be
// nil) with pkg/errors so later %+v formatting carries a stack.
func NewError(kind Kind, msg string, cause error) *Error {
	var wrapped error
	if cause != nil {
		wrapped = errors.Wrap(cause, msg)
	}
	return &Error{Kind: kind, Msg: msg, Cause: wrapped}
}

// IsKind reports whether err is a *Error of the given kind, unwrapping
// wrapper errors along the way.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
