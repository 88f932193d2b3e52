package socks5

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/mohanson/veil/addr"
	veil "github.com/mohanson/veil"
)

// ClientState is one state of the client handshake FSM (§4.2).
type ClientState int

const (
	ClientIdle ClientState = iota
	ClientGreeting
	ClientAuthorizing
	ClientAddressing
	ClientEstablished
	ClientFailed
)

// Auth carries the username/password credentials offered during the
// optional SOCKS5 subnegotiation (RFC 1929).
type Auth struct {
	Username string
	Password string
}

// NoAcceptableMethodError is returned when the server replies 0xFF to the
// client's method offer.
var NoAcceptableMethodError = fmt.Errorf("socks5: no acceptable authentication method")

// BadCredentialsError is returned when the username/password subnegotiation
// fails.
var BadCredentialsError = fmt.Errorf("socks5: bad credentials")

// ReplyFailedError wraps a non-zero SOCKS5 reply code from the server's
// response to a CONNECT request, preserving the raw reply byte.
type ReplyFailedError struct{ Reply byte }

func (e *ReplyFailedError) Error() string {
	return fmt.Sprintf("socks5: request failed, reply=0x%02x", e.Reply)
}

// Client drives the SOCKS5 client handshake (greeting, optional auth,
// CONNECT request/response) on a single connection, then hands the caller a
// transparent byte tunnel. It is not safe for concurrent use except for
// Write, which may be called from another goroutine while Negotiate is
// still running. Writes issued before the handshake completes are queued
// and flushed, in order, the moment it does.
type Client struct {
	conn  io.ReadWriteCloser
	r     *bufio.Reader
	queue WriteQueue

	mu    sync.Mutex
	state ClientState
}

// NewClient wraps conn (already dialed to the SOCKS5 server) in a Client
// ready to Negotiate.
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{
		conn:  conn,
		r:     bufio.NewReader(conn),
		state: ClientIdle,
	}
}

func (c *Client) setState(s ClientState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// State reports the current FSM state.
func (c *Client) State() ClientState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Write queues data for delivery. Before the handshake establishes, writes
// are buffered (§4.2's buffering contract) and released in order once
// Negotiate succeeds; after establishment they go straight to the
// connection.
func (c *Client) Write(p []byte) <-chan error {
	if c.State() == ClientEstablished {
		done := make(chan error, 1)
		_, err := c.conn.Write(p)
		done <- err
		return done
	}
	return c.queue.Write(p)
}

// Close tears down the underlying connection. If called before the
// handshake established, any writes still queued fail with a
// veil.KindInvalidState error, mirroring §4.2's cancellation rule: a
// removal before Established must still let buffered data be observed (here,
// resolved with an explicit error rather than silently dropped).
func (c *Client) Close() error {
	if c.State() != ClientEstablished {
		err := veil.NewError(veil.KindInvalidState, "socks5: client closed before handshake established", nil)
		_ = c.queue.Drain(discardWriter{err: err})
	}
	c.setState(ClientFailed)
	return c.conn.Close()
}

// discardWriter stands in for the network connection when a queued write
// must be resolved with an error instead of actually sent: Drain calls
// Write once per buffered group and expects the usual (n, err) contract, so
// this reports the group as fully consumed but fails it with err, which is
// exactly what propagates back through each pendingWrite's done channel.
type discardWriter struct{ err error }

func (d discardWriter) Write(p []byte) (int, error) { return len(p), d.err }

// fail transitions the client to ClientFailed and resolves every write
// queued during negotiation with err, per §7's "all buffered promises for
// writes to a failing handshake are resolved with the error." It returns
// err unchanged so callers can write `return addr.Address{}, c.fail(err)`.
func (c *Client) fail(err error) error {
	c.setState(ClientFailed)
	c.queue.Drain(discardWriter{err: err})
	return err
}

// Negotiate runs the full client handshake: greeting, optional
// username/password subnegotiation, then a CONNECT request for dest. On
// success it returns the server-reported bound address, flushes any writes
// queued during negotiation (pre-flush prefix first, then the rest, per
// §4.2), and leaves the connection in ClientEstablished state ready for
// transparent relay.
func (c *Client) Negotiate(dest addr.Address, auth *Auth) (addr.Address, error) {
	c.setState(ClientGreeting)

	method := byte(0x00)
	if auth != nil {
		method = 0x02
	}
	if _, err := c.conn.Write([]byte{0x05, 0x01, method}); err != nil {
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: write greeting", err))
	}

	sel := make([]byte, 2)
	if _, err := io.ReadFull(c.r, sel); err != nil {
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: read method selection", err))
	}
	if sel[0] != 0x05 {
		return addr.Address{}, c.fail(&InvalidProtocolVersionError{Got: sel[0]})
	}
	switch sel[1] {
	case 0xFF:
		return addr.Address{}, c.fail(NoAcceptableMethodError)
	case 0x02:
		c.setState(ClientAuthorizing)
		if err := c.authorize(auth); err != nil {
			return addr.Address{}, c.fail(err)
		}
	case 0x00:
		// proceed straight to addressing
	default:
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: unexpected method selection", nil))
	}

	c.setState(ClientAddressing)
	req := []byte{0x05, 0x01, 0x00}
	req = EncodeAddress(req, dest)
	if _, err := c.conn.Write(req); err != nil {
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: write request", err))
	}

	head := make([]byte, 3)
	if _, err := io.ReadFull(c.r, head); err != nil {
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: read reply head", err))
	}
	if head[0] != 0x05 {
		return addr.Address{}, c.fail(&InvalidProtocolVersionError{Got: head[0]})
	}
	if head[2] != 0x00 {
		return addr.Address{}, c.fail(&InvalidReservedByteError{Got: head[2]})
	}
	if head[1] != ReplySucceeded {
		return addr.Address{}, c.fail(&ReplyFailedError{Reply: head[1]})
	}
	bound, err := ReadAddress(c.r)
	if err != nil {
		return addr.Address{}, c.fail(veil.NewError(veil.KindProtocolViolation, "socks5: read bound address", err))
	}

	c.setState(ClientEstablished)
	if err := c.queue.Drain(c.conn); err != nil {
		return bound, veil.NewError(veil.KindUpstreamUnreachable, "socks5: flush buffered writes", err)
	}
	return bound, nil
}

func (c *Client) authorize(auth *Auth) error {
	if auth == nil {
		return veil.NewError(veil.KindConfigError, "socks5: server requires auth but none configured", nil)
	}
	msg := make([]byte, 0, 3+len(auth.Username)+len(auth.Password))
	msg = append(msg, 0x01, byte(len(auth.Username)))
	msg = append(msg, auth.Username...)
	msg = append(msg, byte(len(auth.Password)))
	msg = append(msg, auth.Password...)
	if _, err := c.conn.Write(msg); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: write auth", err)
	}
	resp := make([]byte, 2)
	if _, err := io.ReadFull(c.r, resp); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read auth status", err)
	}
	if resp[1] != 0x00 {
		return BadCredentialsError
	}
	return nil
}

// Reader exposes the buffered reader for transparent relay after
// Negotiate succeeds: any bytes the server sent immediately after its reply
// are already sitting in this reader and must be drained before raw
// conn.Read.
func (c *Client) Reader() io.Reader { return c.r }

// Conn exposes the underlying connection for relay plumbing.
func (c *Client) Conn() io.ReadWriteCloser { return c.conn }
