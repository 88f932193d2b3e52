package socks5

import (
	"bufio"
	"io"

	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/glue"
	veil "github.com/mohanson/veil"
)

// ServerState is one state of the server dispatch FSM (§4.3). Each state
// owns the bytes accumulated so far; with a bufio.Reader backing the
// connection that accumulation is implicit in the reader's internal buffer
// rather than an explicit byte slice, but the state progression is the
// same one the design specifies.
type ServerState int

const (
	ServerWaitingForGreeting ServerState = iota
	ServerWaitingForAuthorizing
	ServerWaitingForRequest
	ServerCompleted
)

// DialFunc resolves a requested destination to an established outbound
// connection plus the local address it bound to. This is the asynchronous
// dial(address) callback of §4.3, expressed as a blocking call since this
// FSM is driven synchronously per connection (§5: one connection, one
// goroutine, serial callbacks).
type DialFunc func(dest addr.Address) (conn io.ReadWriteCloser, bound addr.Address, err error)

// Credentials checks a username/password pair against configuration.
type Credentials interface {
	Check(username, password string) bool
}

// StaticCredentials is the simplest Credentials implementation: one fixed
// username/password pair.
type StaticCredentials struct {
	Username string
	Password string
}

func (c StaticCredentials) Check(username, password string) bool {
	return username == c.Username && password == c.Password
}

// Server drives the server-side SOCKS5 dispatch FSM on one accepted
// connection (§4.3).
type Server struct {
	conn  io.ReadWriteCloser
	r     *bufio.Reader
	state ServerState
}

// NewServer wraps an accepted connection.
func NewServer(conn io.ReadWriteCloser) *Server {
	return &Server{conn: conn, r: bufio.NewReader(conn), state: ServerWaitingForGreeting}
}

// State reports the current FSM state.
func (s *Server) State() ServerState { return s.state }

// Serve runs the greeting → optional-auth → request dispatch, then invokes
// dial for the requested destination. On success it replies with the bound
// address, transitions to ServerCompleted, and returns a tunnel
// (io.ReadWriteCloser) that already contains, ahead of any later bytes,
// whatever the client sent immediately after the request. This preserves
// the ordering guarantee of §4.3 ("any data read between end-of-request and
// handshake-completed must be delivered before data read after"): that data
// is still sitting in s.r's internal buffer, and s.r is what the returned
// tunnel reads from.
//
// On failure it writes the appropriate wire error reply itself and returns
// a non-nil error; the caller should close the connection.
func (s *Server) Serve(creds Credentials, dial DialFunc) (tunnel io.ReadWriteCloser, dest addr.Address, err error) {
	requireAuth := creds != nil

	if err := s.greet(requireAuth); err != nil {
		s.state = ServerCompleted
		return nil, addr.Address{}, err
	}

	if s.state == ServerWaitingForAuthorizing {
		if err := s.authorize(creds); err != nil {
			s.state = ServerCompleted
			return nil, addr.Address{}, err
		}
	}

	s.state = ServerWaitingForRequest
	dest, err = s.readRequest()
	if err != nil {
		s.state = ServerCompleted
		return nil, addr.Address{}, err
	}

	conn, bound, dialErr := dial(dest)
	if dialErr != nil {
		s.writeReply(ReplyHostUnreachable, dest)
		s.state = ServerCompleted
		return nil, dest, veil.NewError(veil.KindUpstreamUnreachable, "socks5: dial failed", dialErr)
	}
	if err := s.writeReply(ReplySucceeded, bound); err != nil {
		s.state = ServerCompleted
		conn.Close()
		return nil, dest, veil.NewError(veil.KindProtocolViolation, "socks5: write reply", err)
	}

	s.state = ServerCompleted
	return glue.Wrap(s.r, s.conn, s.conn), dest, nil
}

func (s *Server) greet(requireAuth bool) error {
	s.state = ServerWaitingForGreeting
	head := make([]byte, 2)
	if _, err := io.ReadFull(s.r, head); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read greeting head", err)
	}
	if head[0] != 0x05 {
		return &InvalidProtocolVersionError{Got: head[0]}
	}
	n := int(head[1])
	methods := make([]byte, n)
	if _, err := io.ReadFull(s.r, methods); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read methods", err)
	}

	offers := map[byte]bool{}
	for _, m := range methods {
		offers[m] = true
	}

	switch {
	case requireAuth && offers[0x02]:
		s.conn.Write([]byte{0x05, 0x02})
		s.state = ServerWaitingForAuthorizing
		return nil
	case offers[0x00]:
		s.conn.Write([]byte{0x05, 0x00})
		s.state = ServerWaitingForRequest
		return nil
	default:
		s.conn.Write([]byte{0x05, 0xFF})
		return NoAcceptableMethodError
	}
}

func (s *Server) authorize(creds Credentials) error {
	head := make([]byte, 2)
	if _, err := io.ReadFull(s.r, head); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read auth version", err)
	}
	ulen := int(head[1])
	uname := make([]byte, ulen)
	if _, err := io.ReadFull(s.r, uname); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read username", err)
	}
	plenBuf := make([]byte, 1)
	if _, err := io.ReadFull(s.r, plenBuf); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read password length", err)
	}
	pw := make([]byte, int(plenBuf[0]))
	if _, err := io.ReadFull(s.r, pw); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "socks5: read password", err)
	}

	if creds.Check(string(uname), string(pw)) {
		s.conn.Write([]byte{0x01, 0x00})
		return nil
	}
	s.conn.Write([]byte{0x01, 0x01})
	return veil.NewError(veil.KindAuthFailed, "socks5: bad credentials", nil)
}

func (s *Server) readRequest() (addr.Address, error) {
	head := make([]byte, 3)
	if _, err := io.ReadFull(s.r, head); err != nil {
		return addr.Address{}, veil.NewError(veil.KindProtocolViolation, "socks5: read request head", err)
	}
	if head[0] != 0x05 {
		return addr.Address{}, &InvalidProtocolVersionError{Got: head[0]}
	}
	if head[2] != 0x00 {
		return addr.Address{}, &InvalidReservedByteError{Got: head[2]}
	}
	dest, err := ReadAddress(s.r)
	if err != nil {
		return addr.Address{}, veil.NewError(veil.KindProtocolViolation, "socks5: read request address", err)
	}
	if head[1] != 0x01 {
		s.writeReply(ReplyCommandNotSupported, dest)
		return addr.Address{}, veil.NewError(veil.KindProtocolViolation, "socks5: only CONNECT is supported", nil)
	}
	return dest, nil
}

func (s *Server) writeReply(reply byte, bound addr.Address) error {
	buf := []byte{0x05, reply, 0x00}
	buf = EncodeAddress(buf, bound)
	_, err := s.conn.Write(buf)
	return err
}
