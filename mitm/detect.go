package mitm

import (
	"bufio"
	"net"
)

// handshakeTypes lists the TLS handshake message types that may legally open
// a ClientHello record, per §4.8's detection rule. In practice only 0x01
// (client_hello) appears on the wire here, but the wider set matches the
// teacher's permissive sniff style for protocol front bytes.
var handshakeTypes = map[byte]bool{
	0x00: true, 0x01: true, 0x02: true, 0x04: true,
	0x0B: true, 0x0C: true, 0x0D: true, 0x0E: true,
	0x0F: true, 0x10: true, 0x14: true,
}

// IsTLSClientHello reports whether the first six bytes read from a fresh
// connection look like a TLS record carrying a handshake message: a
// content_type of 0x16 (handshake), two bytes of legacy record version, two
// bytes of record length, and then a handshake_type byte drawn from
// handshakeTypes (§4.8).
// It never consumes the bytes it inspects; callers peek rather than read.
func IsTLSClientHello(head [6]byte) bool {
	if head[0] != 0x16 {
		return false
	}
	return handshakeTypes[head[5]]
}

// PeekConn wraps a net.Conn with a bufio.Reader so a caller can sniff the
// first few bytes of a stream (to distinguish a MitM-eligible TLS
// ClientHello from plaintext HTTP) without losing them for the next reader
// in the chain (§4.8 "detection must not consume").
type PeekConn struct {
	net.Conn
	r *bufio.Reader
}

// NewPeekConn wraps conn for peeking.
func NewPeekConn(conn net.Conn) *PeekConn {
	return &PeekConn{Conn: conn, r: bufio.NewReader(conn)}
}

// PeekClientHello reports whether the next bytes on the wire form a TLS
// ClientHello, without consuming them. It blocks until six bytes are
// available or the underlying read fails.
func (p *PeekConn) PeekClientHello() (bool, error) {
	b, err := p.r.Peek(6)
	if err != nil {
		return false, err
	}
	var head [6]byte
	copy(head[:], b)
	return IsTLSClientHello(head), nil
}

// Read satisfies io.Reader by delegating to the buffered reader, so bytes
// consumed via Peek are replayed to subsequent Read calls rather than lost.
func (p *PeekConn) Read(b []byte) (int, error) {
	return p.r.Read(b)
}
