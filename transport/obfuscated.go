// Package transport names the contract an obfuscated (Shadowsocks/VMESS-
// style) outbound transport would satisfy, without implementing a full
// protocol engine: that scope is explicitly excluded from this gateway, kept
// here only as the shape a real implementation would plug into.
package transport

import (
	"crypto/cipher"
	"crypto/rc4"
	"io"

	"github.com/mohanson/veil/glue"
	"github.com/mohanson/veil/lib/doa"
)

// Dialer decorates an already-established connection with a stream
// transform before it is handed to the glue pump. This is the extension
// point an obfuscated transport occupies. A plain passthrough and the illustrative
// RC4 wrapper below both satisfy it; a real Shadowsocks/VMESS transport
// would be another implementation of the same shape.
type Dialer interface {
	Wrap(conn io.ReadWriteCloser) io.ReadWriteCloser
}

// Plain is the identity Dialer: no transform, used when no obfuscated
// transport is configured.
type Plain struct{}

func (Plain) Wrap(conn io.ReadWriteCloser) io.ReadWriteCloser { return conn }

// RC4Stream is a minimal illustrative stream cipher wrapper, adapted from
// the teacher's Gravity/GravityReader/GravityWriter helpers. It is not a
// real obfuscated transport (RC4 is not a serious cipher for this purpose);
// it exists only to show where a real one would plug into Dialer.
type RC4Stream struct {
	Key []byte
}

// Wrap returns conn with both directions passed through RC4 keyed by Key.
// Key must already be a valid RC4 key (1 to 256 bytes); that is an
// invariant of the caller's own configuration, not of untrusted wire data,
// so a bad key panics via lib/doa rather than returning an error.
func (r RC4Stream) Wrap(conn io.ReadWriteCloser) io.ReadWriteCloser {
	cr := doa.Try(rc4.NewCipher(r.Key))
	cw := doa.Try(rc4.NewCipher(r.Key))
	return glue.Wrap(
		cipher.StreamReader{S: cr, R: conn},
		cipher.StreamWriter{S: cw, W: conn},
		conn,
	)
}
