package socks5

import (
	"io"
	"net"
	"testing"

	"github.com/mohanson/veil/addr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerNoAuthConnect(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	outboundR, outboundW := net.Pipe()
	defer outboundW.Close()

	dial := func(dest addr.Address) (io.ReadWriteCloser, addr.Address, error) {
		assert.Equal(t, "192.168.1.1:80", dest.String())
		return outboundW, addr.NewIPv4([4]byte{127, 0, 0, 1}, 1080), nil
	}

	srv := NewServer(serverConn)
	done := make(chan struct{})
	go func() {
		defer close(done)
		tunnel, dest, err := srv.Serve(nil, dial)
		require.NoError(t, err)
		assert.Equal(t, "192.168.1.1:80", dest.String())
		buf := make([]byte, 5)
		io.ReadFull(tunnel, buf)
		assert.Equal(t, []byte{1, 2, 3, 4, 5}, buf)
	}()

	clientConn.Write([]byte{0x05, 0x01, 0x00})
	sel := make([]byte, 2)
	io.ReadFull(clientConn, sel)
	assert.Equal(t, []byte{0x05, 0x00}, sel)

	req := []byte{0x05, 0x01, 0x00, 0x01, 192, 168, 1, 1, 0, 80}
	clientConn.Write(req)
	reply := make([]byte, 10)
	io.ReadFull(clientConn, reply)
	assert.Equal(t, []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0x04, 0x38}, reply)

	clientConn.Write([]byte{1, 2, 3, 4, 5})
	<-done
	assert.Equal(t, ServerCompleted, srv.State())
	_ = outboundR
}

// TestServerAuthRequiredAcceptsNoAuthOffer reproduces §4.3's second greeting
// clause: even when the listener requires auth, a client offering 0x00
// (no-auth) is accepted straight into WaitingForRequest rather than
// rejected. Server has no setting that refuses a 0x00 offer when
// credentials are configured; §4.3 does not make requireAuth override that
// clause.
func TestServerAuthRequiredAcceptsNoAuthOffer(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv := NewServer(serverConn)
	done := make(chan error, 1)
	go func() {
		_, _, err := srv.Serve(StaticCredentials{Username: "u", Password: "p"}, nil)
		done <- err
	}()

	clientConn.Write([]byte{0x05, 0x01, 0x00})
	sel := make([]byte, 2)
	io.ReadFull(clientConn, sel)
	assert.Equal(t, []byte{0x05, 0x00}, sel)
	clientConn.Close()
	<-done
}

func TestServerRejectsUnacceptableMethods(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv := NewServer(serverConn)
	done := make(chan error, 1)
	go func() {
		_, _, err := srv.Serve(StaticCredentials{Username: "u", Password: "p"}, nil)
		done <- err
	}()

	clientConn.Write([]byte{0x05, 0x01, 0x01})
	sel := make([]byte, 2)
	io.ReadFull(clientConn, sel)
	assert.Equal(t, []byte{0x05, 0xFF}, sel)
	err := <-done
	assert.ErrorIs(t, err, NoAcceptableMethodError)
}
