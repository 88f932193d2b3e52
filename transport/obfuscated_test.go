package transport

import (
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlainIsIdentity(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	wrapped := Plain{}.Wrap(serverConn)
	go clientConn.Write([]byte("hello"))
	buf := make([]byte, 5)
	_, err := io.ReadFull(wrapped, buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))
}

func TestRC4StreamRoundtrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	key := []byte("a shared secret")
	client := RC4Stream{Key: key}.Wrap(clientConn)
	server := RC4Stream{Key: key}.Wrap(serverConn)

	go func() {
		client.Write([]byte("secret payload"))
	}()
	buf := make([]byte, len("secret payload"))
	_, err := io.ReadFull(server, buf)
	require.NoError(t, err)
	assert.Equal(t, "secret payload", string(buf))
}
