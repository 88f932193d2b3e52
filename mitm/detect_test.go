package mitm

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTLSClientHello(t *testing.T) {
	assert.True(t, IsTLSClientHello([6]byte{0x16, 0x03, 0x01, 0x00, 0xA5, 0x01}))
	assert.False(t, IsTLSClientHello([6]byte{0x16, 0x03, 0x01, 0x00, 0xA5, 0xFF}))
	assert.False(t, IsTLSClientHello([6]byte{'G', 'E', 'T', ' ', '/', ' '}))
}

func TestPeekConnDoesNotConsume(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	payload := []byte{0x16, 0x03, 0x01, 0x00, 0xA5, 0x01, 'x', 'y', 'z'}
	go client.Write(payload)

	pc := NewPeekConn(server)
	isHello, err := pc.PeekClientHello()
	require.NoError(t, err)
	assert.True(t, isHello)

	buf := make([]byte, len(payload))
	n, err := pc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, payload, buf[:n])
}
