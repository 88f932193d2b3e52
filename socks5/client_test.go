package socks5

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/mohanson/veil/addr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestClientNoAuthConnect reproduces §8 scenario 1: a no-auth CONNECT to
// 192.168.1.1:80, followed by the client relaying application bytes.
func TestClientNoAuthConnect(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	serverDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 3)
		io.ReadFull(serverConn, buf)
		require.Equal(t, []byte{0x05, 0x01, 0x00}, buf)
		serverConn.Write([]byte{0x05, 0x00})

		req := make([]byte, 10)
		io.ReadFull(serverConn, req)
		serverConn.Write([]byte{0x05, 0x00, 0x00, 0x01, 192, 168, 1, 1, 0x00, 0x50})

		app := make([]byte, 5)
		io.ReadFull(serverConn, app)
		serverDone <- append([]byte{}, req...)
		serverDone <- append([]byte{}, app...)
	}()

	c := NewClient(clientConn)
	dest := addr.NewIPv4([4]byte{192, 168, 1, 1}, 80)
	bound, err := c.Negotiate(dest, nil)
	require.NoError(t, err)
	assert.Equal(t, addr.FamilyIPv4, bound.Family())
	assert.Equal(t, uint16(80), bound.Port())
	assert.Equal(t, ClientEstablished, c.State())

	done := c.Write([]byte{1, 2, 3, 4, 5})
	require.NoError(t, <-done)

	select {
	case req := <-serverDone:
		assert.Equal(t, []byte{0x05, 0x01, 0x00, 0x01, 192, 168, 1, 1, 0x00, 0x50}, req)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for request")
	}
	select {
	case app := <-serverDone:
		assert.Equal(t, []byte{1, 2, 3, 4, 5}, app)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for app bytes")
	}
}

// TestClientBadCredentials reproduces §8 scenario 2.
func TestClientBadCredentials(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	go func() {
		greeting := make([]byte, 3)
		io.ReadFull(serverConn, greeting)
		serverConn.Write([]byte{0x05, 0x02})

		authMsg := make([]byte, 1+1+6+1+6)
		io.ReadFull(serverConn, authMsg)
		serverConn.Write([]byte{0x01, 0x01})
		serverConn.Close()
	}()

	c := NewClient(clientConn)
	queued := c.Write([]byte{1, 2, 3})
	dest := addr.NewDomainPort("example.com", 80)
	_, err := c.Negotiate(dest, &Auth{Username: "String", Password: "String"})
	assert.ErrorIs(t, err, BadCredentialsError)
	assert.Equal(t, ClientFailed, c.State())

	select {
	case qerr := <-queued:
		assert.ErrorIs(t, qerr, BadCredentialsError)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for queued write to resolve")
	}
}
