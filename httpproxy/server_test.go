package httpproxy

import (
	"bufio"
	"io"
	"net"
	"net/http"
	"testing"

	"github.com/mohanson/veil/addr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeAbsoluteForwardsAndStripsHopByHop(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	outClient, outServer := net.Pipe()
	dial := func(dest addr.Address) (io.ReadWriteCloser, error) {
		assert.Equal(t, "example.com:80", dest.String())
		return outClient, nil
	}

	srv := NewServer(serverConn)
	done := make(chan error, 1)
	go func() { done <- srv.Serve(dial) }()

	go func() {
		io.WriteString(clientConn, "GET http://example.com/ HTTP/1.1\r\nHost: example.com\r\nProxy-Connection: keep-alive\r\n\r\n")
	}()

	r := bufio.NewReader(outServer)
	req, err := http.ReadRequest(r)
	require.NoError(t, err)
	assert.Empty(t, req.Header.Get("Proxy-Connection"))
	outServer.Write([]byte("HTTP/1.1 200 OK\r\nContent-Length: 2\r\n\r\nhi"))

	resp, err := http.ReadResponse(bufio.NewReader(clientConn), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(body))
	require.NoError(t, <-done)
}

func TestServeConnectRequiresAuth(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	srv := NewServer(serverConn)
	srv.Creds = staticCreds{user: "u", pass: "p"}
	done := make(chan error, 1)
	go func() { done <- srv.Serve(func(addr.Address) (io.ReadWriteCloser, error) { return nil, nil }) }()

	io.WriteString(clientConn, "CONNECT example.com:443 HTTP/1.1\r\nHost: example.com:443\r\n\r\n")
	resp, err := http.ReadResponse(bufio.NewReader(clientConn), nil)
	require.NoError(t, err)
	assert.Equal(t, 407, resp.StatusCode)
	require.Error(t, <-done)
}

func TestServeConnectPureTunnel(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()

	outClient, outServer := net.Pipe()
	defer outServer.Close()

	srv := NewServer(serverConn)
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(func(dest addr.Address) (io.ReadWriteCloser, error) {
			assert.Equal(t, "127.0.0.1:8080", dest.String())
			return outClient, nil
		})
	}()

	io.WriteString(clientConn, "CONNECT 127.0.0.1:8080 HTTP/1.1\r\nHost: 127.0.0.1:8080\r\n\r\n")
	resp, err := http.ReadResponse(bufio.NewReader(clientConn), nil)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	go clientConn.Write([]byte("ping"))
	buf := make([]byte, 4)
	_, err = io.ReadFull(outServer, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

type staticCreds struct{ user, pass string }

func (s staticCreds) Check(user, pass string) bool { return user == s.user && pass == s.pass }
