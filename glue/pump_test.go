package glue

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPumpRelaysBothDirections(t *testing.T) {
	aListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer aListener.Close()
	bListener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer bListener.Close()

	aSrv := make(chan net.Conn, 1)
	bSrv := make(chan net.Conn, 1)
	go func() { c, _ := aListener.Accept(); aSrv <- c }()
	go func() { c, _ := bListener.Accept(); bSrv <- c }()

	aCli, err := net.Dial("tcp", aListener.Addr().String())
	require.NoError(t, err)
	defer aCli.Close()
	bCli, err := net.Dial("tcp", bListener.Addr().String())
	require.NoError(t, err)
	defer bCli.Close()

	a := <-aSrv
	b := <-bSrv
	defer a.Close()
	defer b.Close()

	done := make(chan error, 1)
	go func() { done <- Pump(a, b) }()

	_, err = aCli.Write([]byte("hello-from-a"))
	require.NoError(t, err)
	buf := make([]byte, 32)
	bCli.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := bCli.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello-from-a", string(buf[:n]))

	_, err = bCli.Write([]byte("hello-from-b"))
	require.NoError(t, err)
	aCli.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err = aCli.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello-from-b", string(buf[:n]))

	aCli.Close()
	bCli.Close()
	select {
	case err := <-done:
		assert.True(t, err == nil || err == io.EOF)
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not return after both peers closed")
	}
}
