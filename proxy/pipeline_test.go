package proxy

import (
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineSOCKS5DirectRoundtrip(t *testing.T) {
	echoLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer echoLn.Close()
	go func() {
		conn, err := echoLn.Accept()
		if err != nil {
			return
		}
		io.Copy(conn, conn)
	}()

	rules, err := router.ParseRuleList(strings.NewReader("FINAL,DIRECT\n"))
	require.NoError(t, err)
	matcher := router.NewCachedMatcher(router.NewMatcher(rules, nil, nil), 0)

	p := &Pipeline{
		Matcher:   matcher,
		Outbounds: map[string]Outbound{"DIRECT": DirectOutbound{}},
	}

	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	go p.HandleSOCKS5(serverConn)

	clientConn.Write([]byte{0x05, 0x01, 0x00})
	sel := make([]byte, 2)
	io.ReadFull(clientConn, sel)
	assert.Equal(t, []byte{0x05, 0x00}, sel)

	_, port, _ := net.SplitHostPort(echoLn.Addr().String())
	dest := addr.NewDomainPort("127.0.0.1", mustAtoi(port))
	req := []byte{0x05, 0x01, 0x00, 0x03, byte(len(dest.Hostname()))}
	req = append(req, []byte(dest.Hostname())...)
	req = append(req, byte(dest.Port()>>8), byte(dest.Port()))
	clientConn.Write(req)

	reply := make([]byte, 4)
	io.ReadFull(clientConn, reply)
	assert.Equal(t, byte(0x00), reply[1])

	// drain the rest of the BND.ADDR/BND.PORT per ATYP in reply[3]
	drainBoundAddress(clientConn, reply[3])

	clientConn.Write([]byte("ping"))
	buf := make([]byte, 4)
	clientConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err = io.ReadFull(clientConn, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
}

func drainBoundAddress(r io.Reader, atyp byte) {
	switch atyp {
	case 0x01:
		io.ReadFull(r, make([]byte, 4+2))
	case 0x04:
		io.ReadFull(r, make([]byte, 16+2))
	case 0x03:
		lenBuf := make([]byte, 1)
		io.ReadFull(r, lenBuf)
		io.ReadFull(r, make([]byte, int(lenBuf[0])+2))
	}
}

func mustAtoi(s string) uint16 {
	var n uint16
	for _, c := range s {
		n = n*10 + uint16(c-'0')
	}
	return n
}
