package httpproxy

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/mohanson/veil/addr"
	"github.com/mohanson/veil/glue"
	"github.com/mohanson/veil/mitm"
	veil "github.com/mohanson/veil"
)

// hopByHop lists the headers stripped from every forwarded request, per
// §4.5's non-CONNECT flow.
var hopByHop = []string{
	"Proxy-Connection", "Proxy-Authenticate", "Proxy-Authorization",
	"TE", "Trailer", "Transfer-Encoding", "Upgrade", "Connection",
}

// InvalidURLError is returned when an absolute-form request carries no
// usable Host.
type InvalidURLError struct{}

func (InvalidURLError) Error() string { return "httpproxy: missing or empty Host" }

// Credentials checks a username/password pair presented via
// Proxy-Authorization. Any type with this method (including
// socks5.StaticCredentials) satisfies it.
type Credentials interface {
	Check(username, password string) bool
}

// DialFunc resolves a destination to an established outbound connection.
type DialFunc func(dest addr.Address) (io.ReadWriteCloser, error)

// CaptureFunc, if set, receives a record for every request/response pair the
// server forwards, both in the absolute-form path and inside a MitM tunnel.
type CaptureFunc func(mitm.CaptureRecord)

// Server drives the HTTP/1.1 proxy dispatch (C6) on one accepted connection:
// absolute-form requests and the CONNECT upgrade, with optional MitM
// interception of CONNECT tunnels.
type Server struct {
	conn    net.Conn
	r       *bufio.Reader
	Creds   Credentials  // nil disables Proxy-Authorization enforcement
	Certs   *mitm.CertEngine // nil disables MitM; pure tunnel only
	Capture CaptureFunc
}

// NewServer wraps an accepted connection. conn must be a net.Conn (not a
// generic io.ReadWriteCloser) because MitM interception needs to hand the
// connection to crypto/tls.
func NewServer(conn net.Conn) *Server {
	return &Server{conn: conn, r: bufio.NewReader(conn)}
}

// bufferedConn adapts a net.Conn plus a bufio.Reader that has already
// consumed some of its bytes back into a net.Conn, so buffered-but-unread
// bytes are not lost when the connection is handed to crypto/tls or glue.
type bufferedConn struct {
	net.Conn
	r *bufio.Reader
}

func (b *bufferedConn) Read(p []byte) (int, error) { return b.r.Read(p) }

// Serve reads one request from the connection and dispatches it. It returns
// nil once the request (and, for CONNECT, the whole tunnel) has been fully
// handled; the caller should then close the underlying connection if it is
// not already closed. Non-nil errors are non-fatal to the listener but mean
// this connection is done.
func (s *Server) Serve(dial DialFunc) error {
	req, err := http.ReadRequest(s.r)
	if err != nil {
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: read request", err)
	}

	if req.Method == http.MethodConnect {
		return s.serveConnect(req, dial)
	}
	return s.serveAbsolute(req, dial)
}

func (s *Server) serveAbsolute(req *http.Request, dial DialFunc) error {
	host := req.Host
	if host == "" {
		host = req.Header.Get("Host")
	}
	if host == "" {
		s.writeError(400, "Bad Request")
		return InvalidURLError{}
	}
	stripHopByHop(req.Header)

	dest, err := destinationFor(host)
	if err != nil {
		s.writeError(400, "Bad Request")
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: bad Host", err)
	}

	outbound, err := dial(dest)
	if err != nil {
		s.writeError(500, "Internal Server Error")
		return veil.NewError(veil.KindUpstreamUnreachable, "httpproxy: dial failed", err)
	}
	defer outbound.Close()

	var reqBody string
	if s.Capture != nil {
		reqBody = mitm.CaptureRequest(req)
	}
	if err := req.Write(outbound); err != nil {
		s.writeError(500, "Internal Server Error")
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: forward request", err)
	}

	outr := bufio.NewReader(outbound)
	resp, err := http.ReadResponse(outr, req)
	if err != nil {
		s.writeError(500, "Internal Server Error")
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: read origin response", err)
	}
	var respBody string
	if s.Capture != nil {
		respBody = mitm.CaptureResponse(resp)
	}
	if err := resp.Write(s.conn); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: forward response", err)
	}
	if s.Capture != nil {
		s.Capture(mitm.CaptureRecord{
			Host: host, Method: req.Method, URL: req.URL.String(),
			StatusCode: resp.StatusCode, ReqHeaders: req.Header, RespHeaders: resp.Header,
			ReqBody: reqBody, RespBody: respBody,
		})
	}
	return nil
}

// serveConnect implements §4.5's CONNECT flow: authenticate, acknowledge,
// dial, then either pure-tunnel or MitM-intercept depending on whether a
// cert engine is configured, a pattern matches the destination host, and the
// client's first bytes actually look like a TLS ClientHello.
func (s *Server) serveConnect(req *http.Request, dial DialFunc) error {
	if s.Creds != nil {
		if err := s.authenticate(req); err != nil {
			return err
		}
	}

	dest, err := destinationFor(req.Host)
	if err != nil {
		s.writeError(400, "Bad Request")
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: bad CONNECT target", err)
	}

	outbound, err := dial(dest)
	if err != nil {
		s.writeError(500, "Internal Server Error")
		return veil.NewError(veil.KindUpstreamUnreachable, "httpproxy: dial failed", err)
	}

	if _, err := io.WriteString(s.conn, "HTTP/1.1 200 Connection Established\r\nContent-Length: 0\r\n\r\n"); err != nil {
		outbound.Close()
		return veil.NewError(veil.KindProtocolViolation, "httpproxy: write 200", err)
	}

	clientConn := &bufferedConn{Conn: s.conn, r: s.r}

	if s.Certs != nil {
		if _, ok := s.Certs.Match(dest.Hostname()); ok {
			peek := mitm.NewPeekConn(clientConn)
			isHello, err := peek.PeekClientHello()
			if err == nil && isHello {
				return s.serveMitM(peek, dest, outbound)
			}
		}
	}

	return glue.Pump(glue.Wrap(clientConn, clientConn, clientConn), glue.Wrap(outbound, outbound, outbound))
}

// serveMitM terminates TLS toward the client with a freshly minted leaf and
// opens a TLS client toward the origin, then relays decoded HTTP
// request/response pairs between the two, capturing each if configured.
func (s *Server) serveMitM(client *mitm.PeekConn, dest addr.Address, outbound io.ReadWriteCloser) error {
	outConn, isNetConn := outbound.(net.Conn)
	if !isNetConn {
		return glue.Pump(glue.Wrap(client, client, client), glue.Wrap(outbound, outbound, outbound))
	}

	tlsClient := tls.Server(client, s.Certs.ServerTLSConfig())
	if err := tlsClient.Handshake(); err != nil {
		return veil.NewError(veil.KindProtocolViolation, "mitm: client handshake", err)
	}
	tlsOrigin := tls.Client(outConn, s.Certs.ClientTLSConfig(dest.Hostname()))
	if err := tlsOrigin.Handshake(); err != nil {
		tlsClient.Close()
		return veil.NewError(veil.KindUpstreamUnreachable, "mitm: origin handshake", err)
	}

	clientR := bufio.NewReader(tlsClient)
	originR := bufio.NewReader(tlsOrigin)
	for {
		req, err := http.ReadRequest(clientR)
		if err != nil {
			break
		}
		stripHopByHop(req.Header)
		var reqBody string
		if s.Capture != nil {
			reqBody = mitm.CaptureRequest(req)
		}
		if err := req.Write(tlsOrigin); err != nil {
			break
		}
		resp, err := http.ReadResponse(originR, req)
		if err != nil {
			break
		}
		var respBody string
		if s.Capture != nil {
			respBody = mitm.CaptureResponse(resp)
		}
		if err := resp.Write(tlsClient); err != nil {
			break
		}
		if s.Capture != nil {
			s.Capture(mitm.CaptureRecord{
				Host: dest.Hostname(), Method: req.Method, URL: req.URL.String(),
				StatusCode: resp.StatusCode, ReqHeaders: req.Header, RespHeaders: resp.Header,
				ReqBody: reqBody, RespBody: respBody,
			})
		}
	}
	tlsClient.Close()
	tlsOrigin.Close()
	return nil
}

func (s *Server) authenticate(req *http.Request) error {
	header := req.Header.Get("Proxy-Authorization")
	if header == "" {
		s.writeError(407, "Proxy Authentication Required")
		return veil.NewError(veil.KindAuthRequired, "httpproxy: missing Proxy-Authorization", nil)
	}
	user, pass, ok := parseBasicAuth(header)
	if !ok || !s.Creds.Check(user, pass) {
		s.writeError(401, "Unauthorized")
		return veil.NewError(veil.KindAuthFailed, "httpproxy: bad Proxy-Authorization", nil)
	}
	return nil
}

func (s *Server) writeError(code int, status string) {
	io.WriteString(s.conn, "HTTP/1.1 "+strconv.Itoa(code)+" "+status+"\r\nProxy-Connection: close\r\nConnection: close\r\n\r\n")
}

func parseBasicAuth(header string) (user, pass string, ok bool) {
	const prefix = "Basic "
	if !strings.HasPrefix(header, prefix) {
		return "", "", false
	}
	req := &http.Request{Header: http.Header{"Authorization": []string{header}}}
	return req.BasicAuth()
}

func stripHopByHop(h http.Header) {
	for _, name := range hopByHop {
		h.Del(name)
	}
}

func destinationFor(hostport string) (addr.Address, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		host = hostport
		portStr = "80"
	}
	port, err := parsePort(portStr)
	if err != nil {
		return addr.Address{}, err
	}
	if ip := net.ParseIP(host); ip != nil {
		return addr.FromNetAddr(ip, int(port)), nil
	}
	if host == "" {
		return addr.Address{}, InvalidURLError{}
	}
	return addr.NewDomainPort(host, port), nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, InvalidURLError{}
	}
	return uint16(n), nil
}
