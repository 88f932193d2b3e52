// Package httpproxy implements the HTTP/1.1 CONNECT client (C5) and the
// HTTP/1.1 proxy server (C6): absolute-form and CONNECT dispatch, hop-by-hop
// header stripping, and the MitM wiring point for intercepted CONNECT
// tunnels.
package httpproxy

import (
	"bufio"
	"encoding/base64"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/mohanson/veil/glue"
	veil "github.com/mohanson/veil"
)

// BasicAuth carries the Proxy-Authorization credentials a CONNECT client may
// present to its upstream proxy.
type BasicAuth struct {
	Username string
	Password string
}

func (a BasicAuth) header() string {
	raw := a.Username + ":" + a.Password
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}

// InvalidProxyResponseError is returned when the upstream proxy answers a
// CONNECT request with anything other than a 2xx status.
type InvalidProxyResponseError struct {
	Status string
	Head   *http.Response
}

func (e *InvalidProxyResponseError) Error() string {
	return fmt.Sprintf("httpproxy: CONNECT rejected: %s", e.Status)
}

// Client issues an HTTP/1.1 CONNECT request to an upstream proxy and, on
// success, hands back a transparent tunnel (C5).
type Client struct {
	conn io.ReadWriteCloser
	r    *bufio.Reader
}

// NewClient wraps conn (already dialed to the upstream HTTP proxy).
func NewClient(conn io.ReadWriteCloser) *Client {
	return &Client{conn: conn, r: bufio.NewReader(conn)}
}

// Connect issues "CONNECT hostport HTTP/1.1" with a Host header and, if auth
// is non-nil, a Proxy-Authorization header. Any 2xx response is treated as
// success; anything else fails with *InvalidProxyResponseError carrying the
// response head. A response body, if any, is discarded rather than parsed.
// §4.4 says it must be ignored, not forwarded.
func (c *Client) Connect(hostport string, auth *BasicAuth) (io.ReadWriteCloser, error) {
	req := "CONNECT " + hostport + " HTTP/1.1\r\n" +
		"Host: " + hostport + "\r\n"
	if auth != nil {
		req += "Proxy-Authorization: " + auth.header() + "\r\n"
	}
	req += "\r\n"

	if _, err := io.WriteString(c.conn, req); err != nil {
		return nil, veil.NewError(veil.KindProtocolViolation, "httpproxy: write CONNECT", err)
	}

	resp, err := http.ReadResponse(c.r, nil)
	if err != nil {
		return nil, veil.NewError(veil.KindProtocolViolation, "httpproxy: read CONNECT response", err)
	}
	io.Copy(ioutil.Discard, io.LimitReader(resp.Body, 1<<20))
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &InvalidProxyResponseError{Status: resp.Status, Head: resp}
	}

	return glue.Wrap(c.r, c.conn, c.conn), nil
}
