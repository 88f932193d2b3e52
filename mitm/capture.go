package mitm

import (
	"bytes"
	"compress/gzip"
	"compress/flate"
	"io"
	"net/http"
	"net/http/httputil"
	"unicode/utf8"

	"github.com/mohanson/veil"
)

// CaptureRecord is a single logged request/response pair, from an
// absolute-form request or from inside an intercepted MitM tunnel (§4.9).
// Body is best-effort decoded text of at most the first captureBodyLimit
// bytes; it is empty when that text is not valid UTF-8.
type CaptureRecord struct {
	Host       string
	Method     string
	URL        string
	StatusCode int
	ReqHeaders http.Header
	RespHeaders http.Header
	ReqBody    string
	RespBody   string
}

// CaptureFunc receives a completed CaptureRecord. Implementations must not
// block the proxy's data path for long; logging to disk or a channel is
// typical.
type CaptureFunc func(CaptureRecord)

// captureBodyLimit bounds how much of a body is buffered for logging. Bodies
// beyond this size are still proxied in full; only the captured copy is
// truncated.
const captureBodyLimit = 64 * 1024

// CaptureRequest extracts a best-effort text copy of req's body for logging
// and restores req.Body so the real request is unaffected. Over-limit bodies
// are captured truncated to captureBodyLimit; non-UTF8 bodies decode to "".
func CaptureRequest(req *http.Request) string {
	if req.Body == nil {
		return ""
	}
	raw, body := drainAndRestore(req.Body, req.Header.Get("Content-Encoding"))
	req.Body = body
	return raw
}

// CaptureResponse extracts a best-effort text copy of resp's body for
// logging and restores resp.Body so the real response is unaffected.
func CaptureResponse(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	raw, body := drainAndRestore(resp.Body, resp.Header.Get("Content-Encoding"))
	resp.Body = body
	return raw
}

func drainAndRestore(body io.ReadCloser, encoding string) (string, io.ReadCloser) {
	data, err := io.ReadAll(body)
	body.Close()
	if err != nil {
		return "", io.NopCloser(bytes.NewReader(nil))
	}
	restored := io.NopCloser(bytes.NewReader(data))
	captured := data
	if len(captured) > captureBodyLimit {
		captured = captured[:captureBodyLimit]
	}
	text := decodeForLog(captured, encoding)
	return text, restored
}

// decodeForLog best-effort inflates a gzip/deflate body for logging only; on
// any failure it falls back to the raw bytes, and non-UTF8 results in "".
func decodeForLog(data []byte, encoding string) string {
	decoded := data
	switch encoding {
	case "gzip":
		if zr, err := gzip.NewReader(bytes.NewReader(data)); err == nil {
			if out, err := io.ReadAll(zr); err == nil {
				decoded = out
			}
		}
	case "deflate":
		fr := flate.NewReader(bytes.NewReader(data))
		if out, err := io.ReadAll(fr); err == nil {
			decoded = out
		}
	}
	if !utf8.Valid(decoded) {
		return ""
	}
	return string(decoded)
}

// DumpRequestLine renders req's request line and headers for diagnostic
// logging, mirroring the teacher's use of httputil for human-readable dumps.
func DumpRequestLine(req *http.Request) string {
	b, err := httputil.DumpRequest(req, false)
	if err != nil {
		veil.Log().Debugw("mitm: dump request failed", "err", err)
		return req.Method + " " + req.URL.String()
	}
	return string(b)
}
