// Package glue implements the bidirectional byte pump (C10) used to splice
// two established connections together. It is the common tail of every
// ingress mode once a destination has been dialed.
package glue

import (
	"io"
	"sync"
)

// ReadWriteCloser composes independent Reader/Writer/Closer values into one
// io.ReadWriteCloser, the way the teacher project's daze.ReadWriteCloser
// does. It is used here to hand a glue pump a buffered reader (with any
// bytes left over from handshake parsing) paired with the raw connection's
// Writer/Closer.
type ReadWriteCloser struct {
	io.Reader
	io.Writer
	io.Closer
}

// CloseWrite delegates to the wrapped Writer when it supports half-close,
// so a ReadWriteCloser built over a *net.TCPConn still participates in
// Pump's half-close handling instead of always falling back to a full
// Close.
func (rwc ReadWriteCloser) CloseWrite() error {
	if hc, ok := rwc.Writer.(halfCloser); ok {
		return hc.CloseWrite()
	}
	return rwc.Close()
}

// halfCloser is implemented by connections that support shutting down one
// direction independently (most notably *net.TCPConn). Pump degrades to a
// full Close when a side doesn't implement it.
type halfCloser interface {
	CloseWrite() error
}

// Pump relays bytes in both directions between a and b until both sides
// have reached EOF or erred, preserving per-direction order. When one side
// hits EOF, the corresponding half of the peer is shut down for writing
// (CloseWrite) if it supports that; when both directions are done, both
// connections are closed. An error on either side propagates as a close of
// both, so neither goroutine can stall waiting on a peer that will never
// read again.
func Pump(a, b io.ReadWriteCloser) error {
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	wg.Add(2)
	setErr := func(err error) {
		if err == nil || err == io.EOF {
			return
		}
		errOnce.Do(func() { firstErr = err })
	}

	copyHalf := func(dst, src io.ReadWriteCloser) {
		defer wg.Done()
		_, err := io.Copy(dst, src)
		setErr(err)
		if err != nil {
			dst.Close()
			src.Close()
			return
		}
		if hc, ok := dst.(halfCloser); ok {
			hc.CloseWrite()
		} else {
			dst.Close()
		}
	}

	go copyHalf(b, a)
	copyHalf(a, b)
	wg.Wait()

	a.Close()
	b.Close()
	return firstErr
}

// Wrap builds an io.ReadWriteCloser from separate reader, writer and closer
// values. It is used to hand the pump a buffered reader (for bytes already
// consumed off the wire during handshake parsing) paired with the
// connection it actually came from for writes/close.
func Wrap(r io.Reader, w io.Writer, c io.Closer) io.ReadWriteCloser {
	return ReadWriteCloser{Reader: r, Writer: w, Closer: c}
}
