package socks5

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteQueueFlushOrdering(t *testing.T) {
	q := &WriteQueue{}
	d1 := q.Write([]byte("pre-1"))
	d2 := q.Write([]byte("pre-2"))
	q.Flush()
	d3 := q.Write([]byte("post-1"))

	var buf bytes.Buffer
	require.NoError(t, q.Drain(&buf))
	assert.Equal(t, "pre-1pre-2post-1", buf.String())
	assert.NoError(t, <-d1)
	assert.NoError(t, <-d2)
	assert.NoError(t, <-d3)
}

func TestWriteQueueEmptyWriteSucceedsWithoutQueueing(t *testing.T) {
	q := &WriteQueue{}
	done := q.Write(nil)
	assert.NoError(t, <-done)
	assert.Equal(t, 0, q.Len())
}

func TestWriteQueueErrorFailsAllPending(t *testing.T) {
	q := &WriteQueue{}
	d1 := q.Write([]byte("a"))
	q.Flush()
	d2 := q.Write([]byte("b"))

	err := q.Drain(failingWriter{})
	assert.Error(t, err)
	assert.Equal(t, err, <-d1)
	assert.Equal(t, err, <-d2)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) {
	return 0, bytes.ErrTooLarge
}
