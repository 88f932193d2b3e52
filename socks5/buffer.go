package socks5

import (
	"io"
	"sync"

	"github.com/mohanson/veil/lib/priority"
)

// pendingWrite is one queued write, together with the channel its caller
// waits on for the outcome.
type pendingWrite struct {
	data []byte
	done chan error
}

// WriteQueue is the ordered FIFO of buffered writes used while a handshake
// is in flight (§4.2, §4.9 buffering contract). Writes issued before the
// handshake completes are queued rather than sent, in order. A single
// "flush mark" records the boundary between the prefix that was already
// requested-flushed and the part that wasn't. Establishing the connection
// drains the flushed prefix first (as one write), then the remainder,
// preserving FIFO order and the pre-/post-flush ordering guarantee.
//
// Mutual exclusion is a two-level priority.Priority rather than a plain
// Mutex. Write/Flush/Len only ever need level 0. Drain locks levels 0 and 1
// together, so a Drain in progress can never interleave with a concurrent
// Write appending to the slice it is about to swap out from under itself.
//
// A zero WriteQueue is ready to use.
type WriteQueue struct {
	once      sync.Once
	pri       *priority.Priority
	items     []pendingWrite
	flushMark int
}

func (q *WriteQueue) lock() *priority.Priority {
	q.once.Do(func() { q.pri = priority.NewPriority(2) })
	return q.pri
}

// Write queues data for later delivery and returns a channel that receives
// exactly one error (nil on success) once the data is actually written.
// Empty writes are dropped; nothing is queued. The returned channel still
// succeeds, matching the "empty writes succeed without being queued" rule
// in §4.2.
func (q *WriteQueue) Write(data []byte) <-chan error {
	done := make(chan error, 1)
	if len(data) == 0 {
		done <- nil
		return done
	}
	q.lock().Pri(0, func() error {
		q.items = append(q.items, pendingWrite{data: data, done: done})
		return nil
	})
	return done
}

// Flush moves the flush mark to the current end of the queue: every write
// enqueued so far is now part of the "already flushed" prefix; writes
// queued after this call are not, until Flush is called again.
func (q *WriteQueue) Flush() {
	q.lock().Pri(0, func() error {
		q.flushMark = len(q.items)
		return nil
	})
}

// Drain writes the flushed prefix to w first (as a single write, so the
// network sees it as one unit), resolves those promises, then writes the
// remaining, not-yet-flushed items and resolves those. No further flush
// boundary applies to the remainder: the connection is established, so
// anything still queued goes out in order right away. It returns the first
// write error, if any. Every promise not already resolved by a successful
// write, flushed and not, is resolved with that same error so no caller is
// left hanging on a broken connection.
func (q *WriteQueue) Drain(w io.Writer) error {
	var items []pendingWrite
	var mark int
	q.lock().Pri(1, func() error {
		items = q.items
		mark = q.flushMark
		q.items = nil
		q.flushMark = 0
		return nil
	})

	writeGroup := func(group []pendingWrite) error {
		if len(group) == 0 {
			return nil
		}
		var total int
		for _, it := range group {
			total += len(it.data)
		}
		buf := make([]byte, 0, total)
		for _, it := range group {
			buf = append(buf, it.data...)
		}
		_, err := w.Write(buf)
		for _, it := range group {
			it.done <- err
		}
		return err
	}

	if err := writeGroup(items[:mark]); err != nil {
		for _, it := range items[mark:] {
			it.done <- err
		}
		return err
	}
	return writeGroup(items[mark:])
}

// Len reports the number of writes currently queued, for tests.
func (q *WriteQueue) Len() int {
	var n int
	q.lock().Pri(0, func() error {
		n = len(q.items)
		return nil
	})
	return n
}
