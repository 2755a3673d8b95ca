package ipc

import (
	"os"

	"github.com/blockwell/agentd/pkg/wire"
)

// ReadCallback is invoked by the event loop when sock becomes readable.
type ReadCallback func(ctx *SocketContext)

// WriteCallback is invoked by the event loop when sock becomes writable
// and the output queue is non-empty.
type WriteCallback func(ctx *SocketContext)

// SocketContext wraps a non-blocking socket for the event loop: it owns
// the raw descriptor, an output buffer queue so queued writes never
// partial-write to the caller, a read/write callback pair, and an opaque
// user pointer the callbacks can stash state in.
type SocketContext struct {
	File *os.File
	Fd   int

	Reader *wire.Reader
	Writer *wire.Writer

	outQueue [][]byte

	OnRead  ReadCallback
	OnWrite WriteCallback

	UserData any
}

// NewSocketContext wraps f, which must already be in non-blocking mode
// (see MakeNonblock), with a wire.Reader/Writer pair configured for
// Nonblock retry semantics so callbacks never block the event loop.
func NewSocketContext(f *os.File) *SocketContext {
	return &SocketContext{
		File:   f,
		Fd:     int(f.Fd()),
		Reader: wire.NewReader(f, wire.Nonblock, 0),
		Writer: wire.NewWriter(f, wire.Nonblock, 0),
	}
}

// QueueWrite appends a pre-encoded packet to the output queue; FlushWrites
// drains it without blocking the caller.
func (c *SocketContext) QueueWrite(t wire.Type, payload []byte) error {
	buf, err := wire.Encode(t, payload)
	if err != nil {
		return err
	}
	c.outQueue = append(c.outQueue, buf)
	return nil
}

// Pending reports whether the output queue has unflushed bytes.
func (c *SocketContext) Pending() bool {
	return len(c.outQueue) > 0
}

// FlushWrites attempts to drain the output queue without blocking. It
// returns ErrWouldBlock (propagated from the underlying non-blocking
// write) if the queue is not fully drained; the caller should retry on
// the next writable readiness event.
func (c *SocketContext) FlushWrites() error {
	for len(c.outQueue) > 0 {
		buf := c.outQueue[0]
		n, err := c.File.Write(buf)
		if n > 0 {
			buf = buf[n:]
		}
		if err != nil {
			if err = wire.AsWouldBlock(err); err == wire.ErrWouldBlock {
				c.outQueue[0] = buf
				return wire.ErrWouldBlock
			}
			return err
		}
		if len(buf) > 0 {
			c.outQueue[0] = buf
			return wire.ErrWouldBlock
		}
		c.outQueue = c.outQueue[1:]
	}
	return nil
}

// Close closes the underlying file descriptor.
func (c *SocketContext) Close() error {
	return c.File.Close()
}
