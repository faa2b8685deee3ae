package chatserver

import (
	"bufio"
	"net"
	"sync"
)

// conn wraps one accepted TCP connection with the write serialisation
// spec.md §4.12 requires: a response and a push must never interleave
// on the same socket. Every WriteRecord call holds wmu for the
// duration of one record, so a delivery-engine push taking this same
// lock from another goroutine composes safely with the worker's own
// response writes.
type conn struct {
	raw net.Conn
	wmu sync.Mutex
	bw  *bufio.Writer
}

func newConn(raw net.Conn) *conn {
	return &conn{raw: raw, bw: bufio.NewWriter(raw)}
}

// WriteRecord implements session.Connection. line must not include the
// trailing CR LF; WriteRecord appends it.
func (c *conn) WriteRecord(line string) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := c.bw.WriteString(line); err != nil {
		return err
	}
	if _, err := c.bw.WriteString("\r\n"); err != nil {
		return err
	}
	return c.bw.Flush()
}

func (c *conn) Close() error {
	return c.raw.Close()
}
