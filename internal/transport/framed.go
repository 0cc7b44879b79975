// Package transport implements the nonblocking framed connection and
// selector loop that the peer mesh is built on. Go's net.Conn is a
// blocking API; FramedConn emulates socket-style nonblocking reads by
// probing the connection with a near-zero read deadline, matching the
// single-threaded cooperative model the mesh expects (see internal/mesh).
package transport

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"
)

// ErrClosed is returned by Recv when the peer has cleanly closed the
// connection.
var ErrClosed = errors.New("transport: connection closed")

const probeDeadline = 200 * time.Microsecond

// FramedConn wraps a stream socket with an inbound and outbound byte
// buffer and exposes the readiness predicates the selector loop needs.
type FramedConn struct {
	conn     net.Conn
	inbound  bytes.Buffer
	outbound bytes.Buffer
	lastErr  error
}

// NewFramedConn wraps conn. conn must support SetReadDeadline/
// SetWriteDeadline (every net.Conn implementation in the standard library
// does, including net.Pipe since Go 1.10).
func NewFramedConn(conn net.Conn) *FramedConn {
	return &FramedConn{conn: conn}
}

// Conn returns the underlying connection.
func (c *FramedConn) Conn() net.Conn { return c.conn }

// Recv pulls as many bytes as the socket will yield right now into the
// inbound buffer, without blocking the caller. It returns the number of
// bytes appended. ErrClosed is returned once the peer has performed a
// clean TCP close; any other non-nil error is a hard I/O failure.
func (c *FramedConn) Recv() (int, error) {
	var buf [4096]byte
	total := 0
	for {
		if err := c.conn.SetReadDeadline(time.Now().Add(probeDeadline)); err != nil {
			c.lastErr = err
			return total, err
		}
		n, err := c.conn.Read(buf[:])
		if n > 0 {
			c.inbound.Write(buf[:n])
			total += n
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return total, nil
			}
			if errors.Is(err, io.EOF) {
				c.lastErr = ErrClosed
				return total, ErrClosed
			}
			c.lastErr = err
			return total, err
		}
		if n < len(buf) {
			return total, nil
		}
	}
}

// frameLen returns the total length of the next frame buffered (including
// the length header itself) if the header has fully arrived, or 0, false
// if fewer than 4 bytes are buffered.
func (c *FramedConn) frameLen() (uint32, bool) {
	b := c.inbound.Bytes()
	if len(b) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(b[:4]), true
}

// CanRead reports whether at least one complete frame is buffered.
func (c *FramedConn) CanRead() bool {
	length, ok := c.frameLen()
	if !ok {
		return false
	}
	return uint32(c.inbound.Len()) >= length
}

// FrameCount returns how many complete frames are currently stacked in the
// inbound buffer.
func (c *FramedConn) FrameCount() int {
	b := c.inbound.Bytes()
	count := 0
	for len(b) >= 4 {
		length := binary.LittleEndian.Uint32(b[:4])
		if length < 4 || uint32(len(b)) < length {
			break
		}
		b = b[length:]
		count++
	}
	return count
}

// PopFrame removes and returns the body of the next complete frame
// (everything after the 4-byte length header). It reports false if no
// complete frame is buffered.
func (c *FramedConn) PopFrame() ([]byte, bool) {
	length, ok := c.frameLen()
	if !ok || uint32(c.inbound.Len()) < length || length < 4 {
		return nil, false
	}
	frame := make([]byte, length)
	c.inbound.Read(frame) //nolint:errcheck // length already validated above
	return frame[4:], true
}

// QueueFrame appends a fully framed message (length header included) to
// the outbound buffer.
func (c *FramedConn) QueueFrame(frame []byte) {
	c.outbound.Write(frame)
}

// CanWrite reports whether the outbound buffer has been fully drained.
func (c *FramedConn) CanWrite() bool {
	return c.outbound.Len() == 0
}

// Send writes from the outbound buffer until the socket would block or the
// buffer empties.
func (c *FramedConn) Send() error {
	for c.outbound.Len() > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(probeDeadline)); err != nil {
			c.lastErr = err
			return err
		}
		n, err := c.conn.Write(c.outbound.Bytes())
		if n > 0 {
			c.outbound.Next(n)
		}
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				return nil
			}
			c.lastErr = err
			return err
		}
	}
	return nil
}

// Clear resets both buffers, discarding any unconsumed bytes.
func (c *FramedConn) Clear() {
	c.inbound.Reset()
	c.outbound.Reset()
}

// Err returns the last hard error observed on this connection, if any.
func (c *FramedConn) Err() error {
	return c.lastErr
}

// Close closes the underlying socket.
func (c *FramedConn) Close() error {
	return c.conn.Close()
}
