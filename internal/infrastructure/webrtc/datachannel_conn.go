package webrtc

import (
	"io"
	"net"
	"os"
	"sync"
	"time"
)

const (
	readTimer = iota
	writeTimer
)

const (
	// maxMessageSize bounds a single SCTP user message on read.
	maxMessageSize = 64 * 1024
	// maxWriteSize is the largest message sent; peers accept at least this.
	maxWriteSize = 16 * 1024
)

// DataChannelConn adapts a detached data channel to net.Conn so that HTTP/2
// can be served over it. SCTP preserves ordering and reliability but keeps
// message boundaries, so reads drain whole messages into an internal buffer
// and writes are split into bounded messages. A deadline firing closes the
// channel; the conn is unusable afterwards.
type DataChannelConn struct {
	rwc    io.ReadWriteCloser
	local  dataChannelAddr
	remote dataChannelAddr

	readMu  sync.Mutex
	readBuf []byte
	pending []byte

	writeMu sync.Mutex

	mu      sync.Mutex
	timers  [2]*time.Timer
	expired bool

	closeOnce sync.Once
	closeErr  error
}

var _ net.Conn = (*DataChannelConn)(nil)

func NewDataChannelConn(rwc io.ReadWriteCloser, local, remote string) *DataChannelConn {
	return &DataChannelConn{
		rwc:    rwc,
		local:  dataChannelAddr(local),
		remote: dataChannelAddr(remote),
	}
}

// Read serves leftover bytes of the last message before reading the next.
func (c *DataChannelConn) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for len(c.pending) == 0 {
		if c.readBuf == nil {
			c.readBuf = make([]byte, maxMessageSize)
		}
		n, err := c.rwc.Read(c.readBuf)
		if err != nil {
			if c.deadlineExpired() {
				return 0, os.ErrDeadlineExceeded
			}
			return 0, err
		}
		c.pending = c.readBuf[:n]
	}

	n := copy(b, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *DataChannelConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	written := 0
	for len(b) > 0 {
		chunk := b
		if len(chunk) > maxWriteSize {
			chunk = chunk[:maxWriteSize]
		}
		n, err := c.rwc.Write(chunk)
		written += n
		if err != nil {
			if c.deadlineExpired() {
				return written, os.ErrDeadlineExceeded
			}
			return written, err
		}
		b = b[len(chunk):]
	}
	return written, nil
}

func (c *DataChannelConn) Close() error {
	c.mu.Lock()
	c.stopTimersLocked()
	c.mu.Unlock()

	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
	return c.closeErr
}

func (c *DataChannelConn) LocalAddr() net.Addr  { return c.local }
func (c *DataChannelConn) RemoteAddr() net.Addr { return c.remote }

func (c *DataChannelConn) SetDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(readTimer, t)
	c.armLocked(writeTimer, t)
	return nil
}

func (c *DataChannelConn) SetReadDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(readTimer, t)
	return nil
}

func (c *DataChannelConn) SetWriteDeadline(t time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.armLocked(writeTimer, t)
	return nil
}

// armLocked replaces timer i with one firing at t. A zero t clears it.
func (c *DataChannelConn) armLocked(i int, t time.Time) {
	if c.timers[i] != nil {
		c.timers[i].Stop()
		c.timers[i] = nil
	}
	if t.IsZero() || c.expired {
		return
	}
	d := time.Until(t)
	if d <= 0 {
		c.expireLocked()
		return
	}
	c.timers[i] = time.AfterFunc(d, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		c.expireLocked()
	})
}

func (c *DataChannelConn) expireLocked() {
	if c.expired {
		return
	}
	c.expired = true
	c.closeOnce.Do(func() { c.closeErr = c.rwc.Close() })
}

func (c *DataChannelConn) deadlineExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expired
}

func (c *DataChannelConn) stopTimersLocked() {
	for i, t := range c.timers {
		if t != nil {
			t.Stop()
			c.timers[i] = nil
		}
	}
}

type dataChannelAddr string

func (a dataChannelAddr) Network() string { return "webrtc" }
func (a dataChannelAddr) String() string  { return string(a) }
