package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"botlink/internal/core/domain"
)

// TCPListener accepts the raw TCP connections that carry prior-knowledge
// HTTP/2.
type TCPListener struct {
	ln *net.TCPListener
}

func Listen(address string, port int) (*TCPListener, error) {
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(address, fmt.Sprint(port)))
	if err != nil {
		return nil, fmt.Errorf("resolve listen address: %w", err)
	}
	ln, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	return &TCPListener{ln: ln}, nil
}

// Accept waits for the next connection. Cancelling ctx interrupts the wait
// without closing the listener.
func (l *TCPListener) Accept(ctx context.Context) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// clear a deadline left behind by an earlier cancellation
	l.ln.SetDeadline(time.Time{})

	stop := context.AfterFunc(ctx, func() {
		l.ln.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	conn, err := l.ln.AcceptTCP()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, net.ErrClosed) {
			return nil, fmt.Errorf("%w: %w", domain.ErrListenerClosed, err)
		}
		return nil, err
	}
	conn.SetNoDelay(true)
	return conn, nil
}

func (l *TCPListener) Addr() net.Addr {
	return l.ln.Addr()
}

// Port returns the bound port, useful when listening on port 0.
func (l *TCPListener) Port() int {
	return l.ln.Addr().(*net.TCPAddr).Port
}

func (l *TCPListener) Close() error {
	return l.ln.Close()
}
