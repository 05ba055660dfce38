package services

import (
	"context"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/http2"
)

// HTTP2Options tunes the per-connection HTTP/2 server for constrained memory.
// The connection flow-control window stays at the x/net default, which
// rejects anything below 65535, and writes are always buffered in 4 KiB
// chunks.
type HTTP2Options struct {
	MaxConcurrentStreams uint32
	StreamWindowSize     int32
	MaxReadFrameSize     uint32
	IdleTimeout          time.Duration
}

func DefaultHTTP2Options() HTTP2Options {
	return HTTP2Options{
		MaxConcurrentStreams: 1,
		StreamWindowSize:     2048,
		IdleTimeout:          30 * time.Second,
	}
}

func newHTTP2Server(o HTTP2Options) *http2.Server {
	return &http2.Server{
		MaxConcurrentStreams:     o.MaxConcurrentStreams,
		MaxUploadBufferPerStream: o.StreamWindowSize,
		MaxReadFrameSize:         o.MaxReadFrameSize,
		IdleTimeout:              o.IdleTimeout,
	}
}

// serveHTTP2Conn serves conn as a single prior-knowledge HTTP/2 connection
// and returns when the peer goes away or ctx is cancelled.
func serveHTTP2Conn(ctx context.Context, srv *http2.Server, conn net.Conn, handler http.Handler) error {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	srv.ServeConn(conn, &http2.ServeConnOpts{
		Context: ctx,
		Handler: handler,
	})
	conn.Close()

	return ctx.Err()
}
