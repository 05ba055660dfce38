package ports

import (
	"context"
	"net"
)

// Advertiser publishes service records on the local network.
type Advertiser interface {
	SetHostname(name string) error
	AddService(instance, service, proto string, port int, txt map[string]string) error
	Shutdown()
}

// Listener yields raw connections to be served as HTTP/2.
type Listener interface {
	Accept(ctx context.Context) (net.Conn, error)
	Addr() net.Addr
	Close() error
}
