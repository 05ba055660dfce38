package cloud

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"botlink/internal/core/ports"
	"botlink/internal/core/services"
	apperrors "botlink/pkg/errors"
)

const robotIDHeader = "X-Robot-ID"

// Connector dials the cloud app over a websocket authenticated with a
// robot bearer token.
type Connector struct {
	address string
	robotID string
	tokens  services.TokenService
	dialer  *websocket.Dialer
}

func NewConnector(address, robotID string, tokens services.TokenService, dialTimeout time.Duration) *Connector {
	return &Connector{
		address: address,
		robotID: robotID,
		tokens:  tokens,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: dialTimeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  4096,
		},
	}
}

func (c *Connector) Connect(ctx context.Context) (ports.CloudStream, error) {
	token, err := c.tokens.GenerateToken(c.robotID)
	if err != nil {
		return nil, fmt.Errorf("sign robot token: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set(robotIDHeader, c.robotID)

	conn, resp, err := c.dialer.DialContext(ctx, c.address, header)
	if err != nil {
		if resp != nil {
			return nil, apperrors.NewCloudTransportError(err).
				WithContext("status", resp.StatusCode)
		}
		return nil, apperrors.NewCloudTransportError(err)
	}
	return conn, nil
}
