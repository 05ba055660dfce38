package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"golang.org/x/net/http2"

	"botlink/internal/core/domain"
	apperrors "botlink/pkg/errors"
)

func TestClassifyError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, ErrorKindNone},
		{"goaway", http2.GoAwayError{LastStreamID: 1, ErrCode: http2.ErrCodeNo}, ErrorKindCloudTransport},
		{"http2 connection error", fmt.Errorf("read: %w", http2.ConnectionError(http2.ErrCodeProtocol)), ErrorKindCloudTransport},
		{"websocket close", &websocket.CloseError{Code: websocket.CloseGoingAway}, ErrorKindCloudTransport},
		{"websocket handshake", websocket.ErrBadHandshake, ErrorKindCloudTransport},
		{"eof", fmt.Errorf("connect signaling: %w", io.EOF), ErrorKindCloudTransport},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: syscall.ECONNRESET}, ErrorKindCloudTransport},
		{"closed client", domain.ErrCloudClientClosed, ErrorKindCloudTransport},
		{"wrapped transport app error", fmt.Errorf("push: %w", apperrors.NewCloudTransportError(errors.New("x"))), ErrorKindCloudTransport},
		{"ice timeout", fmt.Errorf("open: %w", apperrors.NewConnectionTimeoutError("ice")), ErrorKindTimeout},
		{"deadline", context.DeadlineExceeded, ErrorKindTimeout},
		{"not configured", apperrors.NewSessionNotConfiguredError(), ErrorKindSessionNotConfigured},
		{"lower priority", fmt.Errorf("answer offer: %w", domain.ErrLowerPriority), ErrorKindRejected},
		{"canceled", context.Canceled, ErrorKindCanceled},
		{"generic", errors.New("malformed offer"), ErrorKindGeneric},
		{"serve error", apperrors.NewServeError(errors.New("bad frame")), ErrorKindGeneric},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyError(tc.err))
		})
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "cloud_transport", ErrorKindCloudTransport.String())
	assert.Equal(t, "rejected", ErrorKindRejected.String())
	assert.Equal(t, "generic", ErrorKind(99).String())
}
