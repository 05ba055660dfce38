package services

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"

	"github.com/gorilla/websocket"
	"golang.org/x/net/http2"

	"botlink/internal/core/domain"
	apperrors "botlink/pkg/errors"
)

// ErrorKind is the disposition of a failure seen by the orchestration loop.
type ErrorKind int

const (
	ErrorKindNone ErrorKind = iota
	// ErrorKindCloudTransport drops the cached cloud client.
	ErrorKindCloudTransport
	ErrorKindTimeout
	ErrorKindSessionNotConfigured
	ErrorKindRejected
	ErrorKindCanceled
	ErrorKindGeneric
)

func (k ErrorKind) String() string {
	switch k {
	case ErrorKindNone:
		return "none"
	case ErrorKindCloudTransport:
		return "cloud_transport"
	case ErrorKindTimeout:
		return "timeout"
	case ErrorKindSessionNotConfigured:
		return "session_not_configured"
	case ErrorKindRejected:
		return "rejected"
	case ErrorKindCanceled:
		return "canceled"
	default:
		return "generic"
	}
}

// ClassifyError maps an error from the race or a serve path to its kind.
// Transport-level failures of the cloud link (GOAWAY, I/O, websocket or
// protocol errors) classify as ErrorKindCloudTransport.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}

	switch {
	case apperrors.HasCode(err, apperrors.ErrCodeCloudTransport):
		return ErrorKindCloudTransport
	case apperrors.HasCode(err, apperrors.ErrCodeConnectionTimeout):
		return ErrorKindTimeout
	case apperrors.HasCode(err, apperrors.ErrCodeSessionNotConfigured):
		return ErrorKindSessionNotConfigured
	case errors.Is(err, domain.ErrLowerPriority):
		return ErrorKindRejected
	case errors.Is(err, context.Canceled):
		return ErrorKindCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrorKindTimeout
	}

	if isCloudTransportError(err) {
		return ErrorKindCloudTransport
	}
	return ErrorKindGeneric
}

func isCloudTransportError(err error) bool {
	var (
		goAway   http2.GoAwayError
		connErr  http2.ConnectionError
		closeErr *websocket.CloseError
		opErr    *net.OpError
	)

	switch {
	case errors.As(err, &goAway), errors.As(err, &connErr):
		return true
	case errors.As(err, &closeErr):
		return true
	case errors.Is(err, websocket.ErrCloseSent), errors.Is(err, websocket.ErrBadHandshake):
		return true
	case errors.Is(err, domain.ErrCloudClientClosed), errors.Is(err, domain.ErrSignalingClosed):
		return true
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return true
	case errors.Is(err, syscall.ECONNRESET), errors.Is(err, syscall.EPIPE):
		return true
	case errors.As(err, &opErr):
		return true
	}
	return false
}
