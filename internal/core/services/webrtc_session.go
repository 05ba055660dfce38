package services

import (
	"context"
	"net"
	"sync"
	"time"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	apperrors "botlink/pkg/errors"
	"botlink/pkg/logger"
)

// ConnServer serves RPC over an established connection until it ends.
type ConnServer func(ctx context.Context, conn net.Conn) error

// WebRTCSession is one negotiated peer connection. It moves from
// negotiated to data-channel-open to serving; Run fails if the data channel
// was never opened.
type WebRTCSession struct {
	ID       string
	Priority domain.Priority

	engine ports.SessionEngine
	answer *domain.SDP
	serve  ConnServer

	mu   sync.Mutex
	conn net.Conn
}

func newWebRTCSession(id string, engine ports.SessionEngine, answer *domain.SDP, prio domain.Priority, serve ConnServer) *WebRTCSession {
	return &WebRTCSession{
		ID:       id,
		Priority: prio,
		engine:   engine,
		answer:   answer,
		serve:    serve,
	}
}

// OpenDataChannel waits for ICE connectivity and then for the peer's data
// channel, each bounded by its own timeout.
func (s *WebRTCSession) OpenDataChannel(ctx context.Context, iceTimeout, dcTimeout time.Duration) error {
	err := runWithTimeout(ctx, iceTimeout, "ice", func(ctx context.Context) error {
		return s.engine.RunICEUntilConnected(ctx, s.answer)
	})
	if err != nil {
		return err
	}

	var conn net.Conn
	err = runWithTimeout(ctx, dcTimeout, "data channel", func(ctx context.Context) error {
		c, err := s.engine.OpenDataChannel(ctx)
		conn = c
		return err
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	return nil
}

// Run serves the opened data channel until ctx is cancelled or the peer
// leaves. The engine is closed on return.
func (s *WebRTCSession) Run(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	defer s.Close()

	if conn == nil {
		return apperrors.NewSessionNotConfiguredError().WithContext("session_id", s.ID)
	}
	return s.serve(ctx, conn)
}

func (s *WebRTCSession) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	return s.engine.Close()
}

// runWithTimeout bounds fn by d even if fn ignores its context. Exceeding
// the bound yields a connection timeout error named after step.
func runWithTimeout(ctx context.Context, d time.Duration, step string, fn func(ctx context.Context) error) error {
	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- fn(tctx) }()

	select {
	case err := <-errCh:
		if err != nil && tctx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return apperrors.NewConnectionTimeoutError(step)
		}
		return err
	case <-tctx.Done():
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return apperrors.NewConnectionTimeoutError(step)
	}
}

// sessionTask tracks the background goroutine serving a WebRTC session.
type sessionTask struct {
	session *WebRTCSession
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
	err     error
}

func startSessionTask(ctx context.Context, sess *WebRTCSession, onExit func(*sessionTask)) *sessionTask {
	tctx, cancel := context.WithCancel(logger.WithSessionID(logger.WithConnection(ctx, string(domain.ConnectionWebRTC)), sess.ID))
	t := &sessionTask{
		session: sess,
		ctx:     tctx,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	go func() {
		defer close(t.done)
		t.err = sess.Run(tctx)
		if onExit != nil {
			onExit(t)
		}
	}()
	return t
}

// Running reports whether the task has not yet exited.
func (t *sessionTask) Running() bool {
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Cancel stops the task and waits for it to exit.
func (t *sessionTask) Cancel() {
	t.cancel()
	<-t.done
}

// Err returns the task's exit error. Only valid after the task has exited.
func (t *sessionTask) Err() error {
	<-t.done
	return t.err
}
