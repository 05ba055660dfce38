package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"

	"botlink/internal/core/domain"
)

// IncomingConnection is the winner of one race: a raw HTTP/2 stream or a
// negotiated WebRTC session whose data channel is not open yet.
type IncomingConnection struct {
	Kind    domain.ConnectionKind
	Conn    net.Conn
	Session *WebRTCSession
}

type acceptResult struct {
	conn net.Conn
	err  error
}

// listenerError marks accept failures so they are never mistaken for cloud
// transport failures.
type listenerError struct {
	err error
}

func (e *listenerError) Error() string { return fmt.Sprintf("accept: %v", e.err) }
func (e *listenerError) Unwrap() error { return e.err }

func (s *Server) ensureAccept(ctx context.Context) {
	if s.acceptPending {
		return
	}
	s.acceptPending = true

	go func() {
		conn, err := s.listener.Accept(ctx)
		select {
		case s.acceptCh <- acceptResult{conn: conn, err: err}:
		case <-ctx.Done():
			if conn != nil {
				conn.Close()
			}
		}
	}()
}

func (s *Server) ensureSignaling(ctx context.Context) {
	if !s.answerer.enabled() || s.cloudClient == nil {
		return
	}
	if !s.answerer.idle(s.clientGen) {
		return
	}
	s.answerer.connect(ctx, s.clientGen, s.cloudClient)
}

// currentHint is the priority of the running session, or nil when no
// session task is alive.
func (s *Server) currentHint() *domain.Priority {
	if s.session == nil || !s.session.Running() || s.currentPrio == nil {
		return nil
	}
	p := *s.currentPrio
	return &p
}

// next races the listener against the signaling branch. Branches that lose
// stay outstanding and are raced again on the following call. It returns
// (nil, nil) when the cloud client should be retried before anything won.
func (s *Server) next(ctx context.Context) (*IncomingConnection, error) {
	s.ensureAccept(ctx)
	s.ensureSignaling(ctx)

	var retry <-chan time.Time
	if s.cloudClient == nil {
		t := time.NewTimer(s.reconnectEvery)
		defer t.Stop()
		retry = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()

		case r := <-s.acceptCh:
			s.acceptPending = false
			if r.err != nil {
				return nil, &listenerError{err: r.err}
			}
			return &IncomingConnection{Kind: domain.ConnectionHTTP2, Conn: r.conn}, nil

		case r := <-s.answerer.sigCh:
			s.answerer.settle(r.gen)
			if r.gen != s.clientGen {
				if r.sig != nil {
					r.sig.Close()
				}
				continue
			}
			if r.err != nil {
				return nil, fmt.Errorf("connect signaling: %w", r.err)
			}
			if err := s.answerer.answer(ctx, r.gen, r.sig, s.currentHint()); err != nil {
				return nil, fmt.Errorf("create session engine: %w", err)
			}

		case r := <-s.answerer.answerCh:
			s.answerer.settle(r.gen)
			if r.gen != s.clientGen {
				r.engine.Close()
				continue
			}
			if r.err != nil {
				r.engine.Close()
				return nil, fmt.Errorf("answer offer: %w", r.err)
			}
			s.preemptSession(r.prio)
			p := r.prio
			s.currentPrio = &p
			sess := newWebRTCSession(uuid.NewString(), r.engine, r.sdp, r.prio, s.serveConn)
			return &IncomingConnection{Kind: domain.ConnectionWebRTC, Session: sess}, nil

		case <-s.logTicker:
			s.uploadLogs(ctx)
			if s.cloudClient == nil && retry == nil {
				return nil, nil
			}

		case <-retry:
			return nil, nil
		}
	}
}

// preemptSession cancels the running session, if any, and waits for it to
// exit so that at most one session is ever served.
func (s *Server) preemptSession(prio domain.Priority) {
	if s.session == nil {
		return
	}
	old := s.session
	s.session = nil
	s.publishSession(nil)

	if !old.Running() {
		return
	}
	s.logger.Infow("preempting webrtc session",
		"session_id", old.session.ID,
		"old_priority", uint64(old.session.Priority),
		"new_priority", uint64(prio),
	)
	old.Cancel()
	s.metrics.RecordPreemption()
	s.updateStats(func(st *domain.ServerStats) { st.Preemptions++ })
}

func isListenerError(err error) bool {
	var le *listenerError
	return errors.As(err, &le)
}
