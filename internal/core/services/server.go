package services

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/internal/core/robot"
	"botlink/pkg/circuitbreaker"
	apperrors "botlink/pkg/errors"
	"botlink/pkg/logger"
	"botlink/pkg/tracing"
)

// Server is the running orchestrator. All fields below the collaborators are
// owned by the goroutine running Serve.
type Server struct {
	listener   ports.Listener
	advertiser ports.Advertiser
	connector  ports.CloudConnector
	clients    ports.CloudClientBuilder
	appConfig  domain.AppClientConfig
	identity   domain.CloudIdentity
	handlerFn  HandlerFactory
	metrics    ports.MetricsRecorder
	opts       Options
	logger     *zap.SugaredLogger
	sessionLog *logger.ContextLogger

	h2        *http2.Server
	handler   http.Handler
	serveConn ConnServer
	uploader  *logUploader
	breaker   *circuitbreaker.CircuitBreaker
	reconnect *rate.Limiter

	reconnectEvery time.Duration
	// reconnectNow lets the rebuild after a dropped client skip the limiter.
	reconnectNow bool

	// loop state
	cloudClient   ports.CloudClient
	clientGen     uint64
	session       *sessionTask
	currentPrio   *domain.Priority
	answerer      *signalingAnswerer
	acceptCh      chan acceptResult
	acceptPending bool
	logTicker     <-chan time.Time

	serving   atomic.Bool
	closeOnce sync.Once

	statsMu    sync.RWMutex
	stats      domain.ServerStats
	activeTask *sessionTask
}

func newServer(b *ServerBuilder, identity domain.CloudIdentity) *Server {
	metrics := b.metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}

	opts := b.opts
	if opts.ReconnectRate <= 0 {
		opts.ReconnectRate = 1
	}
	if opts.ReconnectBurst <= 0 {
		opts.ReconnectBurst = 1
	}

	s := &Server{
		listener:   b.listener,
		advertiser: b.advertiser,
		connector:  b.connector,
		clients:    b.clients,
		appConfig:  b.appConfig,
		identity:   identity,
		handlerFn:  b.handler,
		metrics:    metrics,
		opts:       opts,
		logger:     b.logger,
		sessionLog: logger.NewContextLogger(b.logger.Desugar()),

		h2:             newHTTP2Server(opts.HTTP2),
		reconnect:      rate.NewLimiter(rate.Limit(opts.ReconnectRate), opts.ReconnectBurst),
		reconnectEvery: time.Duration(float64(time.Second) / opts.ReconnectRate),
		answerer:       newSignalingAnswerer(b.engines, b.appConfig.IP),
		acceptCh:       make(chan acceptResult, 1),
		breaker: circuitbreaker.New(circuitbreaker.Config{
			FailureThreshold:    opts.FailureThreshold,
			SuccessThreshold:    1,
			Timeout:             opts.BreakerTimeout,
			MaxRequestsHalfOpen: 1,
		}),
	}
	if b.logs != nil {
		s.uploader = newLogUploader(b.logs, identity.FQDN, metrics)
	}
	s.serveConn = func(ctx context.Context, conn net.Conn) error {
		return serveHTTP2Conn(ctx, s.h2, conn, s.handler)
	}
	s.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		s.logger.Warnw("cloud circuit breaker state changed", "from", from.String(), "to", to.String())
	})
	return s
}

// Identity returns the naming resolved at build time.
func (s *Server) Identity() domain.CloudIdentity {
	return s.identity
}

// AppConfig returns the cloud client config with the resolved RPC host.
func (s *Server) AppConfig() domain.AppClientConfig {
	return s.appConfig
}

// Serve runs the orchestration loop until ctx is cancelled or the listener
// is closed. It may be called once.
func (s *Server) Serve(ctx context.Context, shared *robot.Shared) error {
	if !s.serving.CompareAndSwap(false, true) {
		return errors.New("server is already serving")
	}

	s.handler = s.handlerFn(shared)
	s.updateStats(func(st *domain.ServerStats) { st.StartedAt = time.Now() })

	if s.uploader != nil && s.opts.LogUploadInterval > 0 {
		ticker := time.NewTicker(s.opts.LogUploadInterval)
		defer ticker.Stop()
		s.logTicker = ticker.C
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.stopLoop()

	idle := time.NewTimer(s.opts.IdleDelay)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
		}

		if err := s.iterate(ctx, idle); err != nil {
			return err
		}
	}
}

// iterate runs one pass of the loop: reconnect, race, dispatch. A non-nil
// error ends Serve.
func (s *Server) iterate(ctx context.Context, idle *time.Timer) error {
	var iteration uint64
	s.updateStats(func(st *domain.ServerStats) {
		st.Iterations++
		iteration = st.Iterations
	})
	ictx, span := tracing.TraceIteration(ctx, iteration)
	defer span.End()
	defer tracing.MeasureDuration(ictx, time.Now(), "iteration")

	s.ensureCloudClient(ictx)

	s.logger.Debugw("waiting for connection", "webrtc", s.answerer.enabled())
	ic, err := s.next(ctx)
	idle.Reset(s.opts.IdleDelay)

	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if isListenerError(err) && (errors.Is(err, net.ErrClosed) || errors.Is(err, domain.ErrListenerClosed)) {
			return err
		}
		tracing.RecordError(ictx, err)
		s.handleRaceError(err)
		return nil
	}
	if ic == nil {
		tracing.SetSpanStatus(ictx, codes.Ok, "no connection")
		return nil
	}

	s.metrics.RecordRaceWinner(ic.Kind)
	tracing.AddSpanAttributes(ictx, tracing.ConnectionKindKey.String(string(ic.Kind)))
	if err := s.dispatch(ctx, ic); err != nil {
		tracing.RecordError(ictx, err)
		s.recordError(err)
		s.logger.Errorw("error while serving",
			"kind", string(ic.Kind),
			"error_kind", ClassifyError(err).String(),
			"error", err,
		)
		return nil
	}
	tracing.SetSpanStatus(ictx, codes.Ok, string(ic.Kind))
	return nil
}

func (s *Server) handleRaceError(err error) {
	kind := ClassifyError(err)
	if isListenerError(err) {
		kind = ErrorKindGeneric
	}
	s.metrics.RecordRaceError(kind.String())
	s.recordError(err)

	switch kind {
	case ErrorKindCloudTransport:
		s.logger.Warnw("cloud transport failure, dropping cloud client", "error", err)
		s.dropCloudClient()
	case ErrorKindRejected:
		s.logger.Infow("offer ignored", "error", err)
	default:
		s.logger.Errorw("connection attempt failed", "error_kind", kind.String(), "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, ic *IncomingConnection) error {
	switch ic.Kind {
	case domain.ConnectionHTTP2:
		sctx, span := tracing.TraceSession(logger.WithConnection(ctx, string(domain.ConnectionHTTP2)), string(domain.ConnectionHTTP2), "", 0)
		defer span.End()

		start := time.Now()
		s.metrics.RecordSessionStarted(domain.ConnectionHTTP2)
		s.updateStats(func(st *domain.ServerStats) { st.HTTP2Served++ })

		err := s.serveConn(sctx, ic.Conn)
		s.metrics.RecordSessionEnded(domain.ConnectionHTTP2, time.Since(start))
		if err != nil && !errors.Is(err, context.Canceled) {
			tracing.RecordError(sctx, err)
			return apperrors.NewServeError(err)
		}
		s.sessionLog.LogDebug(sctx, "http2 connection closed")
		return nil

	case domain.ConnectionWebRTC:
		sess := ic.Session
		if err := sess.OpenDataChannel(ctx, s.opts.ICETimeout, s.opts.DataChannelTimeout); err != nil {
			sess.Close()
			return fmt.Errorf("open data channel for session %s: %w", sess.ID, err)
		}

		s.metrics.RecordSessionStarted(domain.ConnectionWebRTC)
		s.session = startSessionTask(ctx, sess, s.onSessionExit)
		s.publishSession(s.session)
		s.updateStats(func(st *domain.ServerStats) { st.WebRTCSessions++ })
		s.sessionLog.Sugar(s.session.ctx).Infow("webrtc session started", "priority", uint64(sess.Priority))
		return nil
	}
	return fmt.Errorf("unknown connection kind %q", ic.Kind)
}

// onSessionExit runs on the session goroutine and must not touch loop state.
func (s *Server) onSessionExit(t *sessionTask) {
	s.metrics.RecordSessionEnded(domain.ConnectionWebRTC, time.Since(t.started))
	log := s.sessionLog.Sugar(t.ctx)
	if t.err != nil && !errors.Is(t.err, context.Canceled) {
		log.Warnw("webrtc session exited", "error", t.err)
		return
	}
	log.Infow("webrtc session ended")
}

func (s *Server) ensureCloudClient(ctx context.Context) {
	if s.cloudClient != nil {
		return
	}
	if s.reconnectNow {
		s.reconnectNow = false
	} else if !s.reconnect.Allow() {
		return
	}

	cctx, span := tracing.TraceCloud(ctx, "Connect")
	defer span.End()

	var client ports.CloudClient
	err := s.breaker.Execute(cctx, func(ctx context.Context) error {
		dctx, cancel := context.WithTimeout(ctx, s.opts.CallTimeout)
		defer cancel()

		stream, err := s.connector.Connect(dctx)
		if err != nil {
			return apperrors.NewCloudConnectError("failed to connect to cloud", err)
		}
		built, err := s.clients.Build(dctx, stream, s.appConfig)
		if err != nil {
			stream.Close()
			return apperrors.NewCloudConnectError("failed to build cloud client", err)
		}
		client = built
		return nil
	})
	s.metrics.RecordCloudReconnect(err == nil)
	bs := s.breaker.GetStats()
	s.updateStats(func(st *domain.ServerStats) {
		st.CloudBreaker = bs.State.String()
		st.CloudFailures = bs.FailureCount
	})
	if err != nil {
		tracing.RecordError(cctx, err)
		s.recordError(err)
		s.logger.Warnw("cloud client unavailable, will retry", "error", err)
		return
	}

	s.cloudClient = client
	s.clientGen++
	s.updateStats(func(st *domain.ServerStats) {
		st.HasCloudClient = true
		st.CloudReconnects++
	})
	s.logger.Infow("cloud client connected", "generation", s.clientGen)
}

// dropCloudClient discards the cached client. Outstanding signaling work for
// it becomes stale and is discarded when it reports.
func (s *Server) dropCloudClient() {
	if s.cloudClient == nil {
		return
	}
	if err := s.cloudClient.Close(); err != nil {
		s.logger.Debugw("closing cloud client", "error", err)
	}
	s.cloudClient = nil
	s.clientGen++
	s.reconnectNow = true
	s.updateStats(func(st *domain.ServerStats) { st.HasCloudClient = false })
}

func (s *Server) uploadLogs(ctx context.Context) {
	if s.uploader == nil || s.cloudClient == nil {
		return
	}
	err := s.uploader.upload(ctx, s.cloudClient, s.opts.CallTimeout)
	if err == nil {
		return
	}
	if ClassifyError(err) == ErrorKindCloudTransport {
		s.logger.Warnw("log upload failed, dropping cloud client", "error", err)
		s.dropCloudClient()
		return
	}
	s.logger.Debugw("log upload failed", "error", err)
}

func (s *Server) stopLoop() {
	if s.session != nil {
		s.session.Cancel()
		s.session = nil
		s.publishSession(nil)
	}
	s.dropCloudClient()
}

// Close withdraws the advertisement and stops accepting connections.
func (s *Server) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.advertiser.Shutdown()
		err = s.listener.Close()
	})
	return err
}

// Stats returns a snapshot safe to call from any goroutine.
func (s *Server) Stats() domain.ServerStats {
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()

	st := s.stats
	if s.activeTask != nil && s.activeTask.Running() {
		st.ActiveSession = true
		st.SessionID = s.activeTask.session.ID
		p := s.activeTask.session.Priority
		st.Priority = &p
	}
	return st
}

func (s *Server) publishSession(t *sessionTask) {
	s.statsMu.Lock()
	s.activeTask = t
	s.statsMu.Unlock()
}

func (s *Server) updateStats(fn func(st *domain.ServerStats)) {
	s.statsMu.Lock()
	fn(&s.stats)
	s.statsMu.Unlock()
}

func (s *Server) recordError(err error) {
	s.updateStats(func(st *domain.ServerStats) { st.LastError = err.Error() })
}

type nopMetrics struct{}

func (nopMetrics) RecordRaceWinner(domain.ConnectionKind) {}
func (nopMetrics) RecordRaceError(string) {}
func (nopMetrics) RecordCloudReconnect(bool) {}
func (nopMetrics) RecordSessionStarted(domain.ConnectionKind) {}
func (nopMetrics) RecordSessionEnded(domain.ConnectionKind, time.Duration) {}
func (nopMetrics) RecordPreemption() {}
func (nopMetrics) RecordLogUpload(int, error) {}
