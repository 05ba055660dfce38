package webrtc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
)

var errICEFailed = errors.New("ice connection failed")

// Config configures every peer connection the factory creates.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

// EngineFactory creates one Engine per signaling exchange.
type EngineFactory struct {
	config Config
	logger *zap.SugaredLogger
}

func NewEngineFactory(config Config, logger *zap.SugaredLogger) *EngineFactory {
	return &EngineFactory{config: config, logger: logger}
}

func (f *EngineFactory) NewEngine(sig ports.Signaling, ip net.IP) (ports.SessionEngine, error) {
	if sig == nil {
		return nil, errors.New("signaling stream is nil")
	}
	api, err := f.newAPI(ip)
	if err != nil {
		return nil, err
	}
	return &Engine{
		api:       api,
		config:    webrtc.Configuration{ICEServers: f.config.ICEServers},
		sig:       sig,
		logger:    f.logger,
		connected: make(chan struct{}),
		failed:    make(chan struct{}),
		channels:  make(chan net.Conn, 1),
	}, nil
}

func (f *EngineFactory) newAPI(ip net.IP) (*webrtc.API, error) {
	settingEngine := webrtc.SettingEngine{}
	settingEngine.DetachDataChannels()
	if f.config.PortRange.Min > 0 && f.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(f.config.PortRange.Min, f.config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("set udp port range: %w", err)
		}
	}
	if ip != nil {
		settingEngine.SetNAT1To1IPs([]string{ip.String()}, webrtc.ICECandidateTypeHost)
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(settingEngine)), nil
}

// Engine answers a single offer from its signaling stream and hands the
// peer's data channel back as a net.Conn.
type Engine struct {
	api    *webrtc.API
	config webrtc.Configuration
	sig    ports.Signaling
	logger *zap.SugaredLogger

	mu sync.Mutex
	pc *webrtc.PeerConnection

	connected     chan struct{}
	connectedOnce sync.Once
	failed        chan struct{}
	failedOnce    sync.Once
	channels      chan net.Conn

	closeOnce sync.Once
}

// Answer waits for the next offer. Offers that do not outrank hint are
// declined with domain.ErrLowerPriority.
func (e *Engine) Answer(ctx context.Context, hint *domain.Priority) (*domain.SDP, domain.Priority, error) {
	offer, err := e.sig.NextOffer(ctx)
	if err != nil {
		return nil, 0, err
	}

	if !offer.Priority.Preempts(hint) {
		e.decline(ctx, offer.UUID, domain.ErrLowerPriority)
		return nil, offer.Priority, domain.ErrLowerPriority
	}

	answer, err := e.negotiate(ctx, offer)
	if err != nil {
		e.decline(ctx, offer.UUID, err)
		return nil, offer.Priority, err
	}

	if err := e.sig.SendAnswer(ctx, domain.Answer{UUID: offer.UUID, SDP: answer}); err != nil {
		return nil, offer.Priority, fmt.Errorf("send answer: %w", err)
	}
	return answer, offer.Priority, nil
}

func (e *Engine) negotiate(ctx context.Context, offer *domain.Offer) (*domain.SDP, error) {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	e.mu.Lock()
	e.pc = pc
	e.mu.Unlock()

	pc.OnICEConnectionStateChange(e.handleICEState(offer.UUID))
	pc.OnDataChannel(e.handleDataChannel)

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return nil, fmt.Errorf("set remote description: %w", err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	local := pc.LocalDescription()
	return &domain.SDP{Type: domain.SDPTypeAnswer, SDP: local.SDP}, nil
}

func (e *Engine) decline(ctx context.Context, uuid string, reason error) {
	if err := e.sig.SendAnswer(ctx, domain.Answer{UUID: uuid, Error: reason.Error()}); err != nil {
		e.logger.Debugw("failed to decline offer", "uuid", uuid, "error", err)
	}
}

func (e *Engine) handleICEState(uuid string) func(webrtc.ICEConnectionState) {
	return func(state webrtc.ICEConnectionState) {
		e.logger.Debugw("ice connection state changed", "uuid", uuid, "state", state.String())

		switch state {
		case webrtc.ICEConnectionStateConnected:
			e.connectedOnce.Do(func() { close(e.connected) })
		case webrtc.ICEConnectionStateFailed, webrtc.ICEConnectionStateClosed:
			e.failedOnce.Do(func() { close(e.failed) })
		}
	}
}

func (e *Engine) handleDataChannel(dc *webrtc.DataChannel) {
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			e.logger.Warnw("failed to detach data channel", "label", dc.Label(), "error", err)
			return
		}
		conn := NewDataChannelConn(raw, "robot", dc.Label())
		select {
		case e.channels <- conn:
		default:
			// only the first channel carries RPC
			conn.Close()
		}
	})
}

func (e *Engine) RunICEUntilConnected(ctx context.Context, answer *domain.SDP) error {
	select {
	case <-e.connected:
		return nil
	case <-e.failed:
		return errICEFailed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) OpenDataChannel(ctx context.Context) (net.Conn, error) {
	select {
	case conn := <-e.channels:
		return conn, nil
	case <-e.failed:
		return nil, errICEFailed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		e.mu.Lock()
		pc := e.pc
		e.mu.Unlock()

		if pc != nil {
			err = pc.Close()
		}
		if serr := e.sig.Close(); err == nil {
			err = serr
		}
	})
	return err
}
