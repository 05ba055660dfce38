package webrtc

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"botlink/internal/core/domain"
)

type fakeSignaling struct {
	offers chan *domain.Offer

	mu      sync.Mutex
	answers []domain.Answer
	closed  bool
}

func newFakeSignaling(offers ...*domain.Offer) *fakeSignaling {
	s := &fakeSignaling{offers: make(chan *domain.Offer, len(offers))}
	for _, o := range offers {
		s.offers <- o
	}
	return s
}

func (s *fakeSignaling) NextOffer(ctx context.Context) (*domain.Offer, error) {
	select {
	case o := <-s.offers:
		return o, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSignaling) SendAnswer(ctx context.Context, a domain.Answer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.answers = append(s.answers, a)
	return nil
}

func (s *fakeSignaling) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSignaling) sent() []domain.Answer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Answer(nil), s.answers...)
}

func newTestEngine(t *testing.T, sig *fakeSignaling) *Engine {
	t.Helper()
	engine, err := NewEngineFactory(Config{}, zap.NewNop().Sugar()).NewEngine(sig, nil)
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	return engine.(*Engine)
}

func TestEngineFactory(t *testing.T) {
	cfg := Config{}
	cfg.PortRange.Min = 50000
	cfg.PortRange.Max = 50100
	f := NewEngineFactory(cfg, zap.NewNop().Sugar())

	_, err := f.NewEngine(nil, nil)
	assert.Error(t, err)

	engine, err := f.NewEngine(newFakeSignaling(), net.ParseIP("192.168.1.20"))
	require.NoError(t, err)
	assert.NoError(t, engine.Close())
}

func TestEngine_DeclinesLowerPriority(t *testing.T) {
	sig := newFakeSignaling(&domain.Offer{UUID: "o-1", Priority: 3})
	engine := newTestEngine(t, sig)

	hint := domain.Priority(5)
	_, prio, err := engine.Answer(context.Background(), &hint)
	assert.ErrorIs(t, err, domain.ErrLowerPriority)
	assert.Equal(t, domain.Priority(3), prio)

	answers := sig.sent()
	require.Len(t, answers, 1)
	assert.Equal(t, "o-1", answers[0].UUID)
	assert.Nil(t, answers[0].SDP)
	assert.NotEmpty(t, answers[0].Error)

	require.NoError(t, engine.Close())
	assert.True(t, sig.closed)
}

func TestEngine_DeclinesEqualPriority(t *testing.T) {
	sig := newFakeSignaling(&domain.Offer{UUID: "o-1", Priority: 5})
	engine := newTestEngine(t, sig)

	hint := domain.Priority(5)
	_, prio, err := engine.Answer(context.Background(), &hint)
	assert.ErrorIs(t, err, domain.ErrLowerPriority)
	assert.Equal(t, domain.Priority(5), prio)

	answers := sig.sent()
	require.Len(t, answers, 1)
	assert.Nil(t, answers[0].SDP)
	assert.NotEmpty(t, answers[0].Error)
}

func TestEngine_DeclinesMalformedOffer(t *testing.T) {
	sig := newFakeSignaling(&domain.Offer{UUID: "o-1", Priority: 1, SDP: domain.SDP{Type: domain.SDPTypeOffer, SDP: "garbage"}})
	engine := newTestEngine(t, sig)

	_, _, err := engine.Answer(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set remote description")

	answers := sig.sent()
	require.Len(t, answers, 1)
	assert.NotEmpty(t, answers[0].Error)
}

func TestEngine_AnswersDataChannelOffer(t *testing.T) {
	offerer, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()

	_, err = offerer.CreateDataChannel("rpc", nil)
	require.NoError(t, err)
	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetLocalDescription(offer))

	sig := newFakeSignaling(&domain.Offer{
		UUID:     "o-1",
		SDP:      domain.SDP{Type: domain.SDPTypeOffer, SDP: offer.SDP},
		Priority: 2,
	})
	engine := newTestEngine(t, sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	hint := domain.Priority(1)
	answer, prio, err := engine.Answer(ctx, &hint)
	require.NoError(t, err)

	assert.Equal(t, domain.Priority(2), prio)
	assert.Equal(t, domain.SDPTypeAnswer, answer.Type)
	assert.True(t, strings.Contains(answer.SDP, "m=application"), "answer should accept the data channel")

	answers := sig.sent()
	require.Len(t, answers, 1)
	assert.Empty(t, answers[0].Error)
	require.NotNil(t, answers[0].SDP)
	assert.Equal(t, answer.SDP, answers[0].SDP.SDP)

	err = offerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
	assert.NoError(t, err)
}

func TestEngine_WaitsRespectContext(t *testing.T) {
	engine := newTestEngine(t, newFakeSignaling())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	assert.ErrorIs(t, engine.RunICEUntilConnected(ctx, nil), context.DeadlineExceeded)
	_, err := engine.OpenDataChannel(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	_, _, err = engine.Answer(ctx, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEngine_ServesHTTP2OverDataChannel(t *testing.T) {
	settings := webrtc.SettingEngine{}
	settings.DetachDataChannels()
	offerer, err := webrtc.NewAPI(webrtc.WithSettingEngine(settings)).NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	defer offerer.Close()

	dc, err := offerer.CreateDataChannel("rpc", nil)
	require.NoError(t, err)
	clientConns := make(chan net.Conn, 1)
	dc.OnOpen(func() {
		raw, err := dc.Detach()
		if err != nil {
			t.Errorf("Detach: %v", err)
			return
		}
		clientConns <- NewDataChannelConn(raw, "peer", "robot")
	})

	offer, err := offerer.CreateOffer(nil)
	require.NoError(t, err)
	gathered := webrtc.GatheringCompletePromise(offerer)
	require.NoError(t, offerer.SetLocalDescription(offer))
	<-gathered

	sig := newFakeSignaling(&domain.Offer{
		UUID:     "o-1",
		SDP:      domain.SDP{Type: domain.SDPTypeOffer, SDP: offerer.LocalDescription().SDP},
		Priority: 1,
	})
	engine := newTestEngine(t, sig)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	answer, _, err := engine.Answer(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, offerer.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}))
	require.NoError(t, engine.RunICEUntilConnected(ctx, answer))

	serverConn, err := engine.OpenDataChannel(ctx)
	require.NoError(t, err)
	defer serverConn.Close()

	go (&http2.Server{}).ServeConn(serverConn, &http2.ServeConnOpts{
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			w.Write(bytes.ToUpper(body))
		}),
	})

	var clientConn net.Conn
	select {
	case clientConn = <-clientConns:
	case <-ctx.Done():
		t.Fatal("offerer data channel never opened")
	}
	defer clientConn.Close()

	cc, err := (&http2.Transport{}).NewClientConn(clientConn)
	require.NoError(t, err)
	defer cc.Close()

	// larger than one SCTP message in both directions
	payload := bytes.Repeat([]byte("status"), 20*1024)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "http://robot/robot.v1.RobotService/DoCommand", bytes.NewReader(payload))
	require.NoError(t, err)

	resp, err := cc.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, bytes.ToUpper(payload), body)
}
