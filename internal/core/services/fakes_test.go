package services

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/internal/core/robot"
)

// fakeConn is an inert net.Conn tagged with the transport that produced it.
type fakeConn struct {
	kind   domain.ConnectionKind
	id     int
	closed atomic.Bool
}

func (c *fakeConn) Read([]byte) (int, error)         { return 0, errors.New("fake conn") }
func (c *fakeConn) Write(b []byte) (int, error)      { return len(b), nil }
func (c *fakeConn) Close() error                     { c.closed.Store(true); return nil }
func (c *fakeConn) LocalAddr() net.Addr              { return &net.TCPAddr{} }
func (c *fakeConn) RemoteAddr() net.Addr             { return &net.TCPAddr{} }
func (c *fakeConn) SetDeadline(time.Time) error      { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error  { return nil }
func (c *fakeConn) SetWriteDeadline(time.Time) error { return nil }

type serviceRecord struct {
	instance, service, proto string
	port                     int
	txt                      map[string]string
}

type fakeAdvertiser struct {
	mu        sync.Mutex
	hostname  string
	records   []serviceRecord
	failOn    int // 1-based AddService call that fails, 0 = never
	calls     int
	shutdowns int
}

func (a *fakeAdvertiser) SetHostname(name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hostname = name
	return nil
}

func (a *fakeAdvertiser) AddService(instance, service, proto string, port int, txt map[string]string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.failOn == a.calls {
		return errors.New("multicast socket unavailable")
	}
	a.records = append(a.records, serviceRecord{instance, service, proto, port, txt})
	return nil
}

func (a *fakeAdvertiser) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.shutdowns++
}

type fakeListener struct {
	conns     chan net.Conn
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{conns: make(chan net.Conn), closed: make(chan struct{})}
}

func (l *fakeListener) Accept(ctx context.Context) (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *fakeListener) Addr() net.Addr { return &net.TCPAddr{Port: 12346} }

func (l *fakeListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

// push delivers a connection and fails the test if nobody accepts it.
func (l *fakeListener) push(t *testing.T, c net.Conn) {
	t.Helper()
	select {
	case l.conns <- c:
	case <-time.After(2 * time.Second):
		t.Fatal("listener connection was never accepted")
	}
}

type fakeStream struct{ closed atomic.Bool }

func (s *fakeStream) ReadJSON(interface{}) error  { return errors.New("fake stream") }
func (s *fakeStream) WriteJSON(interface{}) error { return nil }
func (s *fakeStream) Close() error                { s.closed.Store(true); return nil }

type fakeConnector struct {
	mu       sync.Mutex
	failures int // fail this many Connect calls first
	calls    int
}

func (c *fakeConnector) Connect(ctx context.Context) (ports.CloudStream, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.calls <= c.failures {
		return nil, errors.New("dial tcp: connection refused")
	}
	return &fakeStream{}, nil
}

func (c *fakeConnector) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type signalingOutcome struct {
	sig ports.Signaling
	err error
}

type fakeCloudClient struct {
	signals     chan signalingOutcome
	closed      chan struct{}
	closeOnce   sync.Once
	signalCalls atomic.Int32

	mu      sync.Mutex
	pushed  []domain.LogEntry
	pushErr error

	config    *domain.ConfigResponse
	configTS  *time.Time
	configErr error
}

func newFakeCloudClient() *fakeCloudClient {
	return &fakeCloudClient{signals: make(chan signalingOutcome), closed: make(chan struct{})}
}

func (c *fakeCloudClient) ConnectSignaling(ctx context.Context) (ports.Signaling, error) {
	c.signalCalls.Add(1)
	select {
	case o := <-c.signals:
		return o.sig, o.err
	case <-c.closed:
		return nil, domain.ErrCloudClientClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeCloudClient) GetConfig(ctx context.Context) (*domain.ConfigResponse, *time.Time, error) {
	return c.config, c.configTS, c.configErr
}

func (c *fakeCloudClient) PushLogs(ctx context.Context, entries []domain.LogEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pushErr != nil {
		return c.pushErr
	}
	c.pushed = append(c.pushed, entries...)
	return nil
}

func (c *fakeCloudClient) Pushed() []domain.LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.LogEntry(nil), c.pushed...)
}

func (c *fakeCloudClient) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeCloudClient) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// offer hands the next ConnectSignaling call its result.
func (c *fakeCloudClient) offer(t *testing.T, o signalingOutcome) {
	t.Helper()
	select {
	case c.signals <- o:
	case <-time.After(2 * time.Second):
		t.Fatal("signaling was never requested")
	}
}

type fakeClientBuilder struct {
	mu      sync.Mutex
	clients []*fakeCloudClient
	prepare func(c *fakeCloudClient)
}

func (b *fakeClientBuilder) Build(ctx context.Context, stream ports.CloudStream, cfg domain.AppClientConfig) (ports.CloudClient, error) {
	c := newFakeCloudClient()
	if b.prepare != nil {
		b.prepare(c)
	}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c, nil
}

func (b *fakeClientBuilder) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *fakeClientBuilder) client(t *testing.T, i int) *fakeCloudClient {
	t.Helper()
	require.Eventually(t, func() bool { return b.count() > i }, 2*time.Second, time.Millisecond)
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[i]
}

type fakeSignaling struct{ closed atomic.Bool }

func (s *fakeSignaling) NextOffer(ctx context.Context) (*domain.Offer, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}
func (s *fakeSignaling) SendAnswer(ctx context.Context, a domain.Answer) error { return nil }
func (s *fakeSignaling) Close() error                                         { s.closed.Store(true); return nil }

// fakeEngine answers with a fixed priority and enforces the preemption rule.
type fakeEngine struct {
	prio domain.Priority
	// gate, when set, holds Answer until closed
	gate   chan struct{}
	iceFn  func(ctx context.Context) error
	dcConn *fakeConn

	hint   chan *domain.Priority
	closed atomic.Bool
}

func newFakeEngine(prio domain.Priority, id int) *fakeEngine {
	return &fakeEngine{
		prio:   prio,
		dcConn: &fakeConn{kind: domain.ConnectionWebRTC, id: id},
		hint:   make(chan *domain.Priority, 1),
	}
}

func (e *fakeEngine) Answer(ctx context.Context, hint *domain.Priority) (*domain.SDP, domain.Priority, error) {
	e.hint <- hint
	if e.gate != nil {
		select {
		case <-e.gate:
		case <-ctx.Done():
			return nil, 0, ctx.Err()
		}
	}
	if !e.prio.Preempts(hint) {
		return nil, 0, domain.ErrLowerPriority
	}
	return &domain.SDP{Type: domain.SDPTypeAnswer, SDP: "v=0"}, e.prio, nil
}

func (e *fakeEngine) RunICEUntilConnected(ctx context.Context, answer *domain.SDP) error {
	if e.iceFn != nil {
		return e.iceFn(ctx)
	}
	return nil
}

func (e *fakeEngine) OpenDataChannel(ctx context.Context) (net.Conn, error) {
	return e.dcConn, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Store(true)
	return nil
}

type fakeEngineFactory struct {
	mu      sync.Mutex
	engines []*fakeEngine
	next    int
}

func (f *fakeEngineFactory) add(e ...*fakeEngine) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.engines = append(f.engines, e...)
}

func (f *fakeEngineFactory) NewEngine(sig ports.Signaling, ip net.IP) (ports.SessionEngine, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.next >= len(f.engines) {
		return nil, errors.New("no engine scripted")
	}
	e := f.engines[f.next]
	f.next++
	return e, nil
}

func (f *fakeEngineFactory) created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.next
}

// fakeServe stands in for HTTP/2 serving. HTTP/2 connections return at once;
// WebRTC data channels are served until cancelled.
type fakeServe struct {
	mu        sync.Mutex
	served    []*fakeConn
	active    int
	maxActive int
	cancelled []int
}

func (f *fakeServe) serve(ctx context.Context, conn net.Conn) error {
	fc := conn.(*fakeConn)

	f.mu.Lock()
	f.served = append(f.served, fc)
	if fc.kind == domain.ConnectionHTTP2 {
		f.mu.Unlock()
		return nil
	}
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.mu.Unlock()

	<-ctx.Done()

	f.mu.Lock()
	f.active--
	f.cancelled = append(f.cancelled, fc.id)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *fakeServe) kinds() []domain.ConnectionKind {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.ConnectionKind, len(f.served))
	for i, c := range f.served {
		out[i] = c.kind
	}
	return out
}

func (f *fakeServe) count(kind domain.ConnectionKind) int {
	n := 0
	for _, k := range f.kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

func (f *fakeServe) snapshot() (active, maxActive int, cancelled []int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active, f.maxActive, append([]int(nil), f.cancelled...)
}

type harness struct {
	server    *Server
	adv       *fakeAdvertiser
	listener  *fakeListener
	connector *fakeConnector
	clients   *fakeClientBuilder
	engines   *fakeEngineFactory
	serve     *fakeServe

	cancel context.CancelFunc
	done   chan error
}

func testOptions() Options {
	o := DefaultOptions()
	o.IdleDelay = time.Millisecond
	o.ICETimeout = 50 * time.Millisecond
	o.DataChannelTimeout = 50 * time.Millisecond
	o.LogUploadInterval = 0
	o.CallTimeout = time.Second
	o.ReconnectRate = 1000
	o.ReconnectBurst = 100
	o.FailureThreshold = 100
	o.BreakerTimeout = time.Second
	return o
}

func testConfigResponse() *domain.ConfigResponse {
	return &domain.ConfigResponse{
		Cloud: domain.CloudConfig{
			ID:        "robot-1",
			LocalFQDN: "robot-main.abc123.local.viam.cloud",
			FQDN:      "robot-main.abc123.viam.cloud",
		},
	}
}

type harnessOption func(h *harness, b *ServerBuilder)

func withWebRTC() harnessOption {
	return func(h *harness, b *ServerBuilder) {
		h.engines = &fakeEngineFactory{}
		b.WithWebRTC(h.engines)
	}
}

func withOptions(mutate func(o *Options)) harnessOption {
	return func(h *harness, b *ServerBuilder) {
		o := testOptions()
		mutate(&o)
		b.WithOptions(o)
	}
}

func withLogSource(src LogSource) harnessOption {
	return func(h *harness, b *ServerBuilder) { b.WithLogSource(src) }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	h := &harness{
		adv:       &fakeAdvertiser{},
		listener:  newFakeListener(),
		connector: &fakeConnector{},
		clients:   &fakeClientBuilder{},
		serve:     &fakeServe{},
	}

	b := NewServerBuilder(h.adv, h.connector, h.clients, domain.AppClientConfig{RobotID: "robot-1"}).
		WithHTTP2Listener(h.listener, 12346).
		WithHandler(func(*robot.Shared) http.Handler { return http.NotFoundHandler() }).
		WithOptions(testOptions()).
		WithLogger(zap.NewNop().Sugar())
	for _, o := range opts {
		o(h, b)
	}

	srv, err := b.Build(testConfigResponse())
	require.NoError(t, err)
	srv.serveConn = h.serve.serve
	h.server = srv
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.done = make(chan error, 1)
	go func() {
		h.done <- h.server.Serve(ctx, robot.NewShared(robot.NewLocalRobot(nil)))
	}()
	t.Cleanup(h.stop)
}

func (h *harness) stop() {
	if h.cancel == nil {
		return
	}
	h.cancel()
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
	}
	h.cancel = nil
}
