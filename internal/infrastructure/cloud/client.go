package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	apperrors "botlink/pkg/errors"
)

// Client multiplexes requests and signaling streams over one cloud stream.
// A single goroutine reads; writes are serialized. Once the stream fails
// every pending and future call returns the failure.
type Client struct {
	stream ports.CloudStream
	cfg    domain.AppClientConfig
	logger *zap.SugaredLogger

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan *Message
	streams map[uint64]*signalingStream
	err     error

	closed    chan struct{}
	closeOnce sync.Once
}

func NewClient(stream ports.CloudStream, cfg domain.AppClientConfig, logger *zap.SugaredLogger) *Client {
	c := &Client{
		stream:  stream,
		cfg:     cfg,
		logger:  logger,
		pending: make(map[uint64]chan *Message),
		streams: make(map[uint64]*signalingStream),
		closed:  make(chan struct{}),
	}
	go c.readLoop()
	return c
}

func (c *Client) readLoop() {
	for {
		var msg Message
		if err := c.stream.ReadJSON(&msg); err != nil {
			c.fail(apperrors.NewCloudTransportError(err))
			return
		}
		c.dispatch(&msg)
	}
}

func (c *Client) dispatch(msg *Message) {
	switch msg.Type {
	case TypeResponse:
		c.mu.Lock()
		ch, ok := c.pending[msg.ID]
		delete(c.pending, msg.ID)
		c.mu.Unlock()
		if ok {
			ch <- msg
		}

	case TypeOffer:
		c.mu.Lock()
		s, ok := c.streams[msg.Stream]
		c.mu.Unlock()
		if !ok {
			c.logger.Debugw("offer for unknown signaling stream", "stream", msg.Stream)
			return
		}
		var offer domain.Offer
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			c.logger.Warnw("invalid offer payload", "stream", msg.Stream, "error", err)
			return
		}
		if !s.deliver(&offer) {
			c.logger.Warnw("dropping offer, signaling stream is full", "stream", msg.Stream, "uuid", offer.UUID)
		}

	default:
		c.logger.Debugw("ignoring cloud message", "type", msg.Type)
	}
}

// fail records the first terminal error and releases everything waiting on
// the client.
func (c *Client) fail(err error) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		streams := c.streams
		c.streams = make(map[uint64]*signalingStream)
		c.mu.Unlock()

		close(c.closed)
		for _, s := range streams {
			s.shutdown()
		}
		c.stream.Close()
	})
}

// Err returns the error the client failed with, or nil while it is usable.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Client) call(ctx context.Context, typ string, stream uint64, req interface{}, resp interface{}) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}

	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return err
	}
	c.nextID++
	id := c.nextID
	ch := make(chan *Message, 1)
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.write(&Message{Type: typ, ID: id, Stream: stream, Payload: payload}); err != nil {
		return err
	}

	select {
	case msg := <-ch:
		if msg.Error != "" {
			return fmt.Errorf("%s: %s", typ, msg.Error)
		}
		if resp == nil || len(msg.Payload) == 0 {
			return nil
		}
		if err := json.Unmarshal(msg.Payload, resp); err != nil {
			return fmt.Errorf("decode %s response: %w", typ, err)
		}
		return nil
	case <-c.closed:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) write(msg *Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.stream.WriteJSON(msg); err != nil {
		werr := apperrors.NewCloudTransportError(err)
		c.fail(werr)
		return werr
	}
	return nil
}

func (c *Client) ConnectSignaling(ctx context.Context) (ports.Signaling, error) {
	c.mu.Lock()
	if c.err != nil {
		err := c.err
		c.mu.Unlock()
		return nil, err
	}
	c.nextID++
	s := newSignalingStream(c.nextID, c)
	c.streams[s.id] = s
	c.mu.Unlock()

	if err := c.call(ctx, TypeListenSignaling, s.id, ListenSignalingRequest{Host: c.cfg.RPCHost}, nil); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (c *Client) removeStream(id uint64) {
	c.mu.Lock()
	delete(c.streams, id)
	c.mu.Unlock()
}

func (c *Client) GetConfig(ctx context.Context) (*domain.ConfigResponse, *time.Time, error) {
	var resp GetConfigResponse
	if err := c.call(ctx, TypeGetConfig, 0, GetConfigRequest{RobotID: c.cfg.RobotID}, &resp); err != nil {
		return nil, nil, err
	}
	return &resp.Config, resp.Timestamp, nil
}

func (c *Client) PushLogs(ctx context.Context, entries []domain.LogEntry) error {
	return c.call(ctx, TypePushLogs, 0, PushLogsRequest{RobotID: c.cfg.RobotID, Logs: entries}, nil)
}

func (c *Client) Close() error {
	c.fail(domain.ErrCloudClientClosed)
	return nil
}

// Closed is closed once the client has failed or been closed.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// ClientBuilder wraps connected streams in a Client.
type ClientBuilder struct {
	logger *zap.SugaredLogger
}

func NewClientBuilder(logger *zap.SugaredLogger) *ClientBuilder {
	return &ClientBuilder{logger: logger}
}

func (b *ClientBuilder) Build(ctx context.Context, stream ports.CloudStream, cfg domain.AppClientConfig) (ports.CloudClient, error) {
	if stream == nil {
		return nil, errors.New("cloud stream is nil")
	}
	return NewClient(stream, cfg, b.logger), nil
}
