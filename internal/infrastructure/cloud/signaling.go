package cloud

import (
	"context"
	"sync"

	"botlink/internal/core/domain"
)

// signalingStream receives offers pushed by the cloud for one listen
// request and sends answers back through the owning client.
type signalingStream struct {
	id     uint64
	client *Client

	offers    chan *domain.Offer
	done      chan struct{}
	closeOnce sync.Once
}

func newSignalingStream(id uint64, client *Client) *signalingStream {
	return &signalingStream{
		id:     id,
		client: client,
		offers: make(chan *domain.Offer, 4),
		done:   make(chan struct{}),
	}
}

func (s *signalingStream) NextOffer(ctx context.Context) (*domain.Offer, error) {
	select {
	case o := <-s.offers:
		return o, nil
	case <-s.done:
		return nil, domain.ErrSignalingClosed
	case <-s.client.closed:
		return nil, s.client.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *signalingStream) SendAnswer(ctx context.Context, a domain.Answer) error {
	return s.client.call(ctx, TypeAnswer, s.id, AnswerRequest{Answer: a}, nil)
}

func (s *signalingStream) Close() error {
	s.client.removeStream(s.id)
	s.shutdown()
	return nil
}

func (s *signalingStream) deliver(o *domain.Offer) bool {
	select {
	case s.offers <- o:
		return true
	case <-s.done:
		return false
	default:
		return false
	}
}

func (s *signalingStream) shutdown() {
	s.closeOnce.Do(func() { close(s.done) })
}
