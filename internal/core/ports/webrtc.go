package ports

import (
	"context"
	"net"

	"botlink/internal/core/domain"
)

// Signaling is one signaling exchange with the cloud: an offer in, an answer out.
type Signaling interface {
	NextOffer(ctx context.Context) (*domain.Offer, error)
	SendAnswer(ctx context.Context, answer domain.Answer) error
	Close() error
}

// SessionEngine negotiates one WebRTC peer connection.
type SessionEngine interface {
	// Answer reads the next offer and answers it. It fails with
	// domain.ErrLowerPriority when the offer does not preempt hint.
	Answer(ctx context.Context, hint *domain.Priority) (*domain.SDP, domain.Priority, error)
	RunICEUntilConnected(ctx context.Context, answer *domain.SDP) error
	OpenDataChannel(ctx context.Context) (net.Conn, error)
	Close() error
}

type SessionEngineFactory interface {
	NewEngine(signaling Signaling, ip net.IP) (SessionEngine, error)
}
