package services

import (
	"context"
	"net"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
)

type signalingResult struct {
	gen uint64
	sig ports.Signaling
	err error
}

type answerResult struct {
	gen    uint64
	engine ports.SessionEngine
	sdp    *domain.SDP
	prio   domain.Priority
	err    error
}

// signalingAnswerer drives the signaling branch for one cloud client at a
// time: connect signaling, then answer the next offer. Each phase runs in
// its own goroutine and reports on a channel the loop selects on. With no
// engine factory the channels stay nil and the branch never resolves.
type signalingAnswerer struct {
	engines ports.SessionEngineFactory
	ip      net.IP

	sigCh    chan signalingResult
	answerCh chan answerResult

	pending    bool
	pendingGen uint64
}

func newSignalingAnswerer(engines ports.SessionEngineFactory, ip net.IP) *signalingAnswerer {
	a := &signalingAnswerer{engines: engines, ip: ip}
	if engines != nil {
		a.sigCh = make(chan signalingResult, 1)
		a.answerCh = make(chan answerResult, 1)
	}
	return a
}

func (a *signalingAnswerer) enabled() bool {
	return a.engines != nil
}

// idle reports whether a new exchange may start for client generation gen.
func (a *signalingAnswerer) idle(gen uint64) bool {
	return !a.pending || a.pendingGen != gen
}

// settle clears the pending flag if r belongs to the outstanding exchange.
func (a *signalingAnswerer) settle(gen uint64) {
	if a.pending && a.pendingGen == gen {
		a.pending = false
	}
}

func (a *signalingAnswerer) connect(ctx context.Context, gen uint64, client ports.CloudClient) {
	a.pending = true
	a.pendingGen = gen

	go func() {
		sig, err := client.ConnectSignaling(ctx)
		select {
		case a.sigCh <- signalingResult{gen: gen, sig: sig, err: err}:
		case <-ctx.Done():
			if sig != nil {
				sig.Close()
			}
		}
	}()
}

// answer builds an engine over sig and answers the next offer with hint.
// The engine owns sig from here on.
func (a *signalingAnswerer) answer(ctx context.Context, gen uint64, sig ports.Signaling, hint *domain.Priority) error {
	engine, err := a.engines.NewEngine(sig, a.ip)
	if err != nil {
		sig.Close()
		return err
	}

	a.pending = true
	a.pendingGen = gen

	go func() {
		sdp, prio, err := engine.Answer(ctx, hint)
		select {
		case a.answerCh <- answerResult{gen: gen, engine: engine, sdp: sdp, prio: prio, err: err}:
		case <-ctx.Done():
			engine.Close()
		}
	}()
	return nil
}
