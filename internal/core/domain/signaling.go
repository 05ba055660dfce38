package domain

// Priority orders competing WebRTC negotiations.
type Priority uint64

// Preempts reports whether a negotiation at p may replace a running session
// negotiated at hint. A nil hint means nothing is running.
func (p Priority) Preempts(hint *Priority) bool {
	return hint == nil || p > *hint
}

type SDPType string

const (
	SDPTypeOffer  SDPType = "offer"
	SDPTypeAnswer SDPType = "answer"
)

type SDP struct {
	Type SDPType `json:"type"`
	SDP  string  `json:"sdp"`
}

type Offer struct {
	UUID     string   `json:"uuid"`
	SDP      SDP      `json:"sdp"`
	Priority Priority `json:"priority"`
}

type Answer struct {
	UUID  string `json:"uuid"`
	SDP   *SDP   `json:"sdp,omitempty"`
	Error string `json:"error,omitempty"`
}
