package robot

import (
	"sync"

	"botlink/internal/core/ports"
)

// Shared serializes access to one robot across every transport. Copies of
// the pointer share the same lock.
type Shared struct {
	mu    sync.Mutex
	robot ports.Robot
}

func NewShared(r ports.Robot) *Shared {
	return &Shared{robot: r}
}

// Do runs fn while holding the robot lock.
func (s *Shared) Do(fn func(r ports.Robot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s.robot)
}
