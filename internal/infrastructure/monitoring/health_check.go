package monitoring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"botlink/internal/core/domain"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

type HealthChecker struct {
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck is a named probe. A failing non-critical check degrades the
// overall status instead of failing it.
type HealthCheck struct {
	Name     string
	Check    func(ctx context.Context) error
	Timeout  time.Duration
	Critical bool
}

type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

func (h *HealthChecker) AddCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]HealthCheck(nil), h.checks...)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}

	for _, check := range checks {
		err := runCheck(ctx, check)
		if err == nil {
			status.Checks[check.Name] = StatusHealthy
			continue
		}

		status.Checks[check.Name] = err.Error()
		switch {
		case check.Critical:
			status.Status = StatusUnhealthy
		case status.Status == StatusHealthy:
			status.Status = StatusDegraded
		}
	}

	return status
}

func runCheck(ctx context.Context, check HealthCheck) error {
	if check.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, check.Timeout)
		defer cancel()
	}
	return check.Check(ctx)
}

// IsReady reports whether no critical check is failing.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status != StatusUnhealthy
}

// AddRedisCheck probes the config cache. The robot keeps serving without
// it, so the check is not critical.
func (h *HealthChecker) AddRedisCheck(client *redis.Client, timeout time.Duration) {
	h.AddCheck(HealthCheck{
		Name:    "redis",
		Timeout: timeout,
		Check: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
	})
}

// AddServerChecks reports on the orchestrator: the loop must be running,
// and a missing cloud client degrades the status.
func (h *HealthChecker) AddServerChecks(stats func() domain.ServerStats) {
	h.AddCheck(HealthCheck{
		Name:     "orchestrator",
		Critical: true,
		Check: func(ctx context.Context) error {
			if stats().StartedAt.IsZero() {
				return fmt.Errorf("connection loop not started")
			}
			return nil
		},
	})
	h.AddCheck(HealthCheck{
		Name: "cloud",
		Check: func(ctx context.Context) error {
			st := stats()
			if !st.HasCloudClient {
				if st.LastError != "" {
					return fmt.Errorf("cloud client unavailable: %s", st.LastError)
				}
				return fmt.Errorf("cloud client unavailable")
			}
			return nil
		},
	})
}
