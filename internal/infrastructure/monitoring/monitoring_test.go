package monitoring

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
)

var _ ports.MetricsRecorder = (*PrometheusCollector)(nil)

func TestPrometheusCollector(t *testing.T) {
	p := NewPrometheusCollector(prometheus.NewRegistry())

	p.RecordRaceWinner(domain.ConnectionHTTP2)
	p.RecordRaceWinner(domain.ConnectionHTTP2)
	p.RecordRaceError("cloud_transport")
	p.RecordCloudReconnect(true)
	p.RecordCloudReconnect(false)
	p.RecordPreemption()
	p.RecordLogUpload(3, nil)
	p.RecordLogUpload(2, errors.New("eof"))
	p.RecordSessionStarted(domain.ConnectionWebRTC)
	p.RecordSessionStarted(domain.ConnectionWebRTC)
	p.RecordSessionEnded(domain.ConnectionWebRTC, time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(p.raceWinners.WithLabelValues("http2")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.raceErrors.WithLabelValues("cloud_transport")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.cloudReconnects.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.preemptions))
	assert.Equal(t, 3.0, testutil.ToFloat64(p.logEntries.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.logEntries.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.sessionsActive.WithLabelValues("webrtc")))
}

func TestHealthChecker_Statuses(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck(HealthCheck{Name: "ok", Critical: true, Check: func(context.Context) error { return nil }})
	assert.Equal(t, StatusHealthy, h.CheckAll(context.Background()).Status)

	h.AddCheck(HealthCheck{Name: "cache", Check: func(context.Context) error { return errors.New("down") }})
	st := h.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, st.Status)
	assert.Equal(t, "down", st.Checks["cache"])
	assert.True(t, h.IsReady(context.Background()))

	h.AddCheck(HealthCheck{Name: "loop", Critical: true, Check: func(context.Context) error { return errors.New("stopped") }})
	assert.Equal(t, StatusUnhealthy, h.CheckAll(context.Background()).Status)
	assert.False(t, h.IsReady(context.Background()))
}

func TestHealthChecker_Timeout(t *testing.T) {
	h := NewHealthChecker()
	h.AddCheck(HealthCheck{
		Name:     "slow",
		Critical: true,
		Timeout:  10 * time.Millisecond,
		Check: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
	})

	st := h.CheckAll(context.Background())
	assert.Equal(t, StatusUnhealthy, st.Status)
	assert.Equal(t, context.DeadlineExceeded.Error(), st.Checks["slow"])
}

func TestHealthChecker_ServerChecks(t *testing.T) {
	stats := domain.ServerStats{}
	h := NewHealthChecker()
	h.AddServerChecks(func() domain.ServerStats { return stats })

	assert.Equal(t, StatusUnhealthy, h.CheckAll(context.Background()).Status)

	stats.StartedAt = time.Now()
	stats.LastError = "dial tcp: connection refused"
	st := h.CheckAll(context.Background())
	assert.Equal(t, StatusDegraded, st.Status)
	assert.Contains(t, st.Checks["cloud"], "connection refused")

	stats.HasCloudClient = true
	assert.Equal(t, StatusHealthy, h.CheckAll(context.Background()).Status)
}
