package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"botlink/internal/core/domain"
)

type PrometheusCollector struct {
	// Counters
	raceWinners     *prometheus.CounterVec
	raceErrors      *prometheus.CounterVec
	cloudReconnects *prometheus.CounterVec
	preemptions     prometheus.Counter
	logEntries      *prometheus.CounterVec

	// Gauges
	sessionsActive *prometheus.GaugeVec

	// Histograms
	sessionDuration *prometheus.HistogramVec
}

// NewPrometheusCollector registers the orchestrator metrics with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)

	return &PrometheusCollector{
		raceWinners: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botlink_race_winners_total",
			Help: "Connections won by each transport",
		}, []string{"kind"}),

		raceErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botlink_race_errors_total",
			Help: "Failed connection attempts by error kind",
		}, []string{"kind"}),

		cloudReconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botlink_cloud_reconnects_total",
			Help: "Cloud client construction attempts",
		}, []string{"result"}),

		preemptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "botlink_webrtc_preemptions_total",
			Help: "WebRTC sessions cancelled by a higher priority negotiation",
		}),

		logEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "botlink_log_upload_entries_total",
			Help: "Log entries pushed to the cloud",
		}, []string{"result"}),

		sessionsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "botlink_sessions_active",
			Help: "Connections currently being served",
		}, []string{"kind"}),

		sessionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "botlink_session_duration_seconds",
			Help:    "Time spent serving a connection",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"kind"}),
	}
}

func (p *PrometheusCollector) RecordRaceWinner(kind domain.ConnectionKind) {
	p.raceWinners.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordRaceError(kind string) {
	p.raceErrors.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordCloudReconnect(success bool) {
	p.cloudReconnects.WithLabelValues(result(success)).Inc()
}

func (p *PrometheusCollector) RecordSessionStarted(kind domain.ConnectionKind) {
	p.sessionsActive.WithLabelValues(string(kind)).Inc()
}

func (p *PrometheusCollector) RecordSessionEnded(kind domain.ConnectionKind, d time.Duration) {
	p.sessionsActive.WithLabelValues(string(kind)).Dec()
	p.sessionDuration.WithLabelValues(string(kind)).Observe(d.Seconds())
}

func (p *PrometheusCollector) RecordPreemption() {
	p.preemptions.Inc()
}

func (p *PrometheusCollector) RecordLogUpload(entries int, err error) {
	p.logEntries.WithLabelValues(result(err == nil)).Add(float64(entries))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
