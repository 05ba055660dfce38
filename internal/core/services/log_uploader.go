package services

import (
	"context"
	"time"

	"botlink/internal/core/domain"
	"botlink/internal/core/ports"
	"botlink/pkg/logger"
	"botlink/pkg/tracing"
)

// LogSource is the buffer of captured log entries awaiting upload.
type LogSource interface {
	Drain() []logger.Entry
	Requeue(entries []logger.Entry)
}

type logUploader struct {
	src     LogSource
	host    string
	metrics ports.MetricsRecorder
}

func newLogUploader(src LogSource, host string, metrics ports.MetricsRecorder) *logUploader {
	return &logUploader{src: src, host: host, metrics: metrics}
}

// upload pushes everything buffered. On failure the entries go back to the
// buffer for the next attempt.
func (u *logUploader) upload(ctx context.Context, client ports.CloudClient, timeout time.Duration) error {
	entries := u.src.Drain()
	if len(entries) == 0 {
		return nil
	}

	ctx, span := tracing.TraceCloud(ctx, "PushLogs")
	defer span.End()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := client.PushLogs(ctx, toLogEntries(u.host, entries))
	u.metrics.RecordLogUpload(len(entries), err)
	if err != nil {
		tracing.RecordError(ctx, err)
		u.src.Requeue(entries)
		return err
	}
	return nil
}

func toLogEntries(host string, entries []logger.Entry) []domain.LogEntry {
	out := make([]domain.LogEntry, len(entries))
	for i, e := range entries {
		out[i] = domain.LogEntry{
			Host:       host,
			Level:      e.Level,
			Time:       e.Time,
			LoggerName: e.LoggerName,
			Message:    e.Message,
			Caller:     e.Caller,
			Fields:     e.Fields,
		}
	}
	return out
}
