package ports

import (
	"time"

	"botlink/internal/core/domain"
)

// MetricsRecorder receives orchestrator events.
type MetricsRecorder interface {
	RecordRaceWinner(kind domain.ConnectionKind)
	RecordRaceError(kind string)
	RecordCloudReconnect(success bool)
	RecordSessionStarted(kind domain.ConnectionKind)
	RecordSessionEnded(kind domain.ConnectionKind, d time.Duration)
	RecordPreemption()
	RecordLogUpload(entries int, err error)
}
