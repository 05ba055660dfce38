package logger

import (
	"sync"
	"time"

	"go.uber.org/zap/zapcore"
)

// Entry is a captured log record waiting for upload.
type Entry struct {
	Time       time.Time
	Level      string
	LoggerName string
	Message    string
	Caller     string
	Fields     map[string]interface{}
}

type ring struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	dropped  uint64
}

// LogBuffer is a zapcore.Core that keeps the most recent entries in a
// fixed-size ring. When the ring is full the oldest entry is overwritten.
type LogBuffer struct {
	ring   *ring
	level  zapcore.LevelEnabler
	fields []zapcore.Field
}

var _ zapcore.Core = (*LogBuffer)(nil)

// NewLogBuffer creates a buffer holding at most capacity entries at or above level.
func NewLogBuffer(capacity int, level zapcore.LevelEnabler) *LogBuffer {
	if capacity <= 0 {
		capacity = 1
	}
	return &LogBuffer{
		ring:  &ring{entries: make([]Entry, 0, capacity), capacity: capacity},
		level: level,
	}
}

func (b *LogBuffer) Enabled(l zapcore.Level) bool {
	return b.level.Enabled(l)
}

func (b *LogBuffer) With(fields []zapcore.Field) zapcore.Core {
	merged := make([]zapcore.Field, 0, len(b.fields)+len(fields))
	merged = append(merged, b.fields...)
	merged = append(merged, fields...)
	return &LogBuffer{ring: b.ring, level: b.level, fields: merged}
}

func (b *LogBuffer) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if b.Enabled(ent.Level) {
		return ce.AddCore(ent, b)
	}
	return ce
}

func (b *LogBuffer) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	enc := zapcore.NewMapObjectEncoder()
	for _, f := range b.fields {
		f.AddTo(enc)
	}
	for _, f := range fields {
		f.AddTo(enc)
	}

	entry := Entry{
		Time:       ent.Time,
		Level:      ent.Level.String(),
		LoggerName: ent.LoggerName,
		Message:    ent.Message,
		Fields:     enc.Fields,
	}
	if ent.Caller.Defined {
		entry.Caller = ent.Caller.TrimmedPath()
	}

	b.ring.push(entry)
	return nil
}

func (b *LogBuffer) Sync() error { return nil }

// Len returns the number of buffered entries.
func (b *LogBuffer) Len() int {
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()
	return len(b.ring.entries)
}

// Dropped returns how many entries were overwritten before upload.
func (b *LogBuffer) Dropped() uint64 {
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()
	return b.ring.dropped
}

// Drain removes and returns all buffered entries, oldest first.
func (b *LogBuffer) Drain() []Entry {
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()
	out := b.ring.entries
	b.ring.entries = make([]Entry, 0, b.ring.capacity)
	return out
}

// Requeue puts entries that could not be uploaded back in front of anything
// logged since they were drained. Capacity still applies; the oldest go first.
func (b *LogBuffer) Requeue(entries []Entry) {
	if len(entries) == 0 {
		return
	}
	b.ring.mu.Lock()
	defer b.ring.mu.Unlock()
	merged := make([]Entry, 0, len(entries)+len(b.ring.entries))
	merged = append(merged, entries...)
	merged = append(merged, b.ring.entries...)
	if over := len(merged) - b.ring.capacity; over > 0 {
		b.ring.dropped += uint64(over)
		merged = merged[over:]
	}
	b.ring.entries = merged
}

func (r *ring) push(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.entries) == r.capacity {
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:len(r.entries)-1]
		r.dropped++
	}
	r.entries = append(r.entries, e)
}
