package history

import (
	"context"
	"time"
)

// Recorder persists what the watchdog observed during a run.
type Recorder interface {
	RecordSample(ctx context.Context, sample SampleRecord) error
	RecordEvent(ctx context.Context, event Event) error
	RunID() string
	Close() error
}

// Repository defines the interface for history storage
type Repository interface {
	RecordSample(sample SampleRecord) error
	RecordEvent(ctx context.Context, event Event) error
	Close() error
}

// SampleRecord is one thread count observation.
type SampleRecord struct {
	Timestamp time.Time
	Value     float64
	Breached  bool
}

type EventKind string

const (
	EventBreach         EventKind = "breach"
	EventLockAcquired   EventKind = "lock_acquired"
	EventCaptureDone    EventKind = "capture_succeeded"
	EventCaptureFailed  EventKind = "capture_failed"
	EventUploadDone     EventKind = "upload_succeeded"
	EventUploadFailed   EventKind = "upload_failed"
	EventStreamTruncate EventKind = "stream_truncated"
)

// Event is a dump workflow milestone.
type Event struct {
	Timestamp time.Time
	Kind      EventKind
	Instance  string
	Artifact  string
	Detail    string
}
