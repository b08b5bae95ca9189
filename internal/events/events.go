// Package events carries typed notifications from the playback core to a
// single UI-side consumer. Emission never blocks the emitting goroutine.
package events

import (
	"sync/atomic"
	"time"
)

// Type identifies the kind of event.
type Type string

const (
	SyncStatusChanged Type = "SyncStatusChanged"
	BoundaryDetected  Type = "BoundaryDetected"
	DetectionProgress Type = "DetectionProgress"
	DetectionFinished Type = "DetectionFinished"
	DetectionFailed   Type = "DetectionFailed"
	SeekCompleted     Type = "SeekCompleted"
	PlaybackStalled   Type = "PlaybackStalled"
	PlaybackFinished  Type = "PlaybackFinished"
	FocusChanged      Type = "FocusChanged"
)

// Event is one notification. Payload holds one of the typed payloads below.
type Event struct {
	Type      Type
	Timestamp time.Time
	Payload   any
}

// SyncStatus is the payload of SyncStatusChanged.
type SyncStatus struct {
	Tier        string
	OffsetMs    float64
	Corrections int
	HardResets  int
	Failures    int
}

// Boundary is the payload of BoundaryDetected.
type Boundary struct {
	RunID string
	Index int
	Time  float64
}

// Progress is the payload of DetectionProgress.
type Progress struct {
	RunID     string
	Processed int
	Total     int
	Elapsed   float64
	Duration  float64
}

// DetectionResult is the payload of DetectionFinished and DetectionFailed.
type DetectionResult struct {
	RunID      string
	Boundaries []float64
	Err        error
}

// Seek is the payload of SeekCompleted.
type Seek struct {
	Target   float64
	Actual   float64
	Verified bool
	Attempts int
	Resumed  bool
}

// Stall is the payload of PlaybackStalled.
type Stall struct {
	ConsecutiveErrors int
	LastErr           error
}

// Focus is the payload of FocusChanged. Index is -1 when focus is released.
type Focus struct {
	Index int
	Start float64
	End   float64
}

// Emitter publishes events. Implementations must not block.
type Emitter interface {
	Emit(t Type, payload any)
}

// Bus is a buffered channel emitter. A full buffer drops the new event.
type Bus struct {
	ch      chan Event
	dropped atomic.Uint64
	now     func() time.Time
}

// NewBus creates a bus with the given buffer size.
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 64
	}
	return &Bus{ch: make(chan Event, size), now: time.Now}
}

// Emit queues an event without blocking.
func (b *Bus) Emit(t Type, payload any) {
	ev := Event{Type: t, Timestamp: b.now(), Payload: payload}
	select {
	case b.ch <- ev:
	default:
		b.dropped.Add(1)
	}
}

// Events is the receive side, drained by one consumer.
func (b *Bus) Events() <-chan Event {
	return b.ch
}

// Dropped reports how many events were discarded because the buffer was full.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Discard is an Emitter that drops everything.
type Discard struct{}

func (Discard) Emit(Type, any) {}
