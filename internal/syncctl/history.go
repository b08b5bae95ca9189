package syncctl

import "time"

const (
	minHistory = 15
	maxHistory = 50
)

// Sample is one sync measurement, kept for diagnostics only.
type Sample struct {
	WallTime time.Time
	Offset   float64
	Expected float64
	Actual   float64
}

// History is a fixed-capacity ring of samples. The oldest entry is evicted
// on overflow.
type History struct {
	buf   []Sample
	start int
	n     int
}

// NewHistory creates a ring. Capacity is clamped to [15, 50].
func NewHistory(capacity int) *History {
	if capacity < minHistory {
		capacity = minHistory
	}
	if capacity > maxHistory {
		capacity = maxHistory
	}
	return &History{buf: make([]Sample, capacity)}
}

// Add appends a sample, evicting the oldest when full.
func (h *History) Add(s Sample) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// Len returns the number of stored samples.
func (h *History) Len() int { return h.n }

// Cap returns the ring capacity.
func (h *History) Cap() int { return len(h.buf) }

// Snapshot returns the samples oldest first.
func (h *History) Snapshot() []Sample {
	out := make([]Sample, h.n)
	for i := 0; i < h.n; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}

// Reset drops every sample.
func (h *History) Reset() {
	h.start = 0
	h.n = 0
}
