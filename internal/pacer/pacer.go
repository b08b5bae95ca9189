// Package pacer decouples the decode rate from the display rate with a small
// latest-wins buffer: the producer never blocks, the consumer always gets the
// newest frame available.
package pacer

import (
	"context"
	"math"
	"sync"
	"time"
)

const (
	minCapacity = 2
	maxCapacity = 3

	minDisplayFPS = 10.0
	maxDisplayFPS = 30.0
)

// Metrics holds pacer counters.
type Metrics struct {
	Pushed  uint64
	Pulled  uint64
	Evicted uint64
	Len     int
}

// Pacer is a bounded FIFO that evicts its oldest entry when full.
type Pacer[T any] struct {
	mu      sync.Mutex
	items   []T
	cap     int
	notify  chan struct{}
	metrics Metrics
}

// New creates a pacer. Capacity is clamped to [2, 3].
func New[T any](capacity int) *Pacer[T] {
	if capacity < minCapacity {
		capacity = minCapacity
	}
	if capacity > maxCapacity {
		capacity = maxCapacity
	}
	return &Pacer[T]{
		items:  make([]T, 0, capacity),
		cap:    capacity,
		notify: make(chan struct{}, 1),
	}
}

// Cap returns the buffer capacity.
func (p *Pacer[T]) Cap() int { return p.cap }

// Len returns the number of buffered frames.
func (p *Pacer[T]) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Push inserts a frame without blocking. When the buffer is full exactly one
// entry, the oldest, is evicted first; evicted reports whether that happened.
func (p *Pacer[T]) Push(item T) (evicted bool) {
	p.mu.Lock()
	if len(p.items) == p.cap {
		var zero T
		p.items[0] = zero
		p.items = append(p.items[:0], p.items[1:]...)
		p.metrics.Evicted++
		evicted = true
	}
	p.items = append(p.items, item)
	p.metrics.Pushed++
	p.mu.Unlock()

	select {
	case p.notify <- struct{}{}:
	default:
	}
	return evicted
}

// TryPull returns the newest frame, dropping any older ones, or false when
// the buffer is empty.
func (p *Pacer[T]) TryPull() (T, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var zero T
	n := len(p.items)
	if n == 0 {
		return zero, false
	}
	item := p.items[n-1]
	for i := range p.items {
		p.items[i] = zero
	}
	p.items = p.items[:0]
	p.metrics.Pulled++
	return item, true
}

// Pull waits up to timeout for a frame and returns the newest one. It
// returns false on timeout or when ctx is done.
func (p *Pacer[T]) Pull(ctx context.Context, timeout time.Duration) (T, bool) {
	if item, ok := p.TryPull(); ok {
		return item, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			var zero T
			return zero, false
		case <-timer.C:
			return p.TryPull()
		case <-p.notify:
			if item, ok := p.TryPull(); ok {
				return item, true
			}
		}
	}
}

// Drain discards every buffered frame and returns how many were dropped.
func (p *Pacer[T]) Drain() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.items)
	var zero T
	for i := range p.items {
		p.items[i] = zero
	}
	p.items = p.items[:0]
	return n
}

// Metrics returns a snapshot of the counters.
func (p *Pacer[T]) Metrics() Metrics {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := p.metrics
	m.Len = len(p.items)
	return m
}

// DisplayInterval derives the consumer cadence from the source frame rate:
// twice the source rate, clamped to [10, 30] frames per second.
func DisplayInterval(sourceFPS float64) time.Duration {
	fps := math.Min(maxDisplayFPS, math.Max(minDisplayFPS, sourceFPS*2))
	return time.Duration(float64(time.Second) / fps)
}
