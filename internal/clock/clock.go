// Package clock maps wall-clock time onto an expected media position.
package clock

import (
	"sync"
	"time"
)

// Clock holds the playback baseline: the media position that was current at
// a given wall-clock instant. The expected position advances in real time
// from that baseline.
type Clock struct {
	mu           sync.Mutex
	baselineWall time.Time
	baselinePos  float64
	duration     float64
	now          func() time.Time
}

// Option configures a Clock.
type Option func(*Clock)

// WithNow replaces the wall-clock source.
func WithNow(now func() time.Time) Option {
	return func(c *Clock) { c.now = now }
}

// WithDuration bounds the baseline position to [0, duration].
func WithDuration(duration float64) Option {
	return func(c *Clock) { c.duration = duration }
}

// New creates a clock anchored at position 0, now.
func New(opts ...Option) *Clock {
	c := &Clock{now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	c.baselineWall = c.now()
	return c
}

// Now returns the clock's wall time.
func (c *Clock) Now() time.Time {
	return c.now()
}

// Expected returns the position the media should be at for the given instant.
func (c *Clock) Expected(at time.Time) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baselinePos + at.Sub(c.baselineWall).Seconds()
}

// ExpectedNow is Expected at the current wall time.
func (c *Clock) ExpectedNow() float64 {
	return c.Expected(c.now())
}

// Reset re-anchors the baseline to pos at the current wall time.
func (c *Clock) Reset(pos float64) {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baselineWall = now
	c.baselinePos = c.clamp(pos)
}

// Nudge shifts the baseline position by delta seconds, leaving the wall
// anchor untouched.
func (c *Clock) Nudge(delta float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.baselinePos = c.clamp(c.baselinePos + delta)
}

// Baseline returns the current anchor pair.
func (c *Clock) Baseline() (time.Time, float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.baselineWall, c.baselinePos
}

// SetDuration updates the upper bound once metadata is known.
func (c *Clock) SetDuration(duration float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.duration = duration
	c.baselinePos = c.clamp(c.baselinePos)
}

// Duration returns the configured upper bound, 0 if unbounded.
func (c *Clock) Duration() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duration
}

func (c *Clock) clamp(pos float64) float64 {
	if pos < 0 {
		return 0
	}
	if c.duration > 0 && pos > c.duration {
		return c.duration
	}
	return pos
}
