// Package syncctl keeps displayed video aligned with the playback clock.
//
// A Monitor samples the decoder position on a fixed cadence, measures the
// offset against the clock's expected position and applies a tiered
// correction:
//
//	Normal  |offset| <= low      decay the failure counter
//	Micro   |offset| <= medium   nudge the baseline by 5% of the offset
//	Soft    |offset| <= hard     nudge by 10%, skip frames when lagging
//	Hard    beyond, or too many consecutive Soft samples: re-anchor
package syncctl

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/clock"
	"github.com/kikiluvv/slidesync/internal/events"
)

// Config tunes the monitor.
type Config struct {
	Thresholds    Thresholds
	MaxFailures   int
	CatchUpLag    time.Duration
	MaxSkipFrames int
	SoftGain      float64
	MicroGain     float64
	Interval      time.Duration
	HistorySize   int
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Thresholds:    DefaultThresholds(),
		MaxFailures:   5,
		CatchUpLag:    300 * time.Millisecond,
		MaxSkipFrames: 5,
		SoftGain:      0.10,
		MicroGain:     0.05,
		Interval:      100 * time.Millisecond,
		HistorySize:   50,
	}
}

// PositionSource reports the decoder's current presentation time.
type PositionSource interface {
	Position() (float64, error)
}

// FrameSkipper discards up to n decoded frames and reports how many it
// actually dropped.
type FrameSkipper interface {
	SkipFrames(n int) int
}

// Status is the diagnostic view of the controller.
type Status struct {
	// Measured is the tier of the raw offset, Applied the correction taken.
	Measured      Tier
	Applied       Tier
	Offset        float64
	Corrections   int
	HardResets    int
	SkippedFrames int
	Failures      int
	Samples       int
}

// OffsetMs returns the offset in milliseconds.
func (s Status) OffsetMs() float64 {
	return s.Offset * 1000
}

// Monitor measures drift and drives the correction actuator. The clock has
// its own lock; mu guards the failure counter, counters and history.
type Monitor struct {
	logger  zerolog.Logger
	cfg     Config
	clock   *clock.Clock
	source  PositionSource
	skipper FrameSkipper
	emitter events.Emitter

	mu            sync.Mutex
	fps           float64
	failures      int
	corrections   int
	hardResets    int
	skippedFrames int
	samples       int
	history       *History
	last          Status
}

// NewMonitor wires a monitor. skipper may be nil, in which case Soft
// corrections never skip frames.
func NewMonitor(logger zerolog.Logger, cfg Config, clk *clock.Clock, source PositionSource, skipper FrameSkipper, emitter events.Emitter) *Monitor {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	return &Monitor{
		logger:  logger.With().Str("component", "sync-monitor").Logger(),
		cfg:     cfg,
		clock:   clk,
		source:  source,
		skipper: skipper,
		emitter: emitter,
		fps:     25,
		history: NewHistory(cfg.HistorySize),
	}
}

// SetFPS sets the source frame rate used to size frame skips.
func (m *Monitor) SetFPS(fps float64) {
	if fps <= 0 {
		return
	}
	m.mu.Lock()
	m.fps = fps
	m.mu.Unlock()
}

// SetFailures overrides the consecutive failure counter.
func (m *Monitor) SetFailures(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

// Run samples every Interval until ctx is done. active is checked at each
// tick; sampling is skipped while it returns false.
func (m *Monitor) Run(ctx context.Context, active func() bool) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	m.logger.Debug().Dur("interval", m.cfg.Interval).Msg("sync monitor started")
	for {
		select {
		case <-ctx.Done():
			m.logger.Debug().Msg("sync monitor stopped")
			return
		case <-ticker.C:
			if active != nil && !active() {
				continue
			}
			m.Sample()
		}
	}
}

// Sample takes one measurement. It is a no-op, returning false, when the
// position is unavailable.
func (m *Monitor) Sample() (Status, bool) {
	actual, err := m.source.Position()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			m.logger.Debug().Err(err).Msg("position unavailable, skipping sync check")
		}
		return Status{}, false
	}
	return m.Observe(actual), true
}

// Observe applies one measurement of the actual decoder position.
func (m *Monitor) Observe(actual float64) Status {
	now := m.clock.Now()
	expected := m.clock.Expected(now)
	offset := actual - expected
	measured := Classify(offset, m.cfg.Thresholds)

	m.mu.Lock()
	m.samples++
	m.history.Add(Sample{WallTime: now, Offset: offset, Expected: expected, Actual: actual})

	applied := m.escalate(measured)
	skip := 0
	switch applied {
	case Hard:
		m.clock.Reset(actual)
		m.failures = 0
		m.hardResets++
		m.corrections++
	case Soft:
		if offset < -m.cfg.CatchUpLag.Seconds() {
			skip = int(math.Min(float64(m.cfg.MaxSkipFrames), math.Abs(offset)*m.fps))
		}
		m.clock.Nudge(offset * m.cfg.SoftGain)
		m.corrections++
	case Micro:
		m.clock.Nudge(offset * m.cfg.MicroGain)
		m.corrections++
	}
	m.mu.Unlock()

	// The skipper takes the session lock; never call it with mu held.
	if skip > 0 && m.skipper != nil {
		dropped := m.skipper.SkipFrames(skip)
		m.mu.Lock()
		m.skippedFrames += dropped
		m.mu.Unlock()
		m.logger.Debug().Int("requested", skip).Int("skipped", dropped).Msg("skipped frames to catch up")
	}

	m.mu.Lock()
	status := Status{
		Measured:      measured,
		Applied:       applied,
		Offset:        offset,
		Corrections:   m.corrections,
		HardResets:    m.hardResets,
		SkippedFrames: m.skippedFrames,
		Failures:      m.failures,
		Samples:       m.samples,
	}
	m.last = status
	m.mu.Unlock()

	m.log(status, actual)
	m.emitter.Emit(events.SyncStatusChanged, events.SyncStatus{
		Tier:        measured.String(),
		OffsetMs:    status.OffsetMs(),
		Corrections: status.Corrections,
		HardResets:  status.HardResets,
		Failures:    status.Failures,
	})
	return status
}

// escalate updates the failure counter for a measured tier and returns the
// tier to act on. Caller holds mu.
func (m *Monitor) escalate(measured Tier) Tier {
	switch measured {
	case Hard:
		return Hard
	case Soft:
		m.failures++
		if m.failures > m.cfg.MaxFailures {
			return Hard
		}
		return Soft
	default:
		if m.failures > 0 {
			m.failures--
		}
		return measured
	}
}

func (m *Monitor) log(s Status, actual float64) {
	switch s.Applied {
	case Hard:
		ev := m.logger.Info().
			Float64("offset_ms", s.OffsetMs()).
			Float64("reset_to", actual)
		if s.Measured != Hard {
			ev.Msg("repeated sync failures, hard reset")
		} else {
			ev.Msg("hard sync correction")
		}
	case Soft, Micro:
		m.logger.Debug().
			Str("tier", s.Applied.String()).
			Float64("offset_ms", s.OffsetMs()).
			Int("failures", s.Failures).
			Msg("sync correction")
	}
}

// Reanchor resets the clock to pos and clears failure state and history.
// Used after seeks, play/resume and manual resync.
func (m *Monitor) Reanchor(pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.Reset(pos)
	m.failures = 0
	m.history.Reset()
	m.logger.Debug().Float64("position", pos).Msg("sync baseline reset")
}

// ForceHard applies a hard correction at pos, counted like any other.
func (m *Monitor) ForceHard(pos float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock.Reset(pos)
	m.failures = 0
	m.hardResets++
	m.corrections++
	m.logger.Info().Float64("position", pos).Msg("manual sync reset")
}

// Status returns the most recent status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.last
	s.Corrections = m.corrections
	s.HardResets = m.hardResets
	s.SkippedFrames = m.skippedFrames
	s.Failures = m.failures
	s.Samples = m.samples
	return s
}

// History returns the diagnostic samples, oldest first.
func (m *Monitor) History() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.history.Snapshot()
}
