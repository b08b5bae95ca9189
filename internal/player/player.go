// Package player ties the sync controller, the seek coordinator, the frame
// pacer and slide detection together behind one playback API.
//
// State is split by concern, each part with its own lock:
//
//   - clock state: the playback clock and the sync monitor
//   - session state: the decode guard
//   - seek state: the seek coordinator
//   - detection state: the detecting flag
//   - everything the UI sees (play state, deck, focus): mu
//
// The player never holds mu while calling into the monitor, the guard or
// the coordinator.
package player

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/clock"
	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/navigation"
	"github.com/kikiluvv/slidesync/internal/pacer"
	"github.com/kikiluvv/slidesync/internal/seek"
	"github.com/kikiluvv/slidesync/internal/slides"
	"github.com/kikiluvv/slidesync/internal/syncctl"
)

var (
	// ErrNoVideo is returned by controls used before Open.
	ErrNoVideo = errors.New("no video loaded")
	// ErrDetectionRunning is returned when a detection pass is requested
	// while one is already running.
	ErrDetectionRunning = errors.New("slide detection already running")
)

const (
	fallbackDuration = 600.0
	fallbackFPS      = 25.0
	maxPlausibleFPS  = 120.0
)

// State is the play state.
type State int

const (
	Stopped State = iota
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Sink displays frames. Show is called from the display loop only.
type Sink interface {
	Show(decode.Frame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(decode.Frame)

func (f SinkFunc) Show(fr decode.Frame) { f(fr) }

// Analyzer runs one slide detection pass over a video file.
type Analyzer interface {
	Detect(ctx context.Context, path string, progress func(slides.Progress)) (slides.Result, error)
}

// Config tunes the player loops.
type Config struct {
	Sync          syncctl.Config
	Seek          seek.Config
	PacerCapacity int
	PullTimeout   time.Duration
	MinFrameSleep time.Duration
	MaxFrameSleep time.Duration
	IdleSleep     time.Duration
	// StallAfter consecutive pull failures emit PlaybackStalled.
	StallAfter int
}

// DefaultConfig returns the stock loop settings.
func DefaultConfig() Config {
	return Config{
		Sync:          syncctl.DefaultConfig(),
		Seek:          seek.DefaultConfig(),
		PacerCapacity: 3,
		PullTimeout:   200 * time.Millisecond,
		MinFrameSleep: 5 * time.Millisecond,
		MaxFrameSleep: 200 * time.Millisecond,
		IdleSleep:     10 * time.Millisecond,
		StallAfter:    3,
	}
}

// Player plays one video at a time.
type Player struct {
	logger   zerolog.Logger
	cfg      Config
	opener   decode.Opener
	analyzer Analyzer
	sink     Sink
	emitter  events.Emitter

	clock   *clock.Clock
	monitor *syncctl.Monitor

	guard  *decode.Guard
	frames *pacer.Pacer[decode.Frame]
	seeker *seek.Coordinator

	detecting atomic.Bool

	mu     sync.Mutex
	path   string
	meta   decode.Metadata
	state  State
	paused float64
	deck   *navigation.Deck
	focus  navigation.Focus
	cancel context.CancelFunc

	wake chan struct{}
	wg   sync.WaitGroup
}

// New wires a player. analyzer may be nil, which disables slide detection.
func New(logger zerolog.Logger, cfg Config, opener decode.Opener, analyzer Analyzer, sink Sink, emitter events.Emitter) *Player {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if sink == nil {
		sink = SinkFunc(func(decode.Frame) {})
	}
	if cfg.StallAfter <= 0 {
		cfg.StallAfter = 3
	}
	if cfg.PullTimeout <= 0 {
		cfg.PullTimeout = 200 * time.Millisecond
	}
	if cfg.IdleSleep <= 0 {
		cfg.IdleSleep = 10 * time.Millisecond
	}

	p := &Player{
		logger:   logger.With().Str("component", "player").Logger(),
		cfg:      cfg,
		opener:   opener,
		analyzer: analyzer,
		sink:     sink,
		emitter:  emitter,
		clock:    clock.New(),
		guard:    &decode.Guard{},
		frames:   pacer.New[decode.Frame](cfg.PacerCapacity),
		wake:     make(chan struct{}, 1),
	}
	p.monitor = syncctl.NewMonitor(logger, cfg.Sync, p.clock, p.guard, p.guard, emitter)
	hooks := seekHooks{p}
	p.seeker = seek.NewCoordinator(logger, cfg.Seek, p.guard, p.reopen, p.frames, hooks, hooks, emitter)
	return p
}

// Open loads path and leaves it paused at 0, replacing any loaded video.
// The optimized decoder is tried first, then the default one.
func (p *Player) Open(ctx context.Context, path string) error {
	s, err := p.openSession(ctx, path, 0)
	if err != nil {
		return err
	}

	p.stopLoops()
	if old := p.guard.Swap(s); old != nil {
		if err := old.Close(); err != nil {
			p.logger.Debug().Err(err).Str("session", old.ID()).Msg("closing previous session")
		}
	}
	p.frames.Drain()

	meta := normalizeMetadata(s.Metadata())
	p.clock.SetDuration(meta.Duration)
	p.monitor.SetFPS(meta.FPS)
	p.monitor.Reanchor(0)

	b, _ := slides.NewBoundaryList(nil, 0)

	p.mu.Lock()
	p.path = path
	p.meta = meta
	p.state = Paused
	p.paused = 0
	p.deck = navigation.NewDeck(b, meta.Duration)
	released := p.focus.Release()
	p.mu.Unlock()

	if released {
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: -1})
	}

	p.startLoops()

	p.logger.Info().
		Str("path", path).
		Str("session", s.ID()).
		Float64("duration", meta.Duration).
		Float64("fps", meta.FPS).
		Int("width", meta.Width).
		Int("height", meta.Height).
		Msg("video loaded")
	return nil
}

func (p *Player) openSession(ctx context.Context, path string, at float64) (decode.Session, error) {
	s, optErr := p.opener.Open(ctx, path, decode.Options{Optimized: true, StartAt: at})
	if optErr == nil {
		return s, nil
	}
	p.logger.Warn().Err(optErr).Str("path", path).Msg("optimized decoder failed, retrying with defaults")

	s, err := p.opener.Open(ctx, path, decode.Options{StartAt: at})
	if err != nil {
		return nil, fmt.Errorf("open decoder for %s: %w", path, errors.Join(optErr, err))
	}
	return s, nil
}

// reopen is the seek coordinator's session factory.
func (p *Player) reopen(ctx context.Context) (decode.Session, error) {
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()
	if path == "" {
		return nil, ErrNoVideo
	}
	return p.openSession(ctx, path, 0)
}

func normalizeMetadata(m decode.Metadata) decode.Metadata {
	if m.Duration <= 0 || math.IsNaN(m.Duration) {
		m.Duration = fallbackDuration
	}
	if m.FPS <= 0 || m.FPS > maxPlausibleFPS || math.IsNaN(m.FPS) {
		m.FPS = fallbackFPS
	}
	return m
}

// Play starts or resumes playback from the captured position.
func (p *Player) Play(ctx context.Context) error {
	p.mu.Lock()
	path, state, pos := p.path, p.state, p.paused
	p.mu.Unlock()

	if path == "" {
		return ErrNoVideo
	}
	if state == Playing {
		return nil
	}

	if !p.guard.Active() {
		s, err := p.openSession(ctx, path, pos)
		if err != nil {
			return err
		}
		if old := p.guard.Swap(s); old != nil {
			_ = old.Close()
		}
	}

	p.monitor.Reanchor(pos)
	p.mu.Lock()
	p.state = Playing
	p.mu.Unlock()
	p.signal()

	p.logger.Info().Float64("position", pos).Msg("playing")
	return nil
}

// Pause stops playback and captures the current position.
func (p *Player) Pause() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.path == "" {
		return ErrNoVideo
	}
	if p.state != Playing {
		return nil
	}
	p.paused = p.positionLocked()
	p.state = Paused
	p.logger.Info().Float64("position", p.paused).Msg("paused")
	return nil
}

// Stop halts playback, closes the decoder and rewinds to 0.
func (p *Player) Stop() error {
	p.mu.Lock()
	if p.path == "" {
		p.mu.Unlock()
		return ErrNoVideo
	}
	p.state = Stopped
	p.paused = 0
	released := p.focus.Release()
	p.mu.Unlock()

	p.rewind(released)
	p.logger.Info().Msg("stopped")
	return nil
}

func (p *Player) rewind(released bool) {
	if err := p.guard.Close(); err != nil {
		p.logger.Debug().Err(err).Msg("closing session")
	}
	p.frames.Drain()
	p.monitor.Reanchor(0)
	if released {
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: -1})
	}
}

// Seek asks the seek worker to move to target. The target is clamped into
// the focused slide, if any. Playback resumes afterwards only if it was
// playing when the seek was requested.
func (p *Player) Seek(target float64) error {
	p.mu.Lock()
	if p.path == "" {
		p.mu.Unlock()
		return ErrNoVideo
	}
	target = p.focus.Clamp(target, p.meta.Duration, 1/p.meta.FPS)
	resume := p.state == Playing
	p.mu.Unlock()

	return p.submitSeek(target, resume)
}

func (p *Player) submitSeek(target float64, resume bool) error {
	if err := p.seeker.Submit(seek.Request{Target: target, Resume: resume}); err != nil {
		return err
	}
	p.mu.Lock()
	if p.state == Stopped {
		p.state = Paused
	}
	p.mu.Unlock()
	return nil
}

// ResyncNow applies a hard sync correction at the decoder's position.
func (p *Player) ResyncNow() error {
	p.mu.Lock()
	if p.path == "" {
		p.mu.Unlock()
		return ErrNoVideo
	}
	pos := p.positionLocked()
	p.mu.Unlock()

	if actual, err := p.guard.Position(); err == nil {
		pos = actual
	}
	p.monitor.ForceHard(pos)
	return nil
}

// Position returns the corrected current position in seconds.
func (p *Player) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}

func (p *Player) positionLocked() float64 {
	if p.state != Playing {
		return p.paused
	}
	pos := p.clock.ExpectedNow()
	if pos < 0 {
		return 0
	}
	if p.meta.Duration > 0 && pos > p.meta.Duration {
		return p.meta.Duration
	}
	return pos
}

// State returns the play state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Metadata returns the loaded video's metadata, with fallbacks applied.
func (p *Player) Metadata() decode.Metadata {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meta
}

// Close stops every loop and releases the decoder.
func (p *Player) Close() error {
	p.stopLoops()
	p.frames.Drain()

	p.mu.Lock()
	p.state = Stopped
	p.mu.Unlock()

	return p.guard.Close()
}

// seekHooks lets the seek coordinator drive playback without exporting
// Halt/Resume/Reanchor on Player.
type seekHooks struct{ p *Player }

func (h seekHooks) Halt() {
	p := h.p
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Playing {
		p.paused = p.positionLocked()
		p.state = Paused
	}
}

func (h seekHooks) Resume() {
	p := h.p
	p.mu.Lock()
	p.state = Playing
	p.mu.Unlock()
	p.signal()
}

func (h seekHooks) Reanchor(pos float64) {
	p := h.p
	p.monitor.Reanchor(pos)
	p.mu.Lock()
	p.paused = pos
	p.mu.Unlock()
}
