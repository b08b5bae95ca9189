// Package seek moves playback to a new position.
//
// Seeking on a live decode session is unreliable, so every seek tears the
// session down, opens a fresh one, issues the seek and then verifies that
// the decoder really landed near the target before the clock is re-anchored.
// At most one seek is in flight; overlapping requests are rejected.
package seek

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/events"
)

// ErrSeekInFlight is returned when a seek is requested while another runs.
var ErrSeekInFlight = errors.New("seek already in progress")

// State of the coordinator.
type State int

const (
	Idle State = iota
	Seeking
	Resumed
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Seeking:
		return "seeking"
	case Resumed:
		return "resumed"
	case Paused:
		return "paused"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config tunes seek verification.
type Config struct {
	MaxAttempts       int
	RequiredSuccesses int
	Tolerance         time.Duration
	AttemptDelay      time.Duration
	// SettleDelay is waited after closing the old session and after opening
	// the new one.
	SettleDelay time.Duration
}

// DefaultConfig returns 30 attempts, 3 consecutive hits within 2 s.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       30,
		RequiredSuccesses: 3,
		Tolerance:         2 * time.Second,
		AttemptDelay:      50 * time.Millisecond,
		SettleDelay:       50 * time.Millisecond,
	}
}

// Request asks for a seek. Resume restarts playback afterwards; otherwise
// playback stays paused at the new position.
type Request struct {
	Target float64
	Resume bool
}

// Result describes a completed seek.
type Result struct {
	Request
	Actual       float64
	Verification Verification
	State        State
}

// OpenFunc opens a fresh decode session for the current media.
type OpenFunc func(ctx context.Context) (decode.Session, error)

// Playback is the part of the player a seek has to drive.
type Playback interface {
	// Halt stops frame pulls before teardown.
	Halt()
	// Resume restarts the playback loop after a seek.
	Resume()
}

// Anchor re-anchors the playback clock.
type Anchor interface {
	Reanchor(pos float64)
}

// FrameSink receives frames for display and can be emptied.
type FrameSink interface {
	Push(decode.Frame) bool
	Drain() int
}

// Coordinator runs the seek state machine.
type Coordinator struct {
	logger   zerolog.Logger
	cfg      Config
	guard    *decode.Guard
	open     OpenFunc
	sink     FrameSink
	anchor   Anchor
	playback Playback
	emitter  events.Emitter
	sleep    func(time.Duration)

	mu      sync.Mutex
	state   State
	mailbox chan Request
}

// NewCoordinator wires a coordinator.
func NewCoordinator(logger zerolog.Logger, cfg Config, guard *decode.Guard, open OpenFunc, sink FrameSink, anchor Anchor, playback Playback, emitter events.Emitter) *Coordinator {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.RequiredSuccesses <= 0 {
		cfg.RequiredSuccesses = 1
	}
	return &Coordinator{
		logger:   logger.With().Str("component", "seek").Logger(),
		cfg:      cfg,
		guard:    guard,
		open:     open,
		sink:     sink,
		anchor:   anchor,
		playback: playback,
		emitter:  emitter,
		sleep:    time.Sleep,
		mailbox:  make(chan Request, 1),
	}
}

// State returns the current state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// InFlight reports whether a seek is pending or running.
func (c *Coordinator) InFlight() bool {
	return c.State() == Seeking
}

func (c *Coordinator) begin() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Seeking {
		return ErrSeekInFlight
	}
	c.state = Seeking
	return nil
}

func (c *Coordinator) finish(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Submit posts a request to the single-slot mailbox consumed by Run. It
// returns ErrSeekInFlight instead of queueing behind a running seek.
func (c *Coordinator) Submit(req Request) error {
	if err := c.begin(); err != nil {
		c.logger.Debug().Float64("target", req.Target).Msg("seek rejected, another seek in flight")
		return err
	}
	select {
	case c.mailbox <- req:
		return nil
	default:
		c.finish(Idle)
		return ErrSeekInFlight
	}
}

// Run consumes the mailbox one seek at a time until ctx is done. A request
// still waiting when it stops is dropped and the coordinator goes Idle, so
// the next worker does not replay it.
func (c *Coordinator) Run(ctx context.Context) {
	defer c.abandon()
	for {
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case req := <-c.mailbox:
			if _, err := c.execute(ctx, req); err != nil {
				c.logger.Warn().Err(err).Float64("target", req.Target).Msg("seek failed")
			}
		}
	}
}

func (c *Coordinator) abandon() {
	select {
	case req := <-c.mailbox:
		c.logger.Debug().Float64("target", req.Target).Msg("pending seek dropped")
	default:
	}
	c.mu.Lock()
	if c.state == Seeking {
		c.state = Idle
	}
	c.mu.Unlock()
}

// Seek runs a seek synchronously on the caller's goroutine.
func (c *Coordinator) Seek(ctx context.Context, req Request) (Result, error) {
	if err := c.begin(); err != nil {
		return Result{Request: req, State: Seeking}, err
	}
	return c.execute(ctx, req)
}

func (c *Coordinator) execute(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	c.logger.Info().
		Float64("target", req.Target).
		Bool("resume", req.Resume).
		Msg("seeking")

	c.playback.Halt()
	dropped := c.sink.Drain()

	res := Result{Request: req}
	ver, err := c.recreate(ctx, req.Target)
	res.Verification = ver
	if err != nil {
		c.anchor.Reanchor(req.Target)
		res.Actual = req.Target
		res.State = Paused
		c.finish(Paused)
		return res, err
	}

	res.Actual = req.Target
	if ver.HaveActual {
		res.Actual = ver.Actual
	} else if pos, err := c.guard.Position(); err == nil {
		res.Actual = pos
	}

	// Re-anchor only once verification has resolved, never before.
	c.anchor.Reanchor(res.Actual)

	if req.Resume {
		res.State = Resumed
		c.finish(Resumed)
		c.playback.Resume()
	} else {
		res.State = Paused
		c.finish(Paused)
	}

	ev := c.logger.Info()
	if !ver.Verified {
		ev = c.logger.Warn()
	}
	ev.Float64("target", req.Target).
		Float64("actual", res.Actual).
		Bool("verified", ver.Verified).
		Int("attempts", ver.Attempts).
		Int("drained", dropped).
		Str("state", res.State.String()).
		Dur("took", time.Since(start)).
		Msg("seek complete")

	c.emitter.Emit(events.SeekCompleted, events.Seek{
		Target:   req.Target,
		Actual:   res.Actual,
		Verified: ver.Verified,
		Attempts: ver.Attempts,
		Resumed:  req.Resume,
	})
	return res, nil
}

// recreate closes the current session, opens a fresh one, seeks and
// verifies, all under the session lock.
func (c *Coordinator) recreate(ctx context.Context, target float64) (Verification, error) {
	c.guard.Lock()
	defer c.guard.Unlock()

	if old := c.guard.SwapLocked(nil); old != nil {
		if err := old.Close(); err != nil {
			c.logger.Debug().Err(err).Str("session", old.ID()).Msg("closing old session")
		}
		c.sleep(c.cfg.SettleDelay)
	}

	s, err := c.open(ctx)
	if err != nil {
		return Verification{}, fmt.Errorf("reopen decoder: %w", err)
	}
	c.guard.SwapLocked(s)
	c.sleep(c.cfg.SettleDelay)

	if err := s.Seek(target); err != nil {
		c.logger.Warn().Err(err).Float64("target", target).Msg("decoder seek failed, verifying anyway")
	}

	v := verifier{
		cfg:   c.cfg,
		sleep: c.sleep,
		show:  func(f decode.Frame) { c.sink.Push(f) },
	}
	return v.run(s, target), nil
}
