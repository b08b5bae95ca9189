package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/decode"
)

// frameSource is the decoding side of a session, normally a FrameReader
type frameSource interface {
	Next() (decode.Frame, error)
	Close() error
}

type startFunc func(ctx context.Context, at float64) (frameSource, error)

// feed is one decoder run, replaced on every seek
type feed struct {
	src    frameSource
	cancel context.CancelFunc
	frames chan decode.Frame
	ready  chan struct{}
	done   chan struct{}
	err    error
}

func (f *feed) pump(ctx context.Context) {
	defer close(f.done)
	first := true
	markReady := func() {
		if first {
			close(f.ready)
			first = false
		}
	}
	for {
		fr, err := f.src.Next()
		if err != nil {
			f.err = err
			markReady()
			return
		}
		select {
		case f.frames <- fr:
			markReady()
		case <-ctx.Done():
			f.err = ctx.Err()
			markReady()
			return
		}
	}
}

func (f *feed) stop() {
	f.cancel()
	_ = f.src.Close()
	<-f.done
}

// Session is a decode.Session backed by a background decoder goroutine.
// PullFrame never blocks; Seek restarts the decoder at the target.
type Session struct {
	id     string
	logger zerolog.Logger
	meta   decode.Metadata
	start  startFunc
	buffer int

	mu      sync.Mutex
	feed    *feed
	pos     float64
	havePos bool
	closed  bool
}

func newSession(logger zerolog.Logger, meta decode.Metadata, start startFunc, buffer int, at float64) (*Session, error) {
	if buffer <= 0 {
		buffer = 8
	}
	s := &Session{
		id:     uuid.NewString(),
		meta:   meta,
		start:  start,
		buffer: buffer,
	}
	s.logger = logger.With().Str("session", s.id).Logger()

	f, err := s.startFeed(at)
	if err != nil {
		return nil, err
	}
	s.feed = f
	return s, nil
}

func (s *Session) startFeed(at float64) (*feed, error) {
	ctx, cancel := context.WithCancel(context.Background())
	src, err := s.start(ctx, at)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("start decoder at %.3fs: %w", at, err)
	}
	f := &feed{
		src:    src,
		cancel: cancel,
		frames: make(chan decode.Frame, s.buffer),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
	}
	go f.pump(ctx)
	return f, nil
}

// awaitFirst waits until the decoder produced a frame or failed
func (s *Session) awaitFirst(ctx context.Context, timeout time.Duration) error {
	s.mu.Lock()
	f := s.feed
	s.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-f.ready:
	case <-timer.C:
		return fmt.Errorf("decoder produced no frame within %v", timeout)
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-f.done:
		if len(f.frames) == 0 {
			if errors.Is(f.err, decode.ErrEndOfStream) {
				return fmt.Errorf("decoder produced no frames: %w", f.err)
			}
			return fmt.Errorf("decoder failed: %w", f.err)
		}
	default:
	}
	return nil
}

// ID returns the session identifier
func (s *Session) ID() string { return s.id }

// Metadata returns the probed source metadata
func (s *Session) Metadata() decode.Metadata { return s.meta }

// PullFrame returns the next decoded frame, decode.ErrNoFrame when none is
// ready yet, or decode.ErrEndOfStream once the source is exhausted.
func (s *Session) PullFrame() (decode.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return decode.Frame{}, decode.ErrSessionClosed
	}
	f := s.feed

	select {
	case fr := <-f.frames:
		return s.took(fr), nil
	default:
	}

	select {
	case <-f.done:
		// the pump may have queued a last frame before exiting
		select {
		case fr := <-f.frames:
			return s.took(fr), nil
		default:
		}
		if errors.Is(f.err, decode.ErrEndOfStream) {
			return decode.Frame{}, decode.ErrEndOfStream
		}
		return decode.Frame{}, fmt.Errorf("decoder stopped: %w", f.err)
	default:
		return decode.Frame{}, decode.ErrNoFrame
	}
}

func (s *Session) took(fr decode.Frame) decode.Frame {
	s.pos = fr.PTS
	s.havePos = true
	return fr
}

// Position is the timestamp of the last pulled frame
func (s *Session) Position() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.havePos {
		return 0, decode.ErrPositionUnavailable
	}
	return s.pos, nil
}

// Seek restarts decoding at target. The decoder lands on or before the
// nearest keyframe, so callers verify the resulting position.
func (s *Session) Seek(target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return decode.ErrSessionClosed
	}
	if target < 0 {
		target = 0
	}
	if s.meta.Duration > 0 && target > s.meta.Duration {
		target = s.meta.Duration
	}

	s.feed.stop()
	f, err := s.startFeed(target)
	if err != nil {
		// leave a finished feed behind so pulls report the failure
		s.feed = deadFeed(err)
		return err
	}
	s.feed = f
	s.havePos = false
	s.logger.Debug().Float64("target", target).Msg("decoder restarted")
	return nil
}

// Close stops the decoder. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.feed.stop()
	return nil
}

func deadFeed(err error) *feed {
	f := &feed{
		src:    nopSource{},
		cancel: func() {},
		frames: make(chan decode.Frame),
		ready:  make(chan struct{}),
		done:   make(chan struct{}),
		err:    err,
	}
	close(f.ready)
	close(f.done)
	return f
}

type nopSource struct{}

func (nopSource) Next() (decode.Frame, error) { return decode.Frame{}, decode.ErrEndOfStream }
func (nopSource) Close() error                { return nil }
