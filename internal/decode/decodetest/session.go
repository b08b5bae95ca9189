// Package decodetest provides scripted decode sessions for tests.
package decodetest

import (
	"context"
	"errors"
	"image"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kikiluvv/slidesync/internal/decode"
)

// Session replays a fixed list of frames. Position reports the PTS of the
// most recently pulled frame.
type Session struct {
	mu       sync.Mutex
	id       string
	frames   []decode.Frame
	next     int
	pos      float64
	havePos  bool
	meta     decode.Metadata
	seeks    []float64
	pullErrs []error
	closed   bool
	closes   int

	// OnSeek, when set, replaces the remaining frames after a seek.
	OnSeek func(target float64) []decode.Frame
}

// NewSession builds a session that yields one frame per PTS.
func NewSession(meta decode.Metadata, pts ...float64) *Session {
	return &Session{
		id:     uuid.NewString(),
		frames: FramesAt(pts...),
		meta:   meta,
	}
}

// FramesAt builds tiny placeholder frames with the given timestamps.
func FramesAt(pts ...float64) []decode.Frame {
	frames := make([]decode.Frame, len(pts))
	for i, p := range pts {
		frames[i] = decode.Frame{
			Image:    image.NewGray(image.Rect(0, 0, 2, 2)),
			PTS:      p,
			Duration: 40 * time.Millisecond,
		}
	}
	return frames
}

// FailPulls makes the next len(errs) PullFrame calls return errs in order.
func (s *Session) FailPulls(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pullErrs = append(s.pullErrs, errs...)
}

// SetPosition forces the reported position.
func (s *Session) SetPosition(pos float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = pos
	s.havePos = true
}

func (s *Session) ID() string { return s.id }

func (s *Session) PullFrame() (decode.Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return decode.Frame{}, decode.ErrSessionClosed
	}
	if len(s.pullErrs) > 0 {
		err := s.pullErrs[0]
		s.pullErrs = s.pullErrs[1:]
		return decode.Frame{}, err
	}
	if s.next >= len(s.frames) {
		return decode.Frame{}, decode.ErrEndOfStream
	}

	f := s.frames[s.next]
	s.next++
	s.pos = f.PTS
	s.havePos = true
	return f, nil
}

func (s *Session) Position() (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, decode.ErrSessionClosed
	}
	if !s.havePos {
		return 0, decode.ErrPositionUnavailable
	}
	return s.pos, nil
}

func (s *Session) Seek(target float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return decode.ErrSessionClosed
	}
	s.seeks = append(s.seeks, target)
	if s.OnSeek != nil {
		s.frames = s.OnSeek(target)
		s.next = 0
		s.havePos = false
	}
	return nil
}

func (s *Session) Metadata() decode.Metadata { return s.meta }

func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.closes++
	return nil
}

// Seeks returns the seek targets issued so far.
func (s *Session) Seeks() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.seeks...)
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Remaining returns how many frames are left to pull.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames) - s.next
}

// Opener hands out sessions built by New. The first FailFirst opens fail.
type Opener struct {
	mu        sync.Mutex
	New       func(opts decode.Options) *Session
	FailFirst int
	opens     []decode.Options
	sessions  []*Session
}

var errOpen = errors.New("decodetest: open failed")

func (o *Opener) Open(_ context.Context, _ string, opts decode.Options) (decode.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.opens = append(o.opens, opts)
	if o.FailFirst > 0 {
		o.FailFirst--
		return nil, errOpen
	}
	s := o.New(opts)
	o.sessions = append(o.sessions, s)
	return s, nil
}

// Opens returns the options of every Open call, failed ones included.
func (o *Opener) Opens() []decode.Options {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]decode.Options(nil), o.opens...)
}

// Sessions returns every session handed out.
func (o *Opener) Sessions() []*Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Session(nil), o.sessions...)
}
