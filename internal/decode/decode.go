// Package decode defines the contract between the playback core and the media
// decode engine. The engine itself lives elsewhere (see internal/ffmpeg); the
// core only pulls frames, queries positions and issues approximate seeks.
package decode

import (
	"context"
	"errors"
	"image"
	"time"
)

var (
	// ErrEndOfStream is returned by PullFrame once the source is exhausted.
	ErrEndOfStream = errors.New("end of stream")

	// ErrNoFrame means the decoder has no frame ready yet. Callers retry later.
	ErrNoFrame = errors.New("no frame ready")

	// ErrPositionUnavailable means the decoder cannot report a position right now.
	ErrPositionUnavailable = errors.New("position unavailable")

	// ErrSessionClosed is returned by operations on a closed session.
	ErrSessionClosed = errors.New("session closed")
)

// Frame is a single decoded picture.
type Frame struct {
	Image image.Image
	// PTS is the presentation timestamp in seconds.
	PTS float64
	// Duration is the decoder's hint for how long this frame should stay on
	// screen. Zero when unknown.
	Duration time.Duration
}

// Metadata describes the source. Zero values mean unknown.
type Metadata struct {
	Duration float64
	FPS      float64
	Width    int
	Height   int
}

// Session is one live decode session over a media source.
//
// PullFrame must not block for long: it returns ErrNoFrame when nothing is
// ready. Seek is best effort and carries no accuracy guarantee. Close is
// idempotent.
type Session interface {
	ID() string
	PullFrame() (Frame, error)
	Position() (float64, error)
	Seek(target float64) error
	Metadata() Metadata
	Close() error
}

// Options selects how aggressively a session is configured.
type Options struct {
	// Optimized enables decoder tuning (hardware acceleration, threading).
	Optimized bool
	// StartAt opens the session already positioned at this many seconds.
	StartAt float64
}

// Opener constructs sessions for a media path.
type Opener interface {
	Open(ctx context.Context, path string, opts Options) (Session, error)
}
