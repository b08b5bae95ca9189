package ffmpeg

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/decode"
)

// OpenerConfig controls the sessions an Opener creates
type OpenerConfig struct {
	// Width and Height of delivered frames; zero keeps the source size and
	// a zero height keeps the aspect ratio
	Width  int
	Height int
	Pixel  PixelFormat
	// Buffer is the number of decoded frames queued ahead of the consumer
	Buffer int
	// PrimeTimeout bounds the wait for the first decoded frame
	PrimeTimeout time.Duration
}

// Opener creates playback sessions backed by ffmpeg
type Opener struct {
	exec   *Executor
	cfg    OpenerConfig
	logger zerolog.Logger

	mu     sync.Mutex
	probes map[string]*VideoInfo
}

// NewOpener creates an opener. Probe results are cached per path.
func NewOpener(logger zerolog.Logger, exec *Executor, cfg OpenerConfig) *Opener {
	if cfg.Pixel == "" {
		cfg.Pixel = PixelRGBA
	}
	if cfg.PrimeTimeout <= 0 {
		cfg.PrimeTimeout = 5 * time.Second
	}
	return &Opener{
		exec:   exec,
		cfg:    cfg,
		logger: logger.With().Str("component", "decoder").Logger(),
		probes: make(map[string]*VideoInfo),
	}
}

// Probe returns cached metadata for path
func (o *Opener) Probe(ctx context.Context, path string) (*VideoInfo, error) {
	o.mu.Lock()
	info, ok := o.probes[path]
	o.mu.Unlock()
	if ok {
		return info, nil
	}

	info, err := o.exec.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	o.probes[path] = info
	o.mu.Unlock()
	return info, nil
}

// Open implements decode.Opener. The session is returned only after the
// decoder produced its first frame, so a broken hardware path fails here.
func (o *Opener) Open(ctx context.Context, path string, opts decode.Options) (decode.Session, error) {
	info, err := o.Probe(ctx, path)
	if err != nil {
		return nil, err
	}
	meta := info.Metadata()
	w, h := frameSize(info.Meta.Width, info.Meta.Height, o.cfg.Width, o.cfg.Height)

	start := func(ctx context.Context, at float64) (frameSource, error) {
		return o.exec.OpenReader(ctx, path, ReaderOptions{
			Start:     at,
			Rate:      meta.FPS,
			Width:     w,
			Height:    h,
			Pixel:     o.cfg.Pixel,
			Optimized: opts.Optimized,
		})
	}

	s, err := newSession(o.logger, meta, start, o.cfg.Buffer, opts.StartAt)
	if err != nil {
		return nil, err
	}
	if err := s.awaitFirst(ctx, o.cfg.PrimeTimeout); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("open %s (optimized=%t): %w", path, opts.Optimized, err)
	}

	o.logger.Debug().
		Str("session", s.ID()).
		Str("path", path).
		Bool("optimized", opts.Optimized).
		Float64("start", opts.StartAt).
		Int("width", w).
		Int("height", h).
		Msg("decoder session opened")
	return s, nil
}

// frameSize resolves the output size, rounding to even dimensions
func frameSize(srcW, srcH, wantW, wantH int) (int, int) {
	switch {
	case wantW > 0 && wantH > 0:
		return wantW, wantH
	case wantW > 0 && srcW > 0:
		h := srcH * wantW / srcW
		return wantW, h + h%2
	default:
		return srcW, srcH
	}
}
