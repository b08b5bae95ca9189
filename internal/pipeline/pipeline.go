package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/ffmpeg"
	"github.com/kikiluvv/slidesync/internal/navigation"
	"github.com/kikiluvv/slidesync/internal/slides"
)

// Pipeline runs slide detection over video files
type Pipeline struct {
	logger  zerolog.Logger
	ffmpeg  *ffmpeg.Executor
	cfg     slides.Config
	emitter events.Emitter
}

// New creates a new pipeline instance
func New(logger zerolog.Logger, exec *ffmpeg.Executor, cfg slides.Config, emitter events.Emitter) *Pipeline {
	if emitter == nil {
		emitter = events.Discard{}
	}
	return &Pipeline{
		logger:  logger.With().Str("component", "pipeline").Logger(),
		ffmpeg:  exec,
		cfg:     cfg,
		emitter: emitter,
	}
}

// Detect runs one detection pass over input
func (p *Pipeline) Detect(ctx context.Context, input string, progress func(slides.Progress)) (slides.Result, error) {
	res, _, err := p.detect(ctx, input, progress)
	return res, err
}

func (p *Pipeline) detect(ctx context.Context, input string, progress func(slides.Progress)) (slides.Result, *ffmpeg.VideoInfo, error) {
	if input == "" {
		return slides.Result{}, nil, fmt.Errorf("input path cannot be empty")
	}

	info, err := p.ffmpeg.ProbeVideo(ctx, input)
	if err != nil {
		return slides.Result{}, nil, fmt.Errorf("failed to probe video: %w", err)
	}
	meta := info.Metadata()

	interval := p.cfg.SampleInterval.Seconds()
	reader, err := p.ffmpeg.OpenReader(ctx, input, ffmpeg.ReaderOptions{
		Rate:   1 / interval,
		Width:  p.cfg.Width,
		Height: p.cfg.Height,
		Pixel:  ffmpeg.PixelGray,
	})
	if err != nil {
		return slides.Result{}, info, fmt.Errorf("failed to open sampler: %w", err)
	}
	defer reader.Close()

	det := slides.NewDetector(p.logger, p.cfg, p.emitter, progress)
	res, err := det.Detect(newSampleSource(reader, meta.Duration, interval))
	if err != nil {
		return res, info, fmt.Errorf("slide detection failed: %w", err)
	}
	return res, info, nil
}

// Analyze probes input, detects slides and optionally renders thumbnails
func (p *Pipeline) Analyze(ctx context.Context, input string, opts AnalyzeOptions) (*Lecture, error) {
	p.logger.Info().
		Str("input", input).
		Dur("sample_interval", p.cfg.SampleInterval).
		Msg("starting analysis pipeline")

	var progress func(slides.Progress)
	if opts.Progress != nil {
		progress = func(pr slides.Progress) { opts.Progress(pr.Processed, pr.Total) }
	}

	res, info, err := p.detect(ctx, input, progress)
	if err != nil {
		return nil, err
	}
	meta := info.Metadata()
	deck := navigation.NewDeck(res.Boundaries, meta.Duration)

	lecture := &Lecture{
		Name:       strings.TrimSuffix(filepath.Base(input), filepath.Ext(input)),
		InputPath:  input,
		RunID:      res.RunID,
		Duration:   meta.Duration,
		FPS:        meta.FPS,
		Width:      meta.Width,
		Height:     meta.Height,
		Samples:    res.Samples,
		Boundaries: res.Boundaries.Times(),
		Slides:     deck.All(),
		CreatedAt:  time.Now(),
	}

	if opts.ThumbnailDir != "" {
		thumbs, err := p.ffmpeg.SlideThumbnails(ctx, input, opts.ThumbnailDir, lecture.Boundaries, opts.ThumbnailWidth)
		if err != nil {
			return lecture, err
		}
		lecture.Thumbnails = thumbs
	}

	p.logger.Info().
		Str("lecture", lecture.Name).
		Int("slides", len(lecture.Slides)).
		Dur("took", res.Took).
		Msg("analysis pipeline complete")

	return lecture, nil
}
