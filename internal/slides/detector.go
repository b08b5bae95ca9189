// Package slides segments a recorded lecture into slide intervals.
//
// Frames are sampled at a fixed cadence and compared with the previous
// sample. Localized, low-intensity change (handwriting, annotations) is
// damped so it cannot accumulate into a false slide change, while structural
// change such as a new layout or a histogram shift is accepted as a boundary
// once it is far enough from the previous one.
package slides

import (
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/kikiluvv/slidesync/internal/events"
)

// ErrNoFrames is returned when the source yields no frame at all.
var ErrNoFrames = errors.New("no frames to analyze")

// Sample is one sampled frame.
type Sample struct {
	Time  float64
	Image image.Image
}

// Source yields samples in time order and io.EOF at the end.
type Source interface {
	Next() (Sample, error)
	// Total is the expected number of samples, 0 when unknown.
	Total() int
	// Duration is the source duration in seconds, 0 when unknown.
	Duration() float64
}

// Progress reports how far a detection pass has got.
type Progress struct {
	Processed int
	Total     int
	Elapsed   float64
	Duration  float64
}

// Result is a finished detection pass.
type Result struct {
	RunID      string
	Boundaries BoundaryList
	Samples    int
	Took       time.Duration
}

// Segmenter combines the classifier with the minimum-separation gate. It is
// the pure part of a detection pass and works on features alone.
type Segmenter struct {
	classifier *Classifier
	builder    *boundaryBuilder
}

// NewSegmenter starts a segmentation with the single boundary 0.
func NewSegmenter(cfg Config) *Segmenter {
	return &Segmenter{
		classifier: NewClassifier(cfg),
		builder:    newBoundaryBuilder(cfg.MinSlideDuration.Seconds()),
	}
}

// Observe classifies f and reports whether it was accepted as a boundary.
func (s *Segmenter) Observe(f Features) (Decision, bool) {
	d := s.classifier.Classify(f)
	if !d.Change {
		return d, false
	}
	if !s.builder.offer(f.Time) {
		return d, false
	}
	s.classifier.Accept()
	return d, true
}

// Boundaries returns a snapshot of the accepted boundaries.
func (s *Segmenter) Boundaries() BoundaryList { return s.builder.list() }

// Detector runs detection passes over a Source.
type Detector struct {
	logger   zerolog.Logger
	cfg      Config
	emitter  events.Emitter
	progress func(Progress)
}

// NewDetector creates a detector. progress may be nil.
func NewDetector(logger zerolog.Logger, cfg Config, emitter events.Emitter, progress func(Progress)) *Detector {
	if emitter == nil {
		emitter = events.Discard{}
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	return &Detector{
		logger:   logger.With().Str("component", "slides").Logger(),
		cfg:      cfg,
		emitter:  emitter,
		progress: progress,
	}
}

// Detect scans src to the end and returns the boundary list. The pass is
// not interruptible; a source error aborts it and no partial list is
// returned.
func (d *Detector) Detect(src Source) (Result, error) {
	start := time.Now()
	runID := uuid.NewString()
	log := d.logger.With().Str("run", runID).Logger()

	total := src.Total()
	duration := src.Duration()
	log.Info().
		Int("expected_samples", total).
		Float64("duration", duration).
		Dur("interval", d.cfg.SampleInterval).
		Msg("slide detection started")

	ext := NewExtractor(d.cfg)
	seg := NewSegmenter(d.cfg)

	var (
		processed int
		lastTime  float64
	)
	for {
		sample, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Error().Err(err).Int("processed", processed).Msg("slide detection aborted")
			return Result{RunID: runID}, fmt.Errorf("read sample %d: %w", processed, err)
		}
		processed++
		lastTime = sample.Time

		if f, ok := ext.Extract(sample.Time, sample.Image); ok {
			dec, accepted := seg.Observe(f)
			if accepted {
				idx := seg.Boundaries().Len() - 1
				log.Debug().
					Int("index", idx).
					Float64("time", f.Time).
					Float64("score", dec.Score).
					Float64("hist_diff", f.HistDiff).
					Float64("area", f.ChangedAreaRatio).
					Msg("slide boundary")
				d.emitter.Emit(events.BoundaryDetected, events.Boundary{RunID: runID, Index: idx, Time: f.Time})
			} else if dec.WritingLike {
				log.Debug().Float64("time", f.Time).Int("streak", seg.classifier.Streak()).Msg("writing-like change damped")
			}
		}

		if processed%d.cfg.ProgressEvery == 0 {
			d.report(runID, Progress{Processed: processed, Total: total, Elapsed: sample.Time, Duration: duration})
		}
	}

	if processed == 0 {
		log.Error().Msg("slide detection found no frames")
		return Result{RunID: runID}, ErrNoFrames
	}
	if processed%d.cfg.ProgressEvery != 0 {
		d.report(runID, Progress{Processed: processed, Total: total, Elapsed: lastTime, Duration: duration})
	}

	res := Result{
		RunID:      runID,
		Boundaries: seg.Boundaries(),
		Samples:    processed,
		Took:       time.Since(start),
	}
	log.Info().
		Int("slides", res.Boundaries.Len()).
		Int("samples", processed).
		Dur("took", res.Took).
		Msg("slide detection finished")
	return res, nil
}

func (d *Detector) report(runID string, p Progress) {
	if p.Total > 0 && p.Processed > p.Total {
		p.Total = p.Processed
	}
	if d.progress != nil {
		d.progress(p)
	}
	d.emitter.Emit(events.DetectionProgress, events.Progress{
		RunID:     runID,
		Processed: p.Processed,
		Total:     p.Total,
		Elapsed:   p.Elapsed,
		Duration:  p.Duration,
	})
}
