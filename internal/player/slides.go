package player

import (
	"context"
	"errors"

	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/navigation"
	"github.com/kikiluvv/slidesync/internal/slides"
)

var errNoAnalyzer = errors.New("slide detection not configured")

// DetectSlides runs a detection pass over the loaded video and blocks until
// it finishes. The pass ignores ctx cancellation once started. On success
// the new boundaries replace the old ones and focus is dropped; on failure
// the previous boundaries are kept.
func (p *Player) DetectSlides(ctx context.Context) (slides.Result, error) {
	path, err := p.beginDetection()
	if err != nil {
		return slides.Result{}, err
	}
	return p.runDetection(ctx, path)
}

// StartDetection runs DetectSlides on its own goroutine. The outcome is
// reported through DetectionFinished or DetectionFailed.
func (p *Player) StartDetection(ctx context.Context) error {
	path, err := p.beginDetection()
	if err != nil {
		return err
	}
	go func() {
		_, _ = p.runDetection(ctx, path)
	}()
	return nil
}

// Detecting reports whether a detection pass is running.
func (p *Player) Detecting() bool {
	return p.detecting.Load()
}

func (p *Player) beginDetection() (string, error) {
	if p.analyzer == nil {
		return "", errNoAnalyzer
	}
	p.mu.Lock()
	path := p.path
	p.mu.Unlock()
	if path == "" {
		return "", ErrNoVideo
	}
	if !p.detecting.CompareAndSwap(false, true) {
		return "", ErrDetectionRunning
	}
	return path, nil
}

func (p *Player) runDetection(ctx context.Context, path string) (slides.Result, error) {
	defer p.detecting.Store(false)

	p.logger.Info().Str("path", path).Msg("slide detection started")
	res, err := p.analyzer.Detect(context.WithoutCancel(ctx), path, nil)
	if err != nil {
		p.logger.Error().Err(err).Str("run", res.RunID).Msg("slide detection failed, keeping previous slides")
		p.emitter.Emit(events.DetectionFailed, events.DetectionResult{
			RunID:      res.RunID,
			Boundaries: p.Boundaries().Times(),
			Err:        err,
		})
		return res, err
	}

	p.mu.Lock()
	if p.path != path {
		p.mu.Unlock()
		p.logger.Warn().Str("path", path).Msg("video changed during detection, discarding result")
		return res, nil
	}
	p.deck = navigation.NewDeck(res.Boundaries, p.meta.Duration)
	released := p.focus.Release()
	p.mu.Unlock()

	if released {
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: -1})
	}
	p.emitter.Emit(events.DetectionFinished, events.DetectionResult{
		RunID:      res.RunID,
		Boundaries: res.Boundaries.Times(),
	})
	p.logger.Info().
		Str("run", res.RunID).
		Int("slides", res.Boundaries.Len()).
		Dur("took", res.Took).
		Msg("slide detection finished")
	return res, nil
}

// Boundaries returns the current boundary snapshot.
func (p *Player) Boundaries() slides.BoundaryList {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deck == nil {
		b, _ := slides.NewBoundaryList(nil, 0)
		return b
	}
	return p.deck.Boundaries()
}

// Slides returns the slides of the current boundary snapshot.
func (p *Player) Slides() []navigation.Slide {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.deck == nil {
		return nil
	}
	return p.deck.All()
}

// JumpToBoundary focuses slide i and seeks to its start. While focused,
// seeks stay inside the slide and playback moves on to the next slide when
// it reaches the end. Focus is left unchanged when the seek is rejected.
func (p *Player) JumpToBoundary(i int) error {
	p.mu.Lock()
	if p.path == "" {
		p.mu.Unlock()
		return ErrNoVideo
	}
	deck := p.deck
	s, err := deck.Get(i)
	resume := p.state == Playing
	p.mu.Unlock()
	if err != nil {
		return err
	}

	if err := p.submitSeek(s.Start, resume); err != nil {
		return err
	}

	p.mu.Lock()
	if p.deck != deck {
		// a detection pass replaced the slides and already dropped focus
		p.mu.Unlock()
		return nil
	}
	_, _ = p.focus.Set(deck, i)
	p.mu.Unlock()

	p.emitter.Emit(events.FocusChanged, events.Focus{Index: s.Index, Start: s.Start, End: s.End})
	p.logger.Info().Int("slide", s.Index).Float64("start", s.Start).Float64("end", s.End).Msg("jumping to slide")
	return nil
}

// ReleaseFocus drops slide focus and reports whether a slide was focused.
func (p *Player) ReleaseFocus() bool {
	p.mu.Lock()
	released := p.focus.Release()
	p.mu.Unlock()

	if released {
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: -1})
	}
	return released
}

// Focused returns the focused slide.
func (p *Player) Focused() (navigation.Slide, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.focus.Current()
}
