package player

import (
	"context"
	"errors"
	"time"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/navigation"
	"github.com/kikiluvv/slidesync/internal/pacer"
)

func (p *Player) startLoops() {
	ctx, cancel := context.WithCancel(context.Background())

	p.mu.Lock()
	p.cancel = cancel
	fps := p.meta.FPS
	p.mu.Unlock()

	p.wg.Add(4)
	go func() {
		defer p.wg.Done()
		p.playbackLoop(ctx)
	}()
	go func() {
		defer p.wg.Done()
		p.displayLoop(ctx, pacer.DisplayInterval(fps))
	}()
	go func() {
		defer p.wg.Done()
		p.monitor.Run(ctx, p.syncActive)
	}()
	go func() {
		defer p.wg.Done()
		p.seeker.Run(ctx)
	}()
}

func (p *Player) stopLoops() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	p.wg.Wait()
}

func (p *Player) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Player) playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Playing
}

// syncActive gates the sync monitor: it only samples while playing and no
// seek is in flight.
func (p *Player) syncActive() bool {
	if p.seeker.InFlight() {
		return false
	}
	return p.playing()
}

// playbackLoop is the single producer feeding the pacer.
func (p *Player) playbackLoop(ctx context.Context) {
	failures := 0
	for {
		if ctx.Err() != nil {
			return
		}
		if !p.playing() {
			failures = 0
			select {
			case <-ctx.Done():
				return
			case <-p.wake:
			}
			continue
		}

		var f decode.Frame
		err := p.guard.Do(func(s decode.Session) error {
			var err error
			f, err = s.PullFrame()
			return err
		})

		switch {
		case err == nil:
			failures = 0
			p.frames.Push(f)
			p.checkFocus(f.PTS)
			p.sleep(ctx, p.frameSleep(f))

		case errors.Is(err, decode.ErrNoFrame), errors.Is(err, decode.ErrNoSession):
			p.sleep(ctx, p.cfg.IdleSleep)

		case errors.Is(err, decode.ErrEndOfStream):
			p.finish()

		default:
			failures++
			p.logger.Warn().Err(err).Int("consecutive", failures).Msg("frame pull failed")
			if failures%p.cfg.StallAfter == 0 {
				p.emitter.Emit(events.PlaybackStalled, events.Stall{
					ConsecutiveErrors: failures,
					LastErr:           err,
				})
			}
			p.sleep(ctx, p.cfg.IdleSleep)
		}
	}
}

func (p *Player) frameSleep(f decode.Frame) time.Duration {
	d := f.Duration
	if d <= 0 {
		p.mu.Lock()
		fps := p.meta.FPS
		p.mu.Unlock()
		d = time.Duration(float64(time.Second) / fps)
	}
	if p.cfg.MinFrameSleep > 0 && d < p.cfg.MinFrameSleep {
		d = p.cfg.MinFrameSleep
	}
	if p.cfg.MaxFrameSleep > 0 && d > p.cfg.MaxFrameSleep {
		d = p.cfg.MaxFrameSleep
	}
	return d
}

func (p *Player) sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// finish handles end of stream: stop, rewind to 0, drop focus.
func (p *Player) finish() {
	p.mu.Lock()
	p.state = Stopped
	p.paused = 0
	released := p.focus.Release()
	p.mu.Unlock()

	p.rewind(released)
	p.emitter.Emit(events.PlaybackFinished, nil)
	p.logger.Info().Msg("playback finished")
}

func (p *Player) checkFocus(pos float64) {
	p.mu.Lock()
	step, s := p.focus.Check(p.deck, pos)
	p.mu.Unlock()

	switch step {
	case navigation.Advance:
		p.logger.Debug().Int("slide", s.Index).Float64("start", s.Start).Msg("focus advanced")
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: s.Index, Start: s.Start, End: s.End})
	case navigation.Released:
		p.logger.Debug().Float64("position", pos).Msg("focus released after last slide")
		p.emitter.Emit(events.FocusChanged, events.Focus{Index: -1})
	}
}

// displayLoop is the single consumer of the pacer.
func (p *Player) displayLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if f, ok := p.frames.Pull(ctx, p.cfg.PullTimeout); ok {
			p.sink.Show(f)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
