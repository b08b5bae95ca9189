package player

import (
	"fmt"

	"github.com/kikiluvv/slidesync/internal/navigation"
	"github.com/kikiluvv/slidesync/internal/pacer"
	"github.com/kikiluvv/slidesync/internal/seek"
	"github.com/kikiluvv/slidesync/internal/syncctl"
	"github.com/kikiluvv/slidesync/pkg/util"
)

// Status is a diagnostic snapshot of the player.
type Status struct {
	State     State
	Path      string
	Position  float64
	Duration  float64
	FPS       float64
	Sync      syncctl.Status
	Seek      seek.State
	Pacer     pacer.Metrics
	Slides    int
	Focus     *navigation.Slide
	Detecting bool
}

// Status gathers a snapshot from every part of the player.
func (p *Player) Status() Status {
	syncStatus := p.monitor.Status()
	seekState := p.seeker.State()
	metrics := p.frames.Metrics()

	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		State:     p.state,
		Path:      p.path,
		Position:  p.positionLocked(),
		Duration:  p.meta.Duration,
		FPS:       p.meta.FPS,
		Sync:      syncStatus,
		Seek:      seekState,
		Pacer:     metrics,
		Detecting: p.detecting.Load(),
	}
	if p.deck != nil {
		st.Slides = p.deck.Len()
	}
	if s, ok := p.focus.Current(); ok {
		st.Focus = &s
	}
	return st
}

// String renders a one-line status, e.g.
// "playing 1:05 / 12:00 | Sync: Normal (+12ms) | slide 3/9".
func (s Status) String() string {
	line := fmt.Sprintf("%s %s / %s | %s (%+.0fms)",
		s.State, util.FormatClock(s.Position), util.FormatClock(s.Duration),
		s.Sync.Applied.Label(), s.Sync.OffsetMs())
	if s.Focus != nil {
		line += fmt.Sprintf(" | slide %d/%d", s.Focus.Index+1, s.Slides)
	} else if s.Slides > 1 {
		line += fmt.Sprintf(" | %d slides", s.Slides)
	}
	if s.Detecting {
		line += " | detecting"
	}
	return line
}
