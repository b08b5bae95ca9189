// Package navigation turns detected slide boundaries into slides a viewer
// can jump between, and tracks which slide playback is focused on.
package navigation

import (
	"fmt"

	"github.com/kikiluvv/slidesync/internal/slides"
)

// Slide is one interval of the lecture, [Start, End)
type Slide struct {
	Index    int     `yaml:"index"`
	Start    float64 `yaml:"start"`
	End      float64 `yaml:"end"`
	Duration float64 `yaml:"duration"`
}

// Contains reports whether pos falls inside the slide
func (s Slide) Contains(pos float64) bool {
	return pos >= s.Start && pos < s.End
}

// Deck is the slide list for one video
type Deck struct {
	boundaries slides.BoundaryList
	duration   float64
	slides     []Slide
}

// NewDeck builds the slides implied by boundaries over a video of the given
// duration
func NewDeck(b slides.BoundaryList, duration float64) *Deck {
	d := &Deck{boundaries: b, duration: duration}
	for i := 0; i < b.Len(); i++ {
		start, end, _ := b.Interval(i, duration)
		if end < start {
			end = start
		}
		d.slides = append(d.slides, Slide{
			Index:    i,
			Start:    start,
			End:      end,
			Duration: end - start,
		})
	}
	return d
}

// Len returns the number of slides
func (d *Deck) Len() int {
	return len(d.slides)
}

// Get returns slide i
func (d *Deck) Get(i int) (Slide, error) {
	if i < 0 || i >= len(d.slides) {
		return Slide{}, fmt.Errorf("slide %d out of range [0, %d)", i, len(d.slides))
	}
	return d.slides[i], nil
}

// At returns the slide playing at pos
func (d *Deck) At(pos float64) (Slide, bool) {
	i := d.boundaries.IndexAt(pos)
	if i < 0 || i >= len(d.slides) {
		return Slide{}, false
	}
	return d.slides[i], true
}

// All returns a copy of every slide
func (d *Deck) All() []Slide {
	return append([]Slide(nil), d.slides...)
}

// Boundaries returns the underlying boundary list
func (d *Deck) Boundaries() slides.BoundaryList {
	return d.boundaries
}

// Duration returns the video duration the deck was built for
func (d *Deck) Duration() float64 {
	return d.duration
}
