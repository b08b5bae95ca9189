package navigation

import "math"

// Step is what the caller should do after checking playback against the
// focused slide.
type Step int

const (
	// Stay means playback is still inside the focused slide, or nothing is
	// focused.
	Stay Step = iota
	// Advance means the focused slide ended and focus moved to the next one.
	Advance
	// Released means the last slide ended and focus was dropped.
	Released
)

// Focus constrains navigation to one slide. The zero value is unfocused.
// Focus is not safe for concurrent use.
type Focus struct {
	active bool
	slide  Slide
}

// Set focuses slide i of deck
func (f *Focus) Set(deck *Deck, i int) (Slide, error) {
	s, err := deck.Get(i)
	if err != nil {
		return Slide{}, err
	}
	f.active = true
	f.slide = s
	return s, nil
}

// Release drops focus and reports whether anything was focused
func (f *Focus) Release() bool {
	was := f.active
	f.active = false
	f.slide = Slide{}
	return was
}

// Current returns the focused slide
func (f *Focus) Current() (Slide, bool) {
	return f.slide, f.active
}

// Clamp keeps a seek target inside [0, duration] when nothing is focused.
// With a slide focused the target stays in [Start, End), at most one frame
// (in seconds) before End so it cannot land on the next slide's start.
func (f *Focus) Clamp(pos, duration, frame float64) float64 {
	if !f.active {
		if pos < 0 {
			return 0
		}
		if duration > 0 && pos > duration {
			return duration
		}
		return pos
	}

	lo := f.slide.Start
	hi := math.Nextafter(f.slide.End, lo)
	if frame > 0 && f.slide.End-frame > lo {
		hi = f.slide.End - frame
	}
	switch {
	case pos < lo || hi < lo:
		return lo
	case pos > hi:
		return hi
	}
	return pos
}

// Check compares the playback position with the focused slide. Once pos
// reaches the slide end, focus moves on to the next slide, or is released
// after the last one.
func (f *Focus) Check(deck *Deck, pos float64) (Step, Slide) {
	if !f.active || pos < f.slide.End {
		return Stay, f.slide
	}
	next := f.slide.Index + 1
	if next >= deck.Len() {
		f.Release()
		return Released, Slide{}
	}
	s, _ := f.Set(deck, next)
	return Advance, s
}
