package slides

import (
	"fmt"
	"sort"
)

// BoundaryList is an immutable, strictly increasing list of slide start
// times in seconds. The first entry is always 0.
type BoundaryList struct {
	times []float64
}

// NewBoundaryList validates times and returns a list. An empty input yields
// the single-slide list [0].
func NewBoundaryList(times []float64, minGap float64) (BoundaryList, error) {
	if len(times) == 0 {
		return BoundaryList{times: []float64{0}}, nil
	}
	if times[0] != 0 {
		return BoundaryList{}, fmt.Errorf("first boundary must be 0, got %.3f", times[0])
	}
	for i := 1; i < len(times); i++ {
		if gap := times[i] - times[i-1]; gap < minGap || gap <= 0 {
			return BoundaryList{}, fmt.Errorf("boundaries %d and %d are %.3fs apart, need %.3fs", i-1, i, gap, minGap)
		}
	}
	return BoundaryList{times: append([]float64(nil), times...)}, nil
}

// Len returns the number of slides.
func (b BoundaryList) Len() int { return len(b.times) }

// At returns boundary i.
func (b BoundaryList) At(i int) float64 { return b.times[i] }

// Times returns a copy of the boundaries.
func (b BoundaryList) Times() []float64 {
	return append([]float64(nil), b.times...)
}

// Interval returns the [start, end) span of slide i. The last slide ends at
// duration.
func (b BoundaryList) Interval(i int, duration float64) (start, end float64, ok bool) {
	if i < 0 || i >= len(b.times) {
		return 0, 0, false
	}
	start = b.times[i]
	end = duration
	if i+1 < len(b.times) {
		end = b.times[i+1]
	}
	return start, end, true
}

// IndexAt returns the slide containing pos, or -1 for an empty list.
func (b BoundaryList) IndexAt(pos float64) int {
	if len(b.times) == 0 {
		return -1
	}
	i := sort.Search(len(b.times), func(i int) bool { return b.times[i] > pos })
	if i == 0 {
		return 0
	}
	return i - 1
}

// boundaryBuilder accumulates accepted boundaries behind the separation gate.
type boundaryBuilder struct {
	minGap float64
	times  []float64
}

func newBoundaryBuilder(minGap float64) *boundaryBuilder {
	return &boundaryBuilder{minGap: minGap, times: []float64{0}}
}

func (b *boundaryBuilder) offer(t float64) bool {
	if t-b.times[len(b.times)-1] < b.minGap || t <= b.times[len(b.times)-1] {
		return false
	}
	b.times = append(b.times, t)
	return true
}

func (b *boundaryBuilder) last() float64 { return b.times[len(b.times)-1] }

func (b *boundaryBuilder) list() BoundaryList {
	return BoundaryList{times: append([]float64(nil), b.times...)}
}
