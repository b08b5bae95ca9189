package navigation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/slidesync/internal/slides"
)

func deck(t *testing.T) *Deck {
	t.Helper()
	b, err := slides.NewBoundaryList([]float64{0, 40, 95}, 2)
	require.NoError(t, err)
	return NewDeck(b, 120)
}

func TestDeckSlides(t *testing.T) {
	d := deck(t)
	require.Equal(t, 3, d.Len())

	s, err := d.Get(1)
	require.NoError(t, err)
	assert.Equal(t, Slide{Index: 1, Start: 40, End: 95, Duration: 55}, s)

	last, err := d.Get(2)
	require.NoError(t, err)
	assert.Equal(t, 120.0, last.End)

	_, err = d.Get(3)
	assert.Error(t, err)

	at, ok := d.At(96)
	require.True(t, ok)
	assert.Equal(t, 2, at.Index)
}

func TestFocusClamp(t *testing.T) {
	d := deck(t)
	var f Focus

	assert.Equal(t, 0.0, f.Clamp(-5, 120, 0.04))
	assert.Equal(t, 120.0, f.Clamp(500, 120, 0.04))

	s, err := f.Set(d, 1)
	require.NoError(t, err)
	assert.Equal(t, 40.0, f.Clamp(10, 120, 0.04))
	assert.Equal(t, 60.0, f.Clamp(60, 120, 0.04))

	// the end is exclusive: a clamped seek must stay on the focused slide
	end := f.Clamp(100, 120, 0.04)
	assert.InDelta(t, 94.96, end, 1e-9)
	assert.True(t, s.Contains(end))
	step, _ := f.Check(d, end)
	assert.Equal(t, Stay, step)

	end = f.Clamp(95, 120, 0)
	assert.Less(t, end, 95.0)
	assert.True(t, s.Contains(end))
}

func TestFocusClampShortSlide(t *testing.T) {
	b, err := slides.NewBoundaryList([]float64{0, 10, 10.02}, 0)
	require.NoError(t, err)
	d := NewDeck(b, 20)

	var f Focus
	s, err := f.Set(d, 1)
	require.NoError(t, err)
	got := f.Clamp(15, 20, 0.04)
	assert.True(t, s.Contains(got), "got %v", got)
}

func TestFocusAdvancesThenReleases(t *testing.T) {
	d := deck(t)
	var f Focus
	_, err := f.Set(d, 1)
	require.NoError(t, err)

	step, _ := f.Check(d, 60)
	assert.Equal(t, Stay, step)

	step, next := f.Check(d, 95)
	assert.Equal(t, Advance, step)
	assert.Equal(t, 2, next.Index)
	assert.Equal(t, 95.0, next.Start)

	step, _ = f.Check(d, 120)
	assert.Equal(t, Released, step)
	_, active := f.Current()
	assert.False(t, active)
}

func TestUnfocusedCheckStays(t *testing.T) {
	var f Focus
	step, _ := f.Check(deck(t), 1000)
	assert.Equal(t, Stay, step)
	assert.False(t, f.Release())
}
