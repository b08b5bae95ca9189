package slides

import (
	"errors"
	"image"
	"image/color"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/slidesync/internal/events"
)

func writing(t float64) Features {
	return Features{Time: t, MeanDiff: 3, HistDiff: 5, ChangedAreaRatio: 0.05, ChangeConcentration: 0.9}
}

func TestHandwritingNeverBecomesBoundary(t *testing.T) {
	seg := NewSegmenter(DefaultConfig())

	for i := 0; i < 6; i++ {
		d, accepted := seg.Observe(writing(10))
		assert.True(t, d.WritingLike, "sample %d", i)
		assert.False(t, accepted, "sample %d", i)
	}
	assert.Equal(t, 6, seg.classifier.Streak())

	d, accepted := seg.Observe(Features{Time: 16, MeanDiff: 40, HistDiff: 65, ChangedAreaRatio: 0.5, ChangeConcentration: 0.2})
	assert.False(t, d.WritingLike)
	assert.True(t, accepted)
	assert.Equal(t, []float64{0, 16}, seg.Boundaries().Times())
	assert.Equal(t, 0, seg.classifier.Streak(), "acceptance resets the streak")
}

func TestWritingLikeScoreIsDamped(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	f := Features{ChangedAreaRatio: 0.1, ChangeConcentration: 0.8, HistDiff: 10, MeanDiff: 5}

	require.True(t, c.IsWritingLike(f))
	d := c.Classify(f)
	assert.Less(t, d.Score, d.RawScore)
	assert.InDelta(t, d.RawScore*0.9, d.Score, 1e-9)
}

func TestDampingFloor(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	var d Decision
	for i := 0; i < 12; i++ {
		d = c.Classify(writing(float64(i)))
	}
	assert.InDelta(t, d.RawScore*0.3, d.Score, 1e-9)
}

func TestStreakDecays(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	c.Classify(writing(0))
	c.Classify(writing(1))
	require.Equal(t, 2, c.Streak())

	c.Classify(Features{Time: 2, ChangedAreaRatio: 0.5})
	assert.Equal(t, 1, c.Streak())
	c.Classify(Features{Time: 3, ChangedAreaRatio: 0.5})
	c.Classify(Features{Time: 4, ChangedAreaRatio: 0.5})
	assert.Equal(t, 0, c.Streak())
}

func TestGradualChangeHalvesScore(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	f := Features{MeanDiff: 10, ChangedAreaRatio: 0.3}

	assert.False(t, c.Classify(f).Gradual)
	assert.False(t, c.Classify(f).Gradual)
	d := c.Classify(f)
	assert.True(t, d.Gradual)
	assert.InDelta(t, 5.0, d.Score, 1e-9)
}

func TestHistogramShiftIsBoundary(t *testing.T) {
	seg := NewSegmenter(DefaultConfig())
	d, accepted := seg.Observe(Features{Time: 10, ChangedAreaRatio: 0.4, HistDiff: 70})
	assert.True(t, d.Change)
	assert.True(t, accepted)
}

func TestMinimumSeparation(t *testing.T) {
	seg := NewSegmenter(DefaultConfig())
	change := func(t float64) Features { return Features{Time: t, EdgeDiffRatio: 0.5} }

	_, ok := seg.Observe(change(1))
	assert.False(t, ok, "too close to the implicit boundary at 0")
	_, ok = seg.Observe(change(10))
	assert.True(t, ok)
	_, ok = seg.Observe(change(11))
	assert.False(t, ok)
	_, ok = seg.Observe(change(12))
	assert.True(t, ok)

	list := seg.Boundaries()
	assert.Equal(t, []float64{0, 10, 12}, list.Times())
	_, err := NewBoundaryList(list.Times(), 2)
	assert.NoError(t, err)
}

func TestBoundaryListInterval(t *testing.T) {
	list, err := NewBoundaryList([]float64{0, 30, 95}, 2)
	require.NoError(t, err)

	start, end, ok := list.Interval(1, 300)
	require.True(t, ok)
	assert.Equal(t, 30.0, start)
	assert.Equal(t, 95.0, end)

	start, end, ok = list.Interval(2, 300)
	require.True(t, ok)
	assert.Equal(t, 95.0, start)
	assert.Equal(t, 300.0, end)

	_, _, ok = list.Interval(3, 300)
	assert.False(t, ok)

	assert.Equal(t, 0, list.IndexAt(12))
	assert.Equal(t, 1, list.IndexAt(30))
	assert.Equal(t, 2, list.IndexAt(500))
}

func TestBoundaryListRejectsBadInput(t *testing.T) {
	_, err := NewBoundaryList([]float64{1, 5}, 2)
	assert.Error(t, err)
	_, err = NewBoundaryList([]float64{0, 1}, 2)
	assert.Error(t, err)

	list, err := NewBoundaryList(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []float64{0}, list.Times())
}

func uniform(v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, 320, 240))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func TestChangeConcentration(t *testing.T) {
	prev := image.NewGray(image.Rect(0, 0, 40, 40))
	cur := image.NewGray(image.Rect(0, 0, 40, 40))
	for y := 5; y < 15; y++ {
		for x := 5; x < 15; x++ {
			cur.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	cur.SetGray(35, 35, color.Gray{Y: 255})

	mean, mask, changed := diffStats(prev, cur, 30)
	assert.Equal(t, 101, changed)
	assert.InDelta(t, 101*255.0/1600, mean, 1e-9)
	assert.Equal(t, 100, largestRegion(mask, 40, 40))
}

func TestDiagonalPixelsAreConnected(t *testing.T) {
	mask := []bool{
		true, false, false,
		false, true, false,
		false, false, true,
	}
	assert.Equal(t, 3, largestRegion(mask, 3, 3))
}

func TestIdenticalFramesHaveNoChange(t *testing.T) {
	ext := NewExtractor(DefaultConfig())
	_, ok := ext.Extract(0, uniform(80))
	require.False(t, ok)

	f, ok := ext.Extract(1, uniform(80))
	require.True(t, ok)
	assert.Zero(t, f.MeanDiff)
	assert.Zero(t, f.ChangedAreaRatio)
	assert.Zero(t, f.ChangeConcentration)
	assert.InDelta(t, 0, f.HistDiff, 1e-6)
	assert.Zero(t, f.EdgeDiffRatio)
}

func TestEdgesFoundOnStep(t *testing.T) {
	g := uniform(0)
	for y := 0; y < 240; y++ {
		for x := 160; x < 320; x++ {
			g.Pix[y*g.Stride+x] = 255
		}
	}
	assert.Positive(t, edgeCount(g, 50, 150))
	assert.Zero(t, edgeCount(uniform(128), 50, 150))
}

func TestExtractorResizesColorFrames(t *testing.T) {
	ext := NewExtractor(DefaultConfig())
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	ext.Extract(0, img)
	f, ok := ext.Extract(1, img)
	require.True(t, ok)
	assert.Zero(t, f.MeanDiff)
}

type memSource struct {
	samples []Sample
	i       int
	err     error
	errAt   int
}

func (m *memSource) Next() (Sample, error) {
	if m.err != nil && m.i == m.errAt {
		return Sample{}, m.err
	}
	if m.i >= len(m.samples) {
		return Sample{}, io.EOF
	}
	s := m.samples[m.i]
	m.i++
	return s, nil
}

func (m *memSource) Total() int        { return len(m.samples) }
func (m *memSource) Duration() float64 { return float64(len(m.samples)) }

func lecture() *memSource {
	src := &memSource{}
	for i := 0; i < 12; i++ {
		v := uint8(20)
		if i >= 5 {
			v = 200
		}
		src.samples = append(src.samples, Sample{Time: float64(i), Image: uniform(v)})
	}
	return src
}

func TestDetectorFindsSlideChange(t *testing.T) {
	bus := events.NewBus(64)
	var progress []Progress
	d := NewDetector(zerolog.Nop(), DefaultConfig(), bus, func(p Progress) { progress = append(progress, p) })

	res, err := d.Detect(lecture())
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 5}, res.Boundaries.Times())
	assert.Equal(t, 12, res.Samples)
	assert.NotEmpty(t, res.RunID)

	require.Len(t, progress, 2)
	assert.Equal(t, 10, progress[0].Processed)
	assert.Equal(t, 12, progress[1].Processed)
	assert.Equal(t, 12, progress[1].Total)
	assert.Equal(t, 11.0, progress[1].Elapsed)

	ev := <-bus.Events()
	require.Equal(t, events.BoundaryDetected, ev.Type)
	b := ev.Payload.(events.Boundary)
	assert.Equal(t, 1, b.Index)
	assert.Equal(t, 5.0, b.Time)
	assert.Equal(t, res.RunID, b.RunID)
}

func TestDetectorNoFrames(t *testing.T) {
	d := NewDetector(zerolog.Nop(), DefaultConfig(), nil, nil)
	_, err := d.Detect(&memSource{})
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestDetectorAbortsOnSourceError(t *testing.T) {
	boom := errors.New("decoder died")
	src := lecture()
	src.err, src.errAt = boom, 7

	d := NewDetector(zerolog.Nop(), DefaultConfig(), nil, nil)
	res, err := d.Detect(src)
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, res.Boundaries.Len(), "no partial list")
}

func TestDefaultConfigValid(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.CannyHigh = 10
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.SampleInterval = 0 * time.Second
	assert.Error(t, cfg.Validate())
}
