package slides

import (
	"image"
)

// Features summarises how a sampled frame differs from the previous one.
type Features struct {
	Time float64
	// MeanDiff is the mean absolute pixel difference, 0..255.
	MeanDiff float64
	// HistDiff is (1 - histogram correlation) * 100.
	HistDiff float64
	// ChangedAreaRatio is the fraction of pixels that changed by more than
	// the pixel threshold.
	ChangedAreaRatio float64
	// ChangeConcentration is the share of changed pixels in the largest
	// connected changed region, 0 when nothing changed.
	ChangeConcentration float64
	// EdgeDiffRatio is |edges - prevEdges| / (prevEdges + 1).
	EdgeDiffRatio float64
}

// Extractor turns successive frames into Features. It keeps the previous
// frame's grayscale image, histogram and edge count.
type Extractor struct {
	cfg Config

	prev      *image.Gray
	prevHist  []float64
	prevEdges int
}

// NewExtractor returns an extractor with no previous frame.
func NewExtractor(cfg Config) *Extractor {
	return &Extractor{cfg: cfg}
}

// Extract computes the features of img against the previous frame. The
// first frame only primes the extractor and ok is false.
func (e *Extractor) Extract(t float64, img image.Image) (f Features, ok bool) {
	gray := prepare(img, e.cfg.Width, e.cfg.Height)
	hist := histogram(gray, e.cfg.HistogramBins)
	edges := edgeCount(gray, e.cfg.CannyLow, e.cfg.CannyHigh)

	defer func() {
		e.prev = gray
		e.prevHist = hist
		e.prevEdges = edges
	}()

	if e.prev == nil {
		return Features{}, false
	}

	mean, mask, changed := diffStats(e.prev, gray, e.cfg.PixelThreshold)
	total := gray.Rect.Dx() * gray.Rect.Dy()

	f = Features{
		Time:          t,
		MeanDiff:      mean,
		HistDiff:      (1 - correlation(e.prevHist, hist)) * 100,
		EdgeDiffRatio: absf(float64(edges-e.prevEdges)) / float64(e.prevEdges+1),
	}
	if total > 0 {
		f.ChangedAreaRatio = float64(changed) / float64(total)
	}
	if changed > 0 {
		f.ChangeConcentration = float64(largestRegion(mask, gray.Rect.Dx(), gray.Rect.Dy())) / float64(changed)
	}
	return f, true
}

// Reset forgets the previous frame.
func (e *Extractor) Reset() {
	e.prev = nil
	e.prevHist = nil
	e.prevEdges = 0
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
