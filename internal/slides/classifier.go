package slides

import "math"

// FeatureWindow is a fixed-size rolling history of feature samples.
type FeatureWindow struct {
	buf  []Features
	next int
	full bool
}

// NewFeatureWindow returns a window holding size samples.
func NewFeatureWindow(size int) *FeatureWindow {
	if size < 1 {
		size = 1
	}
	return &FeatureWindow{buf: make([]Features, size)}
}

// Push adds f, evicting the oldest sample when full.
func (w *FeatureWindow) Push(f Features) {
	w.buf[w.next] = f
	w.next = (w.next + 1) % len(w.buf)
	if w.next == 0 {
		w.full = true
	}
}

// Len returns the number of samples held.
func (w *FeatureWindow) Len() int {
	if w.full {
		return len(w.buf)
	}
	return w.next
}

// Last returns up to n most recent samples, oldest first.
func (w *FeatureWindow) Last(n int) []Features {
	if n > w.Len() {
		n = w.Len()
	}
	out := make([]Features, n)
	for i := 0; i < n; i++ {
		idx := (w.next - n + i + len(w.buf)) % len(w.buf)
		out[i] = w.buf[idx]
	}
	return out
}

// Reset empties the window.
func (w *FeatureWindow) Reset() {
	w.next = 0
	w.full = false
}

// Decision is the classification of one sample.
type Decision struct {
	Features    Features
	WritingLike bool
	Gradual     bool
	// RawScore is the weighted score before any damping.
	RawScore float64
	Score    float64
	// Change is true when the sample looks like a slide change. The
	// minimum-separation gate is applied separately.
	Change bool
}

// Classifier scores samples and tracks the writing streak.
type Classifier struct {
	cfg    Config
	window *FeatureWindow
	streak int
}

// NewClassifier returns a classifier with an empty window.
func NewClassifier(cfg Config) *Classifier {
	return &Classifier{cfg: cfg, window: NewFeatureWindow(cfg.WindowSize)}
}

// IsWritingLike reports whether f looks like localized annotation.
func (c *Classifier) IsWritingLike(f Features) bool {
	r := c.cfg.Writing
	return f.ChangedAreaRatio < r.MaxChangedArea &&
		f.ChangeConcentration > r.MinConcentration &&
		f.HistDiff < r.MaxHistDiff &&
		f.MeanDiff < r.MaxMeanDiff
}

// RawScore is the weighted, undamped slide-change score.
func (c *Classifier) RawScore(f Features) float64 {
	w := c.cfg.Weights
	return w.Global*f.MeanDiff + w.Histogram*f.HistDiff + w.Edges*(f.EdgeDiffRatio*100)
}

// Streak returns the current consecutive-writing count.
func (c *Classifier) Streak() int { return c.streak }

// Classify scores f and updates the window and the writing streak.
func (c *Classifier) Classify(f Features) Decision {
	d := Decision{Features: f, RawScore: c.RawScore(f)}
	d.Score = d.RawScore

	d.WritingLike = c.IsWritingLike(f)
	if d.WritingLike {
		c.streak++
		d.Score *= math.Max(c.cfg.Writing.DampFloor, 1-c.cfg.Writing.DampStep*float64(c.streak))
	} else if c.streak > 0 {
		c.streak--
	}

	c.window.Push(f)
	d.Gradual = c.gradual()
	if d.Gradual {
		d.Score *= c.cfg.Gradual.Factor
	}

	b := c.cfg.Boundary
	d.Change = (d.Score > b.Score && f.ChangedAreaRatio > b.Area) ||
		f.HistDiff > b.HistDiff ||
		f.EdgeDiffRatio > b.EdgeDiff ||
		d.Score > b.StrongScore
	return d
}

func (c *Classifier) gradual() bool {
	g := c.cfg.Gradual
	if g.Samples <= 0 || c.window.Len() < g.Samples {
		return false
	}
	for _, f := range c.window.Last(g.Samples) {
		if f.MeanDiff <= g.MinMeanDiff || f.MeanDiff >= g.MaxMeanDiff {
			return false
		}
	}
	return true
}

// Accept records that the last sample became a boundary.
func (c *Classifier) Accept() { c.streak = 0 }

// Reset clears the window and the streak.
func (c *Classifier) Reset() {
	c.window.Reset()
	c.streak = 0
}
