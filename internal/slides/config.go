package slides

import (
	"errors"
	"time"
)

// Weights scale the three score components.
type Weights struct {
	Global    float64 `yaml:"global"`
	Edges     float64 `yaml:"edges"`
	Histogram float64 `yaml:"histogram"`
}

// WritingRule recognises localized, low-intensity change such as handwriting.
type WritingRule struct {
	MaxChangedArea   float64 `yaml:"max_changed_area"`
	MinConcentration float64 `yaml:"min_concentration"`
	MaxHistDiff      float64 `yaml:"max_hist_diff"`
	MaxMeanDiff      float64 `yaml:"max_mean_diff"`
	DampStep         float64 `yaml:"damp_step"`
	DampFloor        float64 `yaml:"damp_floor"`
}

// GradualRule halves the score when the last Samples window entries all
// changed by a small, steady amount.
type GradualRule struct {
	Samples     int     `yaml:"samples"`
	MinMeanDiff float64 `yaml:"min_mean_diff"`
	MaxMeanDiff float64 `yaml:"max_mean_diff"`
	Factor      float64 `yaml:"factor"`
}

// BoundaryRule decides whether a scored sample is a slide change.
type BoundaryRule struct {
	Score       float64 `yaml:"score"`
	Area        float64 `yaml:"area"`
	HistDiff    float64 `yaml:"hist_diff"`
	EdgeDiff    float64 `yaml:"edge_diff"`
	StrongScore float64 `yaml:"strong_score"`
}

// Config holds every detector tunable.
type Config struct {
	SampleInterval   time.Duration `yaml:"sample_interval"`
	MinSlideDuration time.Duration `yaml:"min_slide_duration"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	PixelThreshold   uint8         `yaml:"pixel_threshold"`
	HistogramBins    int           `yaml:"histogram_bins"`
	CannyLow         float64       `yaml:"canny_low"`
	CannyHigh        float64       `yaml:"canny_high"`
	WindowSize       int           `yaml:"window_size"`
	ProgressEvery    int           `yaml:"progress_every"`

	Weights  Weights      `yaml:"weights"`
	Writing  WritingRule  `yaml:"writing"`
	Gradual  GradualRule  `yaml:"gradual"`
	Boundary BoundaryRule `yaml:"boundary"`
}

// DefaultConfig returns the tuned defaults.
func DefaultConfig() Config {
	return Config{
		SampleInterval:   time.Second,
		MinSlideDuration: 2 * time.Second,
		Width:            320,
		Height:           240,
		PixelThreshold:   30,
		HistogramBins:    64,
		CannyLow:         50,
		CannyHigh:        150,
		WindowSize:       15,
		ProgressEvery:    10,
		Weights:          Weights{Global: 1.0, Edges: 1.3, Histogram: 1.2},
		Writing: WritingRule{
			MaxChangedArea:   0.15,
			MinConcentration: 0.6,
			MaxHistDiff:      30,
			MaxMeanDiff:      20,
			DampStep:         0.1,
			DampFloor:        0.3,
		},
		Gradual: GradualRule{
			Samples:     3,
			MinMeanDiff: 5,
			MaxMeanDiff: 25,
			Factor:      0.5,
		},
		Boundary: BoundaryRule{
			Score:       45,
			Area:        0.25,
			HistDiff:    60,
			EdgeDiff:    0.4,
			StrongScore: 80,
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch {
	case c.SampleInterval <= 0:
		return errors.New("detection: sample_interval must be positive")
	case c.MinSlideDuration < 0:
		return errors.New("detection: min_slide_duration must not be negative")
	case c.Width < 3 || c.Height < 3:
		return errors.New("detection: analysis size must be at least 3x3")
	case c.HistogramBins < 2 || c.HistogramBins > 256:
		return errors.New("detection: histogram_bins must be in [2, 256]")
	case c.CannyLow < 0 || c.CannyHigh < c.CannyLow:
		return errors.New("detection: canny thresholds must satisfy 0 <= low <= high")
	case c.WindowSize < c.Gradual.Samples:
		return errors.New("detection: window_size must hold the gradual-change samples")
	case c.Writing.DampFloor < 0 || c.Writing.DampFloor > 1:
		return errors.New("detection: writing damp_floor must be in [0, 1]")
	}
	return nil
}
