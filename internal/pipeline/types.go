package pipeline

import (
	"time"

	"github.com/kikiluvv/slidesync/internal/navigation"
)

// Lecture is the result of analyzing one recording
type Lecture struct {
	Name       string             `yaml:"name"`
	InputPath  string             `yaml:"input"`
	RunID      string             `yaml:"run_id"`
	Duration   float64            `yaml:"duration"`
	FPS        float64            `yaml:"fps"`
	Width      int                `yaml:"width"`
	Height     int                `yaml:"height"`
	Samples    int                `yaml:"samples"`
	Boundaries []float64          `yaml:"boundaries"`
	Slides     []navigation.Slide `yaml:"slides"`
	Thumbnails []string           `yaml:"thumbnails,omitempty"`
	CreatedAt  time.Time          `yaml:"created_at"`
}

// AnalyzeOptions configures analysis behavior
type AnalyzeOptions struct {
	// ThumbnailDir, when set, receives one JPEG per slide
	ThumbnailDir   string
	ThumbnailWidth int
	Progress       func(done, total int)
}
