package ffmpeg

import (
	"time"

	"github.com/kikiluvv/slidesync/internal/decode"
)

// Fallbacks used when a container does not report duration or frame rate.
const (
	FallbackDuration = 600 * time.Second
	FallbackFPS      = 25.0
	MaxPlausibleFPS  = 120.0
)

// VideoInfo is what ffprobe reports for the first video stream
type VideoInfo struct {
	Path string
	// Meta is zero where the container is silent
	Meta       decode.Metadata
	FrameCount int64
	Codec      string
	HasAudio   bool
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args       []string
	LogHandler func(line string)
}

// PixelFormat selects the raw frame layout produced by a FrameReader.
type PixelFormat string

const (
	PixelGray PixelFormat = "gray"
	PixelRGBA PixelFormat = "rgba"
)

// bytesPerPixel returns the size of one pixel for the format.
func (f PixelFormat) bytesPerPixel() int {
	if f == PixelRGBA {
		return 4
	}
	return 1
}
