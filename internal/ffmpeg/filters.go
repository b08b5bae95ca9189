package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
)

// filterChain accumulates -vf stages in order. A stage given a zero or
// negative argument is left out, so option structs can pass through unset
// fields.
type filterChain []string

// fps resamples to rate frames per second. Rates below one are valid:
// 0.5 keeps a frame every two seconds.
func (c filterChain) fps(rate float64) filterChain {
	if rate <= 0 {
		return c
	}
	return append(c, "fps="+strconv.FormatFloat(rate, 'f', -1, 64))
}

// scale resizes to width x height. With height 0 the aspect ratio is kept
// and the height rounded to an even number.
func (c filterChain) scale(width, height int) filterChain {
	switch {
	case width <= 0 || height < 0:
		return c
	case height == 0:
		return append(c, fmt.Sprintf("scale=%d:-2", width))
	}
	return append(c, fmt.Sprintf("scale=%d:%d", width, height))
}

func (c filterChain) format(pix PixelFormat) filterChain {
	if pix == "" {
		return c
	}
	return append(c, "format="+string(pix))
}

func (c filterChain) String() string {
	return strings.Join(c, ",")
}
