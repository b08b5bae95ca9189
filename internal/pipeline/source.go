package pipeline

import (
	"errors"
	"io"
	"math"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/slides"
)

type frameReader interface {
	Next() (decode.Frame, error)
	Close() error
}

// sampleSource adapts a frame reader to the detector's Source
type sampleSource struct {
	r        frameReader
	total    int
	duration float64
}

func newSampleSource(r frameReader, duration float64, interval float64) *sampleSource {
	total := 0
	if duration > 0 && interval > 0 {
		total = int(math.Ceil(duration / interval))
	}
	return &sampleSource{r: r, total: total, duration: duration}
}

func (s *sampleSource) Next() (slides.Sample, error) {
	f, err := s.r.Next()
	if errors.Is(err, decode.ErrEndOfStream) {
		return slides.Sample{}, io.EOF
	}
	if err != nil {
		return slides.Sample{}, err
	}
	return slides.Sample{Time: f.PTS, Image: f.Image}, nil
}

func (s *sampleSource) Total() int        { return s.total }
func (s *sampleSource) Duration() float64 { return s.duration }
