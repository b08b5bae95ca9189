package ffmpeg

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/kikiluvv/slidesync/pkg/util"
)

// Thumbnail writes the frame at the given position (seconds) to output
func (e *Executor) Thumbnail(ctx context.Context, input, output string, at float64, width int) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}

	args := []string{
		"-ss", util.FormatSeconds(at),
		"-i", input,
		"-vframes", "1",
	}
	if width > 0 {
		args = append(args, "-vf", filterChain{}.scale(width, 0).String())
	}
	args = append(args, "-q:v", "2", output)

	return e.Run(ctx, RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Debug().Str("ffmpeg", line).Msg("thumbnail")
		},
	})
}

// SlideThumbnails writes one JPEG per slide start into dir and returns the
// file paths in slide order
func (e *Executor) SlideThumbnails(ctx context.Context, input, dir string, starts []float64, width int) ([]string, error) {
	if err := util.EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("create thumbnail dir: %w", err)
	}

	e.logger.Info().
		Str("input", input).
		Str("dir", dir).
		Int("slides", len(starts)).
		Msg("generating slide thumbnails")

	paths := make([]string, 0, len(starts))
	for i, start := range starts {
		out := filepath.Join(dir, fmt.Sprintf("slide_%03d.jpg", i+1))
		// a hair past the boundary so the new slide is already on screen
		if err := e.Thumbnail(ctx, input, out, start+0.5, width); err != nil {
			return paths, fmt.Errorf("thumbnail for slide %d: %w", i+1, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
