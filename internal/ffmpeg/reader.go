package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/pkg/util"
)

// ReaderOptions configures a raw frame pipe
type ReaderOptions struct {
	// Start is the input seek position in seconds
	Start float64
	// Rate is the output frame rate; frames are resampled to it
	Rate   float64
	Width  int
	Height int
	Pixel  PixelFormat
	// Optimized enables hardware decoding and the executor's thread count
	Optimized bool
}

// FrameReader decodes a video into raw frames over a pipe
type FrameReader struct {
	pipe  *Pipe
	opts  ReaderOptions
	buf   []byte
	index int
}

// OpenReader starts ffmpeg decoding path into fixed-size raw frames
func (e *Executor) OpenReader(ctx context.Context, path string, opts ReaderOptions) (*FrameReader, error) {
	if path == "" {
		return nil, fmt.Errorf("input path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("frame size %dx%d is invalid", opts.Width, opts.Height)
	}
	if opts.Rate <= 0 {
		return nil, fmt.Errorf("frame rate %.3f is invalid", opts.Rate)
	}
	if opts.Pixel == "" {
		opts.Pixel = PixelGray
	}

	p, err := e.Pipe(ctx, e.readerArgs(path, opts))
	if err != nil {
		return nil, err
	}

	return &FrameReader{
		pipe: p,
		opts: opts,
		buf:  make([]byte, opts.Width*opts.Height*opts.Pixel.bytesPerPixel()),
	}, nil
}

func (e *Executor) readerArgs(path string, opts ReaderOptions) []string {
	var args []string
	if opts.Optimized {
		args = append(args, "-hwaccel", "auto")
		if e.threads > 0 {
			args = append(args, "-threads", fmt.Sprintf("%d", e.threads))
		}
	}
	if opts.Start > 0 {
		args = append(args, "-ss", util.FormatSeconds(opts.Start))
	}

	vf := filterChain{}.
		fps(opts.Rate).
		scale(opts.Width, opts.Height).
		format(opts.Pixel).
		String()

	return append(args,
		"-i", path,
		"-an", "-sn",
		"-vf", vf,
		"-f", "rawvideo",
		"-pix_fmt", string(opts.Pixel),
		"pipe:1",
	)
}

// Next returns the next frame, or decode.ErrEndOfStream once ffmpeg has
// exited cleanly after a whole number of frames. A failed exit or a
// truncated last frame is an error.
func (r *FrameReader) Next() (decode.Frame, error) {
	n, err := io.ReadFull(r.pipe, r.buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		if werr := r.pipe.Wait(); werr != nil {
			return decode.Frame{}, fmt.Errorf("read frame %d: %w", r.index, werr)
		}
		return decode.Frame{}, decode.ErrEndOfStream
	case errors.Is(err, io.ErrUnexpectedEOF):
		if werr := r.pipe.Wait(); werr != nil {
			return decode.Frame{}, fmt.Errorf("read frame %d: %w", r.index, werr)
		}
		return decode.Frame{}, fmt.Errorf("read frame %d: truncated after %d of %d bytes", r.index, n, len(r.buf))
	default:
		return decode.Frame{}, fmt.Errorf("read frame %d: %w", r.index, err)
	}

	f := decode.Frame{
		Image:    rawImage(r.buf, r.opts.Width, r.opts.Height, r.opts.Pixel),
		PTS:      r.opts.Start + float64(r.index)/r.opts.Rate,
		Duration: time.Duration(float64(time.Second) / r.opts.Rate),
	}
	r.index++
	return f, nil
}

// Close stops ffmpeg
func (r *FrameReader) Close() error {
	return r.pipe.Close()
}

// rawImage copies one raw frame into a new image
func rawImage(buf []byte, w, h int, pix PixelFormat) image.Image {
	rect := image.Rect(0, 0, w, h)
	if pix == PixelRGBA {
		img := image.NewRGBA(rect)
		copy(img.Pix, buf[:w*h*4])
		return img
	}
	img := image.NewGray(rect)
	copy(img.Pix, buf[:w*h])
	return img
}
