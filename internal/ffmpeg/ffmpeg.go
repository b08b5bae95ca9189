package ffmpeg

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Executor runs ffmpeg and ffprobe binaries
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
}

// New looks up ffmpeg and ffprobe, preferring copies bundled in assets/
// next to the executable over PATH
func New(logger zerolog.Logger, threads int) (*Executor, error) {
	ffmpegPath, err := locate("ffmpeg")
	if err != nil {
		return nil, err
	}

	ffprobePath, err := locate("ffprobe")
	if err != nil {
		return nil, err
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     threads,
	}, nil
}

// Run executes ffmpeg to completion. Output lines go to opts.LogHandler and
// the last one is folded into the error on failure.
func (e *Executor) Run(ctx context.Context, opts RunOptions) error {
	if len(opts.Args) == 0 {
		return fmt.Errorf("no arguments provided")
	}

	args := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}
	args = append(args, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	var last string
	scanLines(stderr, func(line string) {
		last = line
		if opts.LogHandler != nil {
			opts.LogHandler(line)
		}
	})

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if last != "" {
			return fmt.Errorf("ffmpeg failed: %s: %w", last, err)
		}
		return fmt.Errorf("ffmpeg failed: %w", err)
	}
	return nil
}

// Pipe is a running ffmpeg process whose stdout carries raw media data
type Pipe struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	logs   sync.WaitGroup
	last   string // last stderr line, read only after logs.Wait
	closed atomic.Bool

	once sync.Once
	err  error
}

// Pipe starts ffmpeg with output on stdout. Stderr lines go to the debug log.
// The process is killed when ctx is cancelled or Close is called.
func (e *Executor) Pipe(ctx context.Context, args []string) (*Pipe, error) {
	ctx, cancel := context.WithCancel(ctx)

	full := append([]string{"-hide_banner", "-nostdin", "-loglevel", "error"}, args...)
	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", full).
		Msg("starting ffmpeg pipe")

	cmd := exec.CommandContext(ctx, e.ffmpegPath, full...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	p := &Pipe{cmd: cmd, stdout: stdout, ctx: ctx, cancel: cancel}
	p.logs.Add(1)
	go func() {
		defer p.logs.Done()
		scanLines(stderr, func(line string) {
			p.last = line
			e.logger.Debug().Str("ffmpeg", line).Msg("decoder output")
		})
	}()
	return p, nil
}

// Read reads raw output from ffmpeg's stdout
func (p *Pipe) Read(b []byte) (int, error) {
	return p.stdout.Read(b)
}

// Wait waits for ffmpeg to exit after its output is drained. A non-zero
// exit is an error carrying the last stderr line, unless the process was
// killed by Close.
func (p *Pipe) Wait() error {
	p.once.Do(func() {
		p.logs.Wait()
		err := p.cmd.Wait()
		switch {
		case err == nil || p.closed.Load():
		case p.ctx.Err() != nil:
			p.err = p.ctx.Err()
		case p.last != "":
			p.err = fmt.Errorf("ffmpeg failed: %s: %w", p.last, err)
		default:
			p.err = fmt.Errorf("ffmpeg failed: %w", err)
		}
		p.cancel()
	})
	return p.err
}

// Close kills the process if it is still running and waits for it. It
// returns the exit error only when ffmpeg had already failed on its own.
func (p *Pipe) Close() error {
	p.closed.Store(true)
	p.cancel()
	return p.Wait()
}

// scanLines calls fn for each non-empty line of r until EOF.
func scanLines(r io.Reader, fn func(string)) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			fn(line)
		}
	}
}
