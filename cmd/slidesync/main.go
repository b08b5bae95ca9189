package main

import (
	"context"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/slidesync/internal/config"
	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/ffmpeg"
	"github.com/kikiluvv/slidesync/internal/logging"
	"github.com/kikiluvv/slidesync/internal/pipeline"
	"github.com/kikiluvv/slidesync/internal/player"
	"github.com/kikiluvv/slidesync/pkg/util"
)

var (
	cfgFile string
	verbose bool
	logJSON bool

	detectFormat   string
	thumbnailDir   string
	thumbnailWidth int

	playDuration time.Duration
	playSeek     string
	playSlide    int
)

func main() {
	ctx := context.Background()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "slidesync",
	Short: "slidesync - lecture video sync and slide detection",
	Long:  "Plays lecture recordings with drift-corrected sync and splits them into slides by detecting visual scene changes.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Initialize logging
		logging.Init(logging.Options{Verbose: verbose, JSON: logJSON})

		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./slidesync.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write logs as JSON lines")

	detectCmd.Flags().StringVar(&detectFormat, "format", "text", "output format: text or yaml")
	detectCmd.Flags().StringVar(&thumbnailDir, "thumbnails", "", "write one JPEG per slide into this directory")
	detectCmd.Flags().IntVar(&thumbnailWidth, "thumbnail-width", 320, "thumbnail width in pixels")

	playCmd.Flags().DurationVar(&playDuration, "duration", 10*time.Second, "how long to play")
	playCmd.Flags().StringVar(&playSeek, "seek", "", "seek to this position after starting (SS, MM:SS or HH:MM:SS)")
	playCmd.Flags().IntVar(&playSlide, "slide", -1, "detect slides, then focus this slide (0-based)")

	rootCmd.AddCommand(probeCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(configCmd)
}

func newExecutor(cmd *cobra.Command) (*config.Config, *ffmpeg.Executor, error) {
	cfg := config.FromContext(cmd.Context())
	exe, err := ffmpeg.New(log.Logger, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, nil, err
	}
	return cfg, exe, nil
}

var probeCmd = &cobra.Command{
	Use:   "probe [video]",
	Short: "Print video metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, exe, err := newExecutor(cmd)
		if err != nil {
			return err
		}

		info, err := exe.ProbeVideo(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		meta := info.Metadata()

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "file:     %s\n", info.Path)
		fmt.Fprintf(out, "duration: %s (%.2fs)\n", util.FormatClock(meta.Duration), meta.Duration)
		fmt.Fprintf(out, "fps:      %.3f\n", meta.FPS)
		fmt.Fprintf(out, "size:     %dx%d\n", meta.Width, meta.Height)
		fmt.Fprintf(out, "frames:   %d\n", info.FrameCount)
		fmt.Fprintf(out, "codec:    %s\n", info.Codec)
		fmt.Fprintf(out, "audio:    %t\n", info.HasAudio)
		if info.Estimated() {
			fmt.Fprintln(out, "note:     duration or frame rate missing, fallback values shown")
		}
		return nil
	},
}

var detectCmd = &cobra.Command{
	Use:   "detect [video]",
	Short: "Detect slide boundaries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, exe, err := newExecutor(cmd)
		if err != nil {
			return err
		}

		pipe := pipeline.New(log.Logger, exe, cfg.Detection, nil)
		lecture, err := pipe.Analyze(cmd.Context(), args[0], pipeline.AnalyzeOptions{
			ThumbnailDir:   thumbnailDir,
			ThumbnailWidth: thumbnailWidth,
			Progress: func(done, total int) {
				log.Info().Int("processed", done).Int("total", total).Msg("detecting slides")
			},
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		switch detectFormat {
		case "yaml":
			data, err := yaml.Marshal(lecture)
			if err != nil {
				return err
			}
			_, err = out.Write(data)
			return err
		case "text":
			fmt.Fprintf(out, "%s: %d slides over %s\n", lecture.Name, len(lecture.Slides), util.FormatClock(lecture.Duration))
			for _, s := range lecture.Slides {
				fmt.Fprintf(out, "%3d  %8s - %-8s  %6.1fs\n", s.Index+1, util.FormatClock(s.Start), util.FormatClock(s.End), s.Duration)
			}
			return nil
		default:
			return fmt.Errorf("unknown format %q", detectFormat)
		}
	},
}

type countingSink struct {
	frames atomic.Int64
}

func (c *countingSink) Show(decode.Frame) { c.frames.Add(1) }

var playCmd = &cobra.Command{
	Use:   "play [video]",
	Short: "Play a video headless and report sync status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, exe, err := newExecutor(cmd)
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		bus := events.NewBus(cfg.Events.Buffer)
		sink := &countingSink{}
		opener := ffmpeg.NewOpener(log.Logger, exe, cfg.Opener())
		analyzer := pipeline.New(log.Logger, exe, cfg.Detection, bus)

		p := player.New(log.Logger, cfg.Player(), opener, analyzer, sink, bus)
		defer p.Close()

		if err := p.Open(ctx, args[0]); err != nil {
			return err
		}

		done := make(chan struct{})
		go logEvents(logging.WithComponent("events"), bus, done)
		defer close(done)

		if playSlide >= 0 {
			if _, err := p.DetectSlides(ctx); err != nil {
				return err
			}
		}
		if err := p.Play(ctx); err != nil {
			return err
		}

		switch {
		case playSlide >= 0:
			err = p.JumpToBoundary(playSlide)
		case playSeek != "":
			var at float64
			if at, err = util.ParseClock(playSeek); err == nil {
				err = p.Seek(at)
			}
		}
		if err != nil {
			return err
		}

		logger := logging.WithComponent("cli")
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		deadline := time.After(playDuration)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-deadline:
				st := p.Status()
				logger.Info().
					Int64("frames_shown", sink.frames.Load()).
					Uint64("frames_evicted", st.Pacer.Evicted).
					Int("corrections", st.Sync.Corrections).
					Int("hard_resets", st.Sync.HardResets).
					Int("skipped_frames", st.Sync.SkippedFrames).
					Uint64("events_dropped", bus.Dropped()).
					Msg("playback summary")
				return nil
			case <-ticker.C:
				logger.Info().Msg(p.Status().String())
			}
		}
	},
}

func logEvents(logger zerolog.Logger, bus *events.Bus, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case ev := <-bus.Events():
			switch pl := ev.Payload.(type) {
			case events.SyncStatus:
				logger.Debug().Str("tier", pl.Tier).Float64("offset_ms", pl.OffsetMs).Msg("sync status")
			case events.Seek:
				logger.Info().Float64("target", pl.Target).Float64("actual", pl.Actual).Bool("verified", pl.Verified).Msg("seek completed")
			case events.Stall:
				logger.Warn().Err(pl.LastErr).Int("consecutive", pl.ConsecutiveErrors).Msg("playback stalled")
			case events.Focus:
				logger.Info().Int("slide", pl.Index).Msg("focus changed")
			case events.Boundary:
				logger.Debug().Int("index", pl.Index).Float64("time", pl.Time).Msg("slide boundary")
			default:
				logger.Debug().Str("event", string(ev.Type)).Msg("event")
			}
		}
	}
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := yaml.Marshal(config.FromContext(cmd.Context()))
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration to a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Default().Save(args[0]); err != nil {
			return err
		}
		log.Info().Str("path", args[0]).Msg("wrote default config")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
}
