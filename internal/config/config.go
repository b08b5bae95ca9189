package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/slidesync/internal/ffmpeg"
	"github.com/kikiluvv/slidesync/internal/player"
	"github.com/kikiluvv/slidesync/internal/seek"
	"github.com/kikiluvv/slidesync/internal/slides"
	"github.com/kikiluvv/slidesync/internal/syncctl"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix prefixes every environment override
const EnvPrefix = "SLIDESYNC_"

// Config holds all application configuration
type Config struct {
	Sync      SyncConfig     `yaml:"sync"`
	Seek      SeekConfig     `yaml:"seek"`
	Pacer     PacerConfig    `yaml:"pacer"`
	Playback  PlaybackConfig `yaml:"playback"`
	Detection slides.Config  `yaml:"detection"`
	FFmpeg    FFmpegConfig   `yaml:"ffmpeg"`
	Events    EventsConfig   `yaml:"events"`
}

type SyncConfig struct {
	LowThreshold    time.Duration `yaml:"low_threshold"`
	MediumThreshold time.Duration `yaml:"medium_threshold"`
	HardThreshold   time.Duration `yaml:"hard_threshold"`
	MaxFailures     int           `yaml:"max_failures"`
	CatchUpLag      time.Duration `yaml:"catch_up_lag"`
	MaxSkipFrames   int           `yaml:"max_skip_frames"`
	SoftGain        float64       `yaml:"soft_gain"`
	MicroGain       float64       `yaml:"micro_gain"`
	Interval        time.Duration `yaml:"interval"`
	HistorySize     int           `yaml:"history_size"`
}

type SeekConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	RequiredSuccesses int           `yaml:"required_successes"`
	Tolerance         time.Duration `yaml:"tolerance"`
	AttemptDelay      time.Duration `yaml:"attempt_delay"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
}

type PacerConfig struct {
	Capacity    int           `yaml:"capacity"`
	PullTimeout time.Duration `yaml:"pull_timeout"`
}

type PlaybackConfig struct {
	MinFrameSleep time.Duration `yaml:"min_frame_sleep"`
	MaxFrameSleep time.Duration `yaml:"max_frame_sleep"`
	IdleSleep     time.Duration `yaml:"idle_sleep"`
	StallAfter    int           `yaml:"stall_after"`
}

type FFmpegConfig struct {
	Threads      int           `yaml:"threads"`
	Width        int           `yaml:"width"`
	Height       int           `yaml:"height"`
	Pixel        string        `yaml:"pixel_format"`
	Buffer       int           `yaml:"buffer"`
	PrimeTimeout time.Duration `yaml:"prime_timeout"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads configuration from file or returns defaults, then applies
// environment overrides. A .env file in the working directory is loaded
// first if present.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, err
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	sc := syncctl.DefaultConfig()
	sk := seek.DefaultConfig()
	return &Config{
		Sync: SyncConfig{
			LowThreshold:    sc.Thresholds.Low,
			MediumThreshold: sc.Thresholds.Medium,
			HardThreshold:   sc.Thresholds.Hard,
			MaxFailures:     sc.MaxFailures,
			CatchUpLag:      sc.CatchUpLag,
			MaxSkipFrames:   sc.MaxSkipFrames,
			SoftGain:        sc.SoftGain,
			MicroGain:       sc.MicroGain,
			Interval:        sc.Interval,
			HistorySize:     sc.HistorySize,
		},
		Seek: SeekConfig{
			MaxAttempts:       sk.MaxAttempts,
			RequiredSuccesses: sk.RequiredSuccesses,
			Tolerance:         sk.Tolerance,
			AttemptDelay:      sk.AttemptDelay,
			SettleDelay:       sk.SettleDelay,
		},
		Pacer: PacerConfig{
			Capacity:    3,
			PullTimeout: 200 * time.Millisecond,
		},
		Playback: PlaybackConfig{
			MinFrameSleep: 5 * time.Millisecond,
			MaxFrameSleep: 200 * time.Millisecond,
			IdleSleep:     10 * time.Millisecond,
			StallAfter:    3,
		},
		Detection: slides.DefaultConfig(),
		FFmpeg: FFmpegConfig{
			Threads:      0,
			Width:        0,
			Pixel:        string(ffmpeg.PixelRGBA),
			Buffer:       8,
			PrimeTimeout: 5 * time.Second,
		},
		Events: EventsConfig{
			Buffer: 64,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./slidesync.yaml",
		"./config.yaml",
		filepath.Join(os.Getenv("HOME"), ".slidesync", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// Validate checks ranges and threshold ordering
func (c *Config) Validate() error {
	if err := c.SyncControl().Thresholds.Validate(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	switch {
	case c.Sync.MaxFailures < 1:
		return errors.New("sync: max_failures must be at least 1")
	case c.Sync.Interval <= 0:
		return errors.New("sync: interval must be positive")
	case c.Sync.HistorySize < 15 || c.Sync.HistorySize > 50:
		return errors.New("sync: history_size must be in [15, 50]")
	case c.Seek.MaxAttempts < 1 || c.Seek.RequiredSuccesses < 1:
		return errors.New("seek: max_attempts and required_successes must be at least 1")
	case c.Seek.RequiredSuccesses > c.Seek.MaxAttempts:
		return errors.New("seek: required_successes exceeds max_attempts")
	case c.Pacer.Capacity < 2 || c.Pacer.Capacity > 3:
		return errors.New("pacer: capacity must be 2 or 3")
	case c.Playback.MinFrameSleep > c.Playback.MaxFrameSleep:
		return errors.New("playback: min_frame_sleep exceeds max_frame_sleep")
	case c.FFmpeg.Pixel != string(ffmpeg.PixelGray) && c.FFmpeg.Pixel != string(ffmpeg.PixelRGBA):
		return fmt.Errorf("ffmpeg: unsupported pixel_format %q", c.FFmpeg.Pixel)
	}
	return c.Detection.Validate()
}

// SyncControl maps the sync section onto the monitor configuration
func (c *Config) SyncControl() syncctl.Config {
	return syncctl.Config{
		Thresholds: syncctl.Thresholds{
			Low:    c.Sync.LowThreshold,
			Medium: c.Sync.MediumThreshold,
			Hard:   c.Sync.HardThreshold,
		},
		MaxFailures:   c.Sync.MaxFailures,
		CatchUpLag:    c.Sync.CatchUpLag,
		MaxSkipFrames: c.Sync.MaxSkipFrames,
		SoftGain:      c.Sync.SoftGain,
		MicroGain:     c.Sync.MicroGain,
		Interval:      c.Sync.Interval,
		HistorySize:   c.Sync.HistorySize,
	}
}

// SeekControl maps the seek section onto the coordinator configuration
func (c *Config) SeekControl() seek.Config {
	return seek.Config{
		MaxAttempts:       c.Seek.MaxAttempts,
		RequiredSuccesses: c.Seek.RequiredSuccesses,
		Tolerance:         c.Seek.Tolerance,
		AttemptDelay:      c.Seek.AttemptDelay,
		SettleDelay:       c.Seek.SettleDelay,
	}
}

// Opener maps the ffmpeg section onto the session opener configuration
func (c *Config) Opener() ffmpeg.OpenerConfig {
	return ffmpeg.OpenerConfig{
		Width:        c.FFmpeg.Width,
		Height:       c.FFmpeg.Height,
		Pixel:        ffmpeg.PixelFormat(c.FFmpeg.Pixel),
		Buffer:       c.FFmpeg.Buffer,
		PrimeTimeout: c.FFmpeg.PrimeTimeout,
	}
}

// Player maps the sync, seek, pacer and playback sections onto the player
// configuration
func (c *Config) Player() player.Config {
	return player.Config{
		Sync:          c.SyncControl(),
		Seek:          c.SeekControl(),
		PacerCapacity: c.Pacer.Capacity,
		PullTimeout:   c.Pacer.PullTimeout,
		MinFrameSleep: c.Playback.MinFrameSleep,
		MaxFrameSleep: c.Playback.MaxFrameSleep,
		IdleSleep:     c.Playback.IdleSleep,
		StallAfter:    c.Playback.StallAfter,
	}
}

// applyEnv overrides individual settings from SLIDESYNC_* variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	durations := map[string]*time.Duration{
		"SYNC_INTERVAL":                &c.Sync.Interval,
		"SYNC_LOW_THRESHOLD":           &c.Sync.LowThreshold,
		"SYNC_MEDIUM_THRESHOLD":        &c.Sync.MediumThreshold,
		"SYNC_HARD_THRESHOLD":          &c.Sync.HardThreshold,
		"SEEK_TOLERANCE":               &c.Seek.Tolerance,
		"DETECTION_SAMPLE_INTERVAL":    &c.Detection.SampleInterval,
		"DETECTION_MIN_SLIDE_DURATION": &c.Detection.MinSlideDuration,
	}
	ints := map[string]*int{
		"SYNC_MAX_FAILURES":    &c.Sync.MaxFailures,
		"SEEK_MAX_ATTEMPTS":    &c.Seek.MaxAttempts,
		"PACER_CAPACITY":       &c.Pacer.Capacity,
		"FFMPEG_THREADS":       &c.FFmpeg.Threads,
		"FFMPEG_WIDTH":         &c.FFmpeg.Width,
		"EVENTS_BUFFER":        &c.Events.Buffer,
		"PLAYBACK_STALL_AFTER": &c.Playback.StallAfter,
	}

	for key, dst := range durations {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = d
	}
	for key, dst := range ints {
		v, ok := lookup(EnvPrefix + key)
		if !ok || v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}
	if v, ok := lookup(EnvPrefix + "FFMPEG_PIXEL_FORMAT"); ok && v != "" {
		c.FFmpeg.Pixel = v
	}
	return nil
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
