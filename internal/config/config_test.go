package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := defaultConfig()
	require.NoError(t, cfg.Validate())

	sc := cfg.SyncControl()
	assert.Equal(t, 100*time.Millisecond, sc.Thresholds.Low)
	assert.Equal(t, 200*time.Millisecond, sc.Thresholds.Medium)
	assert.Equal(t, 500*time.Millisecond, sc.Thresholds.Hard)
	assert.Equal(t, 5, sc.MaxFailures)

	sk := cfg.SeekControl()
	assert.Equal(t, 30, sk.MaxAttempts)
	assert.Equal(t, 3, sk.RequiredSuccesses)
	assert.Equal(t, 2*time.Second, sk.Tolerance)

	assert.Equal(t, 2*time.Second, cfg.Detection.MinSlideDuration)

	pc := cfg.Player()
	assert.Equal(t, 3, pc.PacerCapacity)
	assert.Equal(t, 5*time.Millisecond, pc.MinFrameSleep)
	assert.Equal(t, 200*time.Millisecond, pc.MaxFrameSleep)
	assert.Equal(t, 3, pc.StallAfter)
	assert.Equal(t, sc, pc.Sync)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "slidesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
sync:
  interval: 50ms
  max_failures: 3
detection:
  min_slide_duration: 1s
  weights:
    histogram: 2
`), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 50*time.Millisecond, cfg.Sync.Interval)
	assert.Equal(t, 3, cfg.Sync.MaxFailures)
	assert.Equal(t, time.Second, cfg.Detection.MinSlideDuration)
	assert.Equal(t, 2.0, cfg.Detection.Weights.Histogram)
	assert.Equal(t, 1.3, cfg.Detection.Weights.Edges, "untouched keys keep defaults")
	assert.Equal(t, 500*time.Millisecond, cfg.Sync.HardThreshold)
}

func TestLoadRejectsBadThresholds(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  medium_threshold: 1s\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := defaultConfig()
	cfg.Pacer.Capacity = 2

	require.NoError(t, cfg.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestEnvOverrides(t *testing.T) {
	env := map[string]string{
		"SLIDESYNC_SYNC_INTERVAL":       "250ms",
		"SLIDESYNC_FFMPEG_THREADS":      "6",
		"SLIDESYNC_FFMPEG_PIXEL_FORMAT": "gray",
		"SLIDESYNC_SEEK_MAX_ATTEMPTS":   "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := defaultConfig()
	require.NoError(t, cfg.applyEnv(lookup))
	assert.Equal(t, 250*time.Millisecond, cfg.Sync.Interval)
	assert.Equal(t, 6, cfg.FFmpeg.Threads)
	assert.Equal(t, "gray", cfg.FFmpeg.Pixel)
	assert.Equal(t, 30, cfg.Seek.MaxAttempts, "empty values are ignored")

	env["SLIDESYNC_PACER_CAPACITY"] = "three"
	assert.Error(t, defaultConfig().applyEnv(lookup))
}

func TestFromContextFallsBackToDefaults(t *testing.T) {
	assert.Equal(t, defaultConfig(), FromContext(context.Background()))

	cfg := defaultConfig()
	cfg.Events.Buffer = 7
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
