package player

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/decode/decodetest"
	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/logging"
	"github.com/kikiluvv/slidesync/internal/seek"
	"github.com/kikiluvv/slidesync/internal/slides"
)

var testMeta = decode.Metadata{Duration: 10, FPS: 25, Width: 320, Height: 240}

type frameCounter struct{ n atomic.Int64 }

func (c *frameCounter) Show(decode.Frame) { c.n.Add(1) }

type analyzerFunc func(ctx context.Context, path string, progress func(slides.Progress)) (slides.Result, error)

func (f analyzerFunc) Detect(ctx context.Context, path string, progress func(slides.Progress)) (slides.Result, error) {
	return f(ctx, path, progress)
}

func fixedBoundaries(t *testing.T, times ...float64) Analyzer {
	t.Helper()
	b, err := slides.NewBoundaryList(times, 0.1)
	require.NoError(t, err)
	return analyzerFunc(func(context.Context, string, func(slides.Progress)) (slides.Result, error) {
		return slides.Result{RunID: "run-1", Boundaries: b, Samples: 10}, nil
	})
}

func ramp(from, to float64) []float64 {
	var pts []float64
	for p := from; p < to; p += 0.04 {
		pts = append(pts, p)
	}
	return pts
}

// rampOpener hands out sessions that replay a ramp of frames and, after a
// seek, restart the ramp at the seek target.
func rampOpener(meta decode.Metadata, pts ...float64) *decodetest.Opener {
	return &decodetest.Opener{New: func(decode.Options) *decodetest.Session {
		s := decodetest.NewSession(meta, pts...)
		s.OnSeek = func(target float64) []decode.Frame {
			return decodetest.FramesAt(ramp(target, target+1)...)
		}
		return s
	}}
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Seek.SettleDelay = 0
	cfg.Seek.AttemptDelay = time.Millisecond
	cfg.Seek.MaxAttempts = 5
	cfg.Seek.RequiredSuccesses = 1
	cfg.Sync.Interval = 10 * time.Millisecond
	cfg.MinFrameSleep = time.Millisecond
	return cfg
}

func newTestPlayer(t *testing.T, opener decode.Opener, analyzer Analyzer) (*Player, *events.Bus, *frameCounter) {
	t.Helper()
	bus := events.NewBus(1024)
	sink := &frameCounter{}
	p := New(logging.Nop(), testConfig(), opener, analyzer, sink, bus)
	t.Cleanup(func() { _ = p.Close() })
	return p, bus, sink
}

func waitFor(t *testing.T, bus *events.Bus, match func(events.Event) bool) events.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev := <-bus.Events():
			if match(ev) {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for event")
			return events.Event{}
		}
	}
}

func ofType(typ events.Type) func(events.Event) bool {
	return func(ev events.Event) bool { return ev.Type == typ }
}

func TestControlsRequireVideo(t *testing.T) {
	p, _, _ := newTestPlayer(t, rampOpener(testMeta), nil)

	assert.ErrorIs(t, p.Play(context.Background()), ErrNoVideo)
	assert.ErrorIs(t, p.Pause(), ErrNoVideo)
	assert.ErrorIs(t, p.Stop(), ErrNoVideo)
	assert.ErrorIs(t, p.Seek(3), ErrNoVideo)
	assert.ErrorIs(t, p.JumpToBoundary(0), ErrNoVideo)
	assert.ErrorIs(t, p.ResyncNow(), ErrNoVideo)
}

func TestOpenFallsBackToDefaultDecoder(t *testing.T) {
	opener := rampOpener(testMeta, 0, 0.04)
	opener.FailFirst = 1
	p, _, _ := newTestPlayer(t, opener, nil)

	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	opens := opener.Opens()
	require.Len(t, opens, 2)
	assert.True(t, opens[0].Optimized)
	assert.False(t, opens[1].Optimized)
	assert.Equal(t, Paused, p.State())
	assert.Equal(t, 0.0, p.Position())
	assert.Equal(t, []float64{0}, p.Boundaries().Times())
}

func TestOpenFailsWhenBothDecodersFail(t *testing.T) {
	opener := rampOpener(testMeta)
	opener.FailFirst = 2
	p, _, _ := newTestPlayer(t, opener, nil)

	err := p.Open(context.Background(), "broken.mp4")
	require.Error(t, err)
	assert.Len(t, opener.Opens(), 2)
	assert.ErrorIs(t, p.Play(context.Background()), ErrNoVideo)
}

func TestOpenAppliesMetadataFallbacks(t *testing.T) {
	p, _, _ := newTestPlayer(t, rampOpener(decode.Metadata{FPS: 500}), nil)

	require.NoError(t, p.Open(context.Background(), "odd.mkv"))
	meta := p.Metadata()
	assert.Equal(t, 600.0, meta.Duration)
	assert.Equal(t, 25.0, meta.FPS)
}

func TestPlayRunsToEndOfStream(t *testing.T) {
	opener := rampOpener(testMeta, ramp(0, 0.2)...)
	p, bus, sink := newTestPlayer(t, opener, nil)
	require.NoError(t, p.Open(context.Background(), "short.mp4"))

	require.NoError(t, p.Play(context.Background()))
	waitFor(t, bus, ofType(events.PlaybackFinished))

	assert.Equal(t, Stopped, p.State())
	assert.Equal(t, 0.0, p.Position())
	assert.True(t, opener.Sessions()[0].Closed())
	assert.Eventually(t, func() bool { return sink.n.Load() > 0 }, time.Second, 10*time.Millisecond)
}

func TestPauseFreezesPosition(t *testing.T) {
	p, _, _ := newTestPlayer(t, rampOpener(testMeta, ramp(0, 10)...), nil)
	require.NoError(t, p.Open(context.Background(), "long.mp4"))

	require.NoError(t, p.Play(context.Background()))
	time.Sleep(120 * time.Millisecond)
	require.NoError(t, p.Pause())

	pos := p.Position()
	assert.Positive(t, pos)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, pos, p.Position())
	assert.Equal(t, Paused, p.State())
}

func TestStallReportedAfterConsecutiveFailures(t *testing.T) {
	opener := rampOpener(testMeta, ramp(0, 2)...)
	p, bus, _ := newTestPlayer(t, opener, nil)
	require.NoError(t, p.Open(context.Background(), "flaky.mp4"))

	boom := errors.New("decoder hiccup")
	opener.Sessions()[0].FailPulls(boom, boom, boom)
	require.NoError(t, p.Play(context.Background()))

	ev := waitFor(t, bus, ofType(events.PlaybackStalled))
	stall := ev.Payload.(events.Stall)
	assert.Equal(t, 3, stall.ConsecutiveErrors)
	assert.ErrorIs(t, stall.LastErr, boom)
}

func TestJumpToBoundaryFocusesAndClampsSeeks(t *testing.T) {
	opener := rampOpener(testMeta, ramp(0, 1)...)
	p, bus, _ := newTestPlayer(t, opener, fixedBoundaries(t, 0, 4, 7))
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	_, err := p.DetectSlides(context.Background())
	require.NoError(t, err)
	require.Len(t, p.Slides(), 3)

	require.NoError(t, p.JumpToBoundary(1))
	ev := waitFor(t, bus, ofType(events.SeekCompleted))
	assert.Equal(t, 4.0, ev.Payload.(events.Seek).Target)
	assert.False(t, ev.Payload.(events.Seek).Resumed)
	assert.InDelta(t, 4.0, p.Position(), 0.5)

	focused, ok := p.Focused()
	require.True(t, ok)
	assert.Equal(t, 1, focused.Index)

	require.NoError(t, p.Seek(9))
	ev = waitFor(t, bus, ofType(events.SeekCompleted))
	target := ev.Payload.(events.Seek).Target
	assert.InDelta(t, 7.0-1.0/testMeta.FPS, target, 1e-9)
	assert.True(t, focused.Contains(target))
	focused, ok = p.Focused()
	require.True(t, ok)
	assert.Equal(t, 1, focused.Index)

	assert.True(t, p.ReleaseFocus())
	assert.False(t, p.ReleaseFocus())
	require.NoError(t, p.Seek(9))
	ev = waitFor(t, bus, ofType(events.SeekCompleted))
	assert.Equal(t, 9.0, ev.Payload.(events.Seek).Target)
}

func TestRejectedJumpKeepsFocus(t *testing.T) {
	hold := make(chan struct{})
	var release sync.Once
	var opens atomic.Int32
	opener := &decodetest.Opener{New: func(decode.Options) *decodetest.Session {
		if opens.Add(1) == 3 {
			<-hold
		}
		s := decodetest.NewSession(testMeta, ramp(0, 1)...)
		s.OnSeek = func(target float64) []decode.Frame {
			return decodetest.FramesAt(ramp(target, target+1)...)
		}
		return s
	}}
	p, bus, _ := newTestPlayer(t, opener, fixedBoundaries(t, 0, 4, 7))
	t.Cleanup(func() { release.Do(func() { close(hold) }) })

	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))
	_, err := p.DetectSlides(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.JumpToBoundary(1))
	waitFor(t, bus, ofType(events.SeekCompleted))

	// the next reopen blocks inside the seek worker
	require.NoError(t, p.Seek(5))
	require.Eventually(t, func() bool { return opens.Load() == 3 }, time.Second, time.Millisecond)

	assert.ErrorIs(t, p.JumpToBoundary(2), seek.ErrSeekInFlight)
	focused, ok := p.Focused()
	require.True(t, ok)
	assert.Equal(t, 1, focused.Index)

	release.Do(func() { close(hold) })
	ev := waitFor(t, bus, ofType(events.SeekCompleted))
	assert.Equal(t, 5.0, ev.Payload.(events.Seek).Target)
}

func TestJumpToBoundaryOutOfRange(t *testing.T) {
	p, _, _ := newTestPlayer(t, rampOpener(testMeta), fixedBoundaries(t, 0, 4))
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	assert.Error(t, p.JumpToBoundary(5))
	_, ok := p.Focused()
	assert.False(t, ok)
}

func TestFocusAdvancesDuringPlayback(t *testing.T) {
	opener := rampOpener(testMeta, ramp(0, 1)...)
	p, bus, _ := newTestPlayer(t, opener, fixedBoundaries(t, 0, 0.2))
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))
	_, err := p.DetectSlides(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.JumpToBoundary(0))
	waitFor(t, bus, ofType(events.SeekCompleted))
	require.NoError(t, p.Play(context.Background()))

	ev := waitFor(t, bus, func(ev events.Event) bool {
		f, ok := ev.Payload.(events.Focus)
		return ev.Type == events.FocusChanged && ok && f.Index == 1
	})
	assert.Equal(t, 0.2, ev.Payload.(events.Focus).Start)
}

func TestDetectSlidesKeepsBoundariesOnFailure(t *testing.T) {
	good, err := slides.NewBoundaryList([]float64{0, 3}, 1)
	require.NoError(t, err)

	var calls atomic.Int32
	analyzer := analyzerFunc(func(context.Context, string, func(slides.Progress)) (slides.Result, error) {
		if calls.Add(1) == 1 {
			return slides.Result{RunID: "ok", Boundaries: good}, nil
		}
		return slides.Result{RunID: "bad"}, errors.New("pipe closed")
	})
	p, bus, _ := newTestPlayer(t, rampOpener(testMeta), analyzer)
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	_, err = p.DetectSlides(context.Background())
	require.NoError(t, err)
	finished := waitFor(t, bus, ofType(events.DetectionFinished))
	assert.Equal(t, []float64{0, 3}, finished.Payload.(events.DetectionResult).Boundaries)

	_, err = p.DetectSlides(context.Background())
	require.Error(t, err)
	failed := waitFor(t, bus, ofType(events.DetectionFailed))
	assert.Equal(t, "bad", failed.Payload.(events.DetectionResult).RunID)
	assert.Equal(t, []float64{0, 3}, p.Boundaries().Times())
}

func TestDetectSlidesRejectsConcurrentRun(t *testing.T) {
	release := make(chan struct{})
	analyzer := analyzerFunc(func(context.Context, string, func(slides.Progress)) (slides.Result, error) {
		<-release
		b, _ := slides.NewBoundaryList(nil, 0)
		return slides.Result{Boundaries: b}, nil
	})
	p, bus, _ := newTestPlayer(t, rampOpener(testMeta), analyzer)
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	require.NoError(t, p.StartDetection(context.Background()))
	assert.True(t, p.Detecting())

	_, err := p.DetectSlides(context.Background())
	assert.ErrorIs(t, err, ErrDetectionRunning)

	close(release)
	waitFor(t, bus, ofType(events.DetectionFinished))
	assert.Eventually(t, func() bool { return !p.Detecting() }, time.Second, 5*time.Millisecond)
}

func TestDetectionIgnoresCancellation(t *testing.T) {
	var sawCancel atomic.Bool
	analyzer := analyzerFunc(func(ctx context.Context, _ string, _ func(slides.Progress)) (slides.Result, error) {
		sawCancel.Store(ctx.Err() != nil)
		b, _ := slides.NewBoundaryList([]float64{0, 5}, 1)
		return slides.Result{Boundaries: b}, nil
	})
	p, _, _ := newTestPlayer(t, rampOpener(testMeta), analyzer)
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.DetectSlides(ctx)
	require.NoError(t, err)
	assert.False(t, sawCancel.Load())
	assert.Equal(t, 2, p.Boundaries().Len())
}

func TestResyncNowCountsHardReset(t *testing.T) {
	p, _, _ := newTestPlayer(t, rampOpener(testMeta, 0, 0.04), nil)
	require.NoError(t, p.Open(context.Background(), "lecture.mp4"))

	require.NoError(t, p.ResyncNow())
	st := p.Status()
	assert.Equal(t, 1, st.Sync.HardResets)
	assert.Equal(t, Paused, st.State)
	assert.Contains(t, st.String(), "paused 0:00 / 0:10")
}
