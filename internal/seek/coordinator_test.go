package seek

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kikiluvv/slidesync/internal/decode"
	"github.com/kikiluvv/slidesync/internal/decode/decodetest"
	"github.com/kikiluvv/slidesync/internal/events"
	"github.com/kikiluvv/slidesync/internal/pacer"
)

type recorder struct {
	mu      sync.Mutex
	calls   []string
	anchors []float64
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	r.calls = append(r.calls, s)
	r.mu.Unlock()
}

func (r *recorder) Halt()   { r.add("halt") }
func (r *recorder) Resume() { r.add("resume") }

func (r *recorder) Reanchor(pos float64) {
	r.mu.Lock()
	r.anchors = append(r.anchors, pos)
	r.calls = append(r.calls, "anchor")
	r.mu.Unlock()
}

type fixture struct {
	guard  *decode.Guard
	pacer  *pacer.Pacer[decode.Frame]
	rec    *recorder
	bus    *events.Bus
	opened []*decodetest.Session
	coord  *Coordinator
	old    *decodetest.Session
}

// newFixture opens sessions whose frames after a seek carry the given PTS.
func newFixture(t *testing.T, cfg Config, afterSeek ...float64) *fixture {
	t.Helper()
	f := &fixture{
		guard: &decode.Guard{},
		pacer: pacer.New[decode.Frame](3),
		rec:   &recorder{},
		bus:   events.NewBus(16),
	}
	f.old = decodetest.NewSession(decode.Metadata{Duration: 600}, 10, 11)
	f.guard.Swap(f.old)

	open := func(context.Context) (decode.Session, error) {
		s := decodetest.NewSession(decode.Metadata{Duration: 600})
		s.OnSeek = func(float64) []decode.Frame { return decodetest.FramesAt(afterSeek...) }
		f.opened = append(f.opened, s)
		return s, nil
	}
	f.coord = NewCoordinator(zerolog.Nop(), cfg, f.guard, open, f.pacer, f.rec, f.rec, f.bus)
	f.coord.sleep = func(time.Duration) {}
	return f
}

func TestSeekVerifiesAndResumes(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 118, 119.5, 120.1, 121)

	res, err := f.coord.Seek(context.Background(), Request{Target: 120, Resume: true})
	require.NoError(t, err)

	assert.True(t, f.old.Closed(), "old session must be torn down")
	require.Len(t, f.opened, 1)
	assert.Equal(t, []float64{120}, f.opened[0].Seeks())

	assert.True(t, res.Verification.Verified)
	assert.Equal(t, 3, res.Verification.Attempts)
	assert.Equal(t, 120.1, res.Actual)
	assert.Equal(t, Resumed, res.State)
	assert.Equal(t, Resumed, f.coord.State())

	assert.Equal(t, []float64{120.1}, f.rec.anchors)
	assert.Equal(t, []string{"halt", "anchor", "resume"}, f.rec.calls)

	ev := <-f.bus.Events()
	assert.Equal(t, events.SeekCompleted, ev.Type)
	assert.True(t, ev.Payload.(events.Seek).Verified)
}

func TestSeekShowsFirstFrameImmediately(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 50, 118, 119.5, 120.1)

	_, err := f.coord.Seek(context.Background(), Request{Target: 120})
	require.NoError(t, err)

	m := f.pacer.Metrics()
	assert.Equal(t, uint64(2), m.Pushed, "first frame plus the verifying frame")
	last, ok := f.pacer.TryPull()
	require.True(t, ok)
	assert.Equal(t, 120.1, last.PTS)
}

func TestMismatchResetsStreak(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 10
	f := newFixture(t, cfg, 119, 120, 150, 120.2, 120.4, 120.6)

	res, err := f.coord.Seek(context.Background(), Request{Target: 120})
	require.NoError(t, err)

	assert.True(t, res.Verification.Verified)
	assert.Equal(t, 6, res.Verification.Attempts)
	assert.Equal(t, 120.6, res.Actual)
}

func TestExhaustionIsBestEffort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxAttempts = 4
	f := newFixture(t, cfg, 90, 91, 92, 93, 94)

	res, err := f.coord.Seek(context.Background(), Request{Target: 120, Resume: true})
	require.NoError(t, err)

	assert.False(t, res.Verification.Verified)
	assert.Equal(t, 4, res.Verification.Attempts)
	assert.Equal(t, 93.0, res.Actual, "last observed position is used")
	assert.Equal(t, []float64{93}, f.rec.anchors)
	assert.Equal(t, Resumed, res.State)
}

func TestEndOfStreamStopsVerification(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 599)

	res, err := f.coord.Seek(context.Background(), Request{Target: 650})
	require.NoError(t, err)

	assert.False(t, res.Verification.Verified)
	assert.Equal(t, 2, res.Verification.Attempts)
	assert.Equal(t, 599.0, res.Actual)
}

func TestPausedSeekStillReanchors(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 30.04, 30.08)

	res, err := f.coord.Seek(context.Background(), Request{Target: 30, Resume: false})
	require.NoError(t, err)

	assert.Equal(t, Paused, res.State)
	assert.Equal(t, []float64{30.08}, f.rec.anchors)
	assert.NotContains(t, f.rec.calls, "resume")
}

func TestOpenFailureReportsError(t *testing.T) {
	f := newFixture(t, DefaultConfig())
	f.coord.open = func(context.Context) (decode.Session, error) {
		return nil, errors.New("boom")
	}

	res, err := f.coord.Seek(context.Background(), Request{Target: 42, Resume: true})
	require.Error(t, err)
	assert.Equal(t, Paused, res.State)
	assert.Equal(t, []float64{42}, f.rec.anchors)
	assert.False(t, f.guard.Active())
}

func TestConcurrentSeekRejected(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 10)

	require.NoError(t, f.coord.Submit(Request{Target: 10}))
	assert.True(t, f.coord.InFlight())
	assert.ErrorIs(t, f.coord.Submit(Request{Target: 20}), ErrSeekInFlight)

	_, err := f.coord.Seek(context.Background(), Request{Target: 30})
	assert.ErrorIs(t, err, ErrSeekInFlight)
}

func TestWorkerConsumesMailbox(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 60, 60.04, 60.08)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	require.NoError(t, f.coord.Submit(Request{Target: 60, Resume: true}))

	require.Eventually(t, func() bool {
		return f.coord.State() == Resumed
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, f.coord.Submit(Request{Target: 60}))
	require.Eventually(t, func() bool {
		return f.coord.State() == Paused
	}, time.Second, 5*time.Millisecond)
}

func TestStoppedWorkerDropsPendingSeek(t *testing.T) {
	f := newFixture(t, DefaultConfig(), 30, 30.04, 30.08)

	require.NoError(t, f.coord.Submit(Request{Target: 10}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.coord.Run(ctx)

	assert.Equal(t, Idle, f.coord.State())
	assert.Empty(t, f.opened, "the stale request must not run")

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	go f.coord.Run(ctx)

	require.NoError(t, f.coord.Submit(Request{Target: 30}))
	select {
	case ev := <-f.bus.Events():
		require.Equal(t, events.SeekCompleted, ev.Type)
		assert.Equal(t, 30.0, ev.Payload.(events.Seek).Target)
	case <-time.After(time.Second):
		t.Fatal("seek did not complete")
	}
}

func TestVerifierRequiresConsecutiveHits(t *testing.T) {
	s := decodetest.NewSession(decode.Metadata{})
	s.OnSeek = func(float64) []decode.Frame { return decodetest.FramesAt(10, 20, 10, 20, 10) }
	require.NoError(t, s.Seek(10))

	cfg := DefaultConfig()
	cfg.RequiredSuccesses = 2
	cfg.Tolerance = time.Second
	v := verifier{cfg: cfg, sleep: func(time.Duration) {}, show: func(decode.Frame) {}}

	res := v.run(s, 10)
	assert.False(t, res.Verified)
	assert.Equal(t, 6, res.Attempts)
}
