package seek

import (
	"errors"
	"math"
	"time"

	"github.com/kikiluvv/slidesync/internal/decode"
)

// Verification is the outcome of checking a fresh session after a seek.
type Verification struct {
	Verified bool
	// Actual is the last position observed; HaveActual is false when the
	// decoder never reported one.
	Actual     float64
	HaveActual bool
	Attempts   int
}

// verifier pulls frames until enough consecutive ones land near the target.
type verifier struct {
	cfg   Config
	sleep func(time.Duration)
	// show receives the first frame pulled and the frame that completes
	// verification.
	show func(decode.Frame)
}

func (v verifier) run(s decode.Session, target float64) Verification {
	var (
		res    Verification
		streak int
		shown  bool
	)
	tol := v.cfg.Tolerance.Seconds()

	for attempt := 0; attempt < v.cfg.MaxAttempts; attempt++ {
		res.Attempts = attempt + 1

		frame, err := s.PullFrame()
		if errors.Is(err, decode.ErrEndOfStream) {
			break
		}
		if err != nil {
			v.sleep(v.cfg.AttemptDelay)
			continue
		}

		if pos, err := s.Position(); err == nil {
			res.Actual = pos
			res.HaveActual = true
			if math.Abs(pos-target) <= tol {
				streak++
				if streak >= v.cfg.RequiredSuccesses {
					v.show(frame)
					res.Verified = true
					return res
				}
			} else {
				streak = 0
			}
		}

		if !shown {
			v.show(frame)
			shown = true
		}
		v.sleep(v.cfg.AttemptDelay)
	}
	return res
}
