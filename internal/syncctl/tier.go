package syncctl

import (
	"fmt"
	"math"
	"time"
)

// Tier is the severity bucket of a measured A/V offset. Tiers are ordered.
type Tier int

const (
	Normal Tier = iota
	Micro
	Soft
	Hard
)

func (t Tier) String() string {
	switch t {
	case Normal:
		return "Normal"
	case Micro:
		return "Micro"
	case Soft:
		return "Soft"
	case Hard:
		return "Hard"
	default:
		return fmt.Sprintf("Tier(%d)", int(t))
	}
}

// Label is the status-line text shown for a tier.
func (t Tier) Label() string {
	switch t {
	case Normal:
		return "Sync: Normal"
	case Micro:
		return "Sync: Minor Offset"
	case Soft:
		return "Sync: Major Offset"
	default:
		return "Sync: Critical Offset"
	}
}

// Thresholds are the three ascending bounds separating the tiers.
type Thresholds struct {
	Low    time.Duration
	Medium time.Duration
	Hard   time.Duration
}

// DefaultThresholds returns 100 ms / 200 ms / 500 ms.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Low:    100 * time.Millisecond,
		Medium: 200 * time.Millisecond,
		Hard:   500 * time.Millisecond,
	}
}

// Validate checks that the bounds are positive and strictly ascending.
func (th Thresholds) Validate() error {
	if th.Low <= 0 {
		return fmt.Errorf("low threshold must be positive, got %v", th.Low)
	}
	if th.Medium <= th.Low {
		return fmt.Errorf("medium threshold %v must exceed low threshold %v", th.Medium, th.Low)
	}
	if th.Hard <= th.Medium {
		return fmt.Errorf("hard threshold %v must exceed medium threshold %v", th.Hard, th.Medium)
	}
	return nil
}

// Classify buckets an offset in seconds. Only its magnitude matters.
func Classify(offset float64, th Thresholds) Tier {
	abs := math.Abs(offset)
	switch {
	case abs > th.Hard.Seconds():
		return Hard
	case abs > th.Medium.Seconds():
		return Soft
	case abs > th.Low.Seconds():
		return Micro
	default:
		return Normal
	}
}
