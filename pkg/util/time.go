package util

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatSeconds renders a position as an ffmpeg HH:MM:SS.mmm timestamp.
// Negative and NaN positions render as zero.
func FormatSeconds(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	ms := int64(math.Round(seconds * 1000))
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := float64(ms%60_000) / 1000
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}

// ParseClock parses SS, MM:SS or HH:MM:SS (fractional seconds allowed)
// into seconds. Fields after the first must be below 60.
func ParseClock(s string) (float64, error) {
	fields := strings.Split(strings.TrimSpace(s), ":")
	if len(fields) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", s)
	}

	var total float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil || v < 0 || math.IsInf(v, 0) || math.IsNaN(v) {
			return 0, fmt.Errorf("invalid timestamp %q", s)
		}
		if i > 0 && v >= 60 {
			return 0, fmt.Errorf("invalid timestamp %q: field %q out of range", s, f)
		}
		total = total*60 + v
	}
	return total, nil
}

// FormatClock renders seconds as m:ss, or h:mm:ss past the hour. Negative
// values render as 0:00.
func FormatClock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ParseFrameRate parses an ffprobe rate, either a ratio ("30000/1001") or a
// plain number. Unparseable or non-positive rates yield 0.
func ParseFrameRate(s string) float64 {
	num, den, ratio := strings.Cut(strings.TrimSpace(s), "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	d := 1.0
	if ratio {
		if d, err = strconv.ParseFloat(den, 64); err != nil || d == 0 {
			return 0
		}
	}
	if r := n / d; r > 0 && !math.IsInf(r, 0) {
		return r
	}
	return 0
}
