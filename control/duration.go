package control

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDuration accepts either a Go duration string ("90s", "2m") or a bare
// number, read as seconds. Negative durations are rejected.
func ParseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		d := time.Duration(secs * float64(time.Second))
		if d < 0 {
			return 0, fmt.Errorf("duration must not be negative: %q", s)
		}
		return d, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration must not be negative: %q", s)
	}
	return d, nil
}
