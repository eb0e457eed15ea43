package helper

import (
	"time"
)

// ElapsedSeconds returns the time since start in fractional seconds.
func ElapsedSeconds(start time.Time) float64 {
	return time.Since(start).Seconds()
}
