// Package env reads typed values from environment variables with defaults.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// String returns the value of name, or defaultValue when it is unset or empty.
func String(name string, defaultValue string) string {
	if v, ok := lookup(name); ok {
		return v
	}
	return defaultValue
}

// Int returns name parsed as an int, or defaultValue when unset or unparsable.
func Int(name string, defaultValue int) int {
	v, ok := lookup(name)
	if !ok {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

// Bool returns name parsed with strconv.ParseBool, or defaultValue.
func Bool(name string, defaultValue bool) bool {
	v, ok := lookup(name)
	if !ok {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

// Float64 returns name parsed as a float64, or defaultValue.
func Float64(name string, defaultValue float64) float64 {
	v, ok := lookup(name)
	if !ok {
		return defaultValue
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue
	}
	return f
}

// Duration accepts either a Go duration string ("5s") or a bare number of seconds.
func Duration(name string, defaultValue time.Duration) time.Duration {
	v, ok := lookup(name)
	if !ok {
		return defaultValue
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}

func lookup(name string) (string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
