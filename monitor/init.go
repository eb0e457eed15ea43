package monitor

import (
	"context"
	"sync"

	"github.com/Laisky/errors/v2"
)

var (
	defaultMu      sync.Mutex
	defaultMonitor *Monitor
)

// Initialization creates and starts the process-wide Monitor. Once it
// succeeded, later calls return the same Monitor and ignore opts.
func Initialization(ctx context.Context, opts Options) (*Monitor, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultMonitor != nil {
		return defaultMonitor, nil
	}

	m, err := New(opts)
	if err != nil {
		return nil, errors.Wrap(err, "new monitor")
	}
	if err := m.Start(ctx); err != nil {
		return nil, errors.Wrap(err, "start monitor")
	}

	defaultMonitor = m
	return m, nil
}

// Default returns the Monitor created by Initialization, or nil.
func Default() *Monitor {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultMonitor
}
