package graceful

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Laisky/zap"

	"github.com/nrbedrock/bedrock-observability/common/logger"
)

// Lifecycle manager for in-flight Bedrock invocations and telemetry flushes.

var (
	inFlightInvocations int64
	draining            atomic.Bool

	wg sync.WaitGroup
)

// BeginInvocation increments the in-flight invocation counter and returns a function
// to decrement it. Streaming invocations hold it until the stream is finalized.
func BeginInvocation() func() {
	atomic.AddInt64(&inFlightInvocations, 1)
	var once sync.Once
	return func() {
		once.Do(func() {
			atomic.AddInt64(&inFlightInvocations, -1)
		})
	}
}

// InFlight returns the number of invocations not yet finished.
func InFlight() int64 {
	return atomic.LoadInt64(&inFlightInvocations)
}

// GoCritical runs fn in a tracked goroutine that Drain waits for.
// Use for work that must not be lost at exit, like a final telemetry flush.
func GoCritical(ctx context.Context, name string, fn func(context.Context)) {
	wg.Go(func() {
		start := time.Now()
		logger.Logger.Debug("critical task start", zap.String("name", name))
		fn(ctx)
		logger.Logger.Debug("critical task done", zap.String("name", name), zap.Duration("elapsed", time.Since(start)))
	})
}

// Drain waits for all tracked critical tasks and in-flight invocations,
// bounded by the ctx deadline.
func Drain(ctx context.Context) error {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Logger.Error("graceful drain timeout",
				zap.Int64("in_flight_invocations", InFlight()))
			return ctx.Err()
		case <-done:
			for {
				n := InFlight()
				if n == 0 {
					logger.Logger.Info("graceful drain complete")
					return nil
				}

				select {
				case <-ctx.Done():
					logger.Logger.Error("graceful drain timeout (invocations not zero)", zap.Int64("in_flight_invocations", n))
					return ctx.Err()
				case <-ticker.C:
				}
			}
		case <-ticker.C:
			logger.Logger.Debug("draining...",
				zap.Int64("in_flight_invocations", InFlight()))
		}
	}
}

// SetDraining flips the draining flag to true.
func SetDraining() { draining.Store(true) }

// IsDraining reports whether shutdown has begun.
func IsDraining() bool { return draining.Load() }
