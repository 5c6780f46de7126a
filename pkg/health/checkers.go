package health

import (
	"context"
	"runtime"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports unhealthy when the goroutine count exceeds the
// threshold. Useful as a liveness check to catch goroutine leaks.
func GoroutineCountCheck(threshold int) CheckFunc {
	return func(_ context.Context) error {
		count := runtime.NumGoroutine()
		if count > threshold {
			return errors.Errorf("goroutine count %d exceeds threshold %d", count, threshold)
		}
		return nil
	}
}

// Pinger covers pgxpool.Pool and anything else that can be pinged.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingCheck reports unhealthy when the dependency does not answer a ping
// within the check timeout. Useful as a readiness check for the database.
func PingCheck(p Pinger) CheckFunc {
	return func(ctx context.Context) error {
		if err := p.Ping(ctx); err != nil {
			return errors.Wrap(err, "ping")
		}
		return nil
	}
}

// uptimeEpoch anchors UptimeCheck.
var uptimeEpoch = time.Now()

// UptimeCheck reports unhealthy until the process has been up for warmup.
// Useful to keep a freshly restarted instance out of rotation while caches
// fill.
func UptimeCheck(warmup time.Duration) CheckFunc {
	return func(_ context.Context) error {
		if up := time.Since(uptimeEpoch); up < warmup {
			return errors.Errorf("warming up, %s elapsed of %s", up, warmup)
		}
		return nil
	}
}
