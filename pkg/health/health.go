// Package health provides Kubernetes-style liveness and readiness probes.
//
// Registered checks run periodically in background goroutines. Thresholds
// keep the probes from flapping: a check must fail consecutively several
// times before it is reported unhealthy, and recover before it is reported
// healthy again.
package health

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/jx"
)

// Kind distinguishes liveness checks from readiness checks.
type Kind int

const (
	// Liveness checks detect a wedged process: goroutine leaks, deadlocks.
	Liveness Kind = iota
	// Readiness checks gate traffic: database connectivity, warmup.
	Readiness
)

// CheckFunc probes one component. It returns nil when the component is
// healthy.
type CheckFunc func(ctx context.Context) error

// check holds configuration and runtime state for a single probe.
//
// run() executes on exactly one goroutine per check, so the consecutive
// counters need no synchronization. The healthy flag and last error are read
// by HTTP handlers from arbitrary goroutines and use atomics.
type check struct {
	name    string
	kind    Kind
	timeout time.Duration
	fn      CheckFunc

	failureThreshold int
	successThreshold int

	healthy atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails int
	consecutiveOK    int
}

func (c *check) run(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.fn(checkCtx)
	c.lastErr.Store(&err)

	if err != nil {
		c.consecutiveOK = 0
		c.consecutiveFails++
		if c.consecutiveFails >= c.failureThreshold {
			c.healthy.Store(false)
		}
		return
	}
	c.consecutiveFails = 0
	c.consecutiveOK++
	if c.consecutiveOK >= c.successThreshold {
		c.healthy.Store(true)
	}
}

func (c *check) failure() (string, bool) {
	if c.healthy.Load() {
		return "", false
	}
	if p := c.lastErr.Load(); p != nil && *p != nil {
		return (*p).Error(), true
	}
	return "check is unhealthy", true
}

// Health manages the probe set for a service.
type Health struct {
	ready atomic.Bool

	// mu protects checks and cancel. Registration happens before Start;
	// HTTP handlers snapshot the slice under RLock.
	mu     sync.RWMutex
	checks []*check
	cancel context.CancelFunc
}

// New creates a Health instance. The service starts not ready; call
// SetReady(true) once initialization completes.
func New() *Health {
	return &Health{}
}

// AddCheck registers a probe of the given kind. Checks start out healthy.
func (h *Health) AddCheck(kind Kind, name string, timeout time.Duration, fn CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()

	c := &check{
		name:             name,
		kind:             kind,
		timeout:          timeout,
		fn:               fn,
		failureThreshold: 3,
		successThreshold: 1,
	}
	c.healthy.Store(true)
	h.checks = append(h.checks, c)
}

// Start launches one background goroutine per registered check, each running
// at the given interval until Stop is called or ctx is cancelled.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	checks := make([]*check, len(h.checks))
	copy(checks, h.checks)
	h.mu.Unlock()

	for _, c := range checks {
		go func(c *check) {
			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			c.run(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.run(ctx)
				}
			}
		}(c)
	}
}

// Stop cancels the background check goroutines. Safe to call repeatedly.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// SetReady flips the manual readiness gate. Call with false during graceful
// shutdown to drain traffic.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should accept traffic: manually marked
// ready and all readiness checks passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}
	for _, c := range h.snapshot(Readiness) {
		if _, failed := c.failure(); failed {
			return false
		}
	}
	return true
}

func (h *Health) snapshot(kind Kind) []*check {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]*check, 0, len(h.checks))
	for _, c := range h.checks {
		if c.kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// LiveEndpoint serves the /livez probe: 200 when all liveness checks pass,
// 503 with the failing checks otherwise.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	writeProbe(w, collectFailures(h.snapshot(Liveness)))
}

// ReadyEndpoint serves the /readyz probe: 200 when the service was marked
// ready and all readiness checks pass, 503 with details otherwise.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	failures := collectFailures(h.snapshot(Readiness))
	if !h.ready.Load() {
		failures = append(failures, probeFailure{name: "_readiness", reason: "service is not ready"})
	}
	writeProbe(w, failures)
}

type probeFailure struct {
	name   string
	reason string
}

func collectFailures(checks []*check) []probeFailure {
	var failures []probeFailure
	for _, c := range checks {
		if reason, failed := c.failure(); failed {
			failures = append(failures, probeFailure{name: c.name, reason: reason})
		}
	}
	return failures
}

func writeProbe(w http.ResponseWriter, failures []probeFailure) {
	w.Header().Set("Content-Type", "application/json")

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("status")
	if len(failures) == 0 {
		e.Str("ok")
	} else {
		e.Str("unhealthy")
		e.FieldStart("checks")
		e.ObjStart()
		for _, f := range failures {
			e.FieldStart(f.name)
			e.Str(f.reason)
		}
		e.ObjEnd()
	}
	e.ObjEnd()

	status := http.StatusOK
	if len(failures) > 0 {
		status = http.StatusServiceUnavailable
	}
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}
