// Package health backs the service's /livez and /readyz endpoints.
//
// Each registered check runs on its own ticker goroutine. Transitions are
// threshold-gated the way Kubernetes probes are, so a single blip never flips
// the reported state: a probe goes down only after failThreshold consecutive
// failures and comes back after passThreshold consecutive passes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// CheckFunc is a health check. It returns nil when the checked component is
// healthy, or an error describing what is wrong.
type CheckFunc func(ctx context.Context) error

const (
	defaultFailThreshold = 3
	defaultPassThreshold = 1
)

// probe is one registered check plus its observed state.
//
// observe is only ever called from the probe's own ticker goroutine, so the
// consecutive counters need no locking. up and lastErr are read by HTTP
// handlers from arbitrary goroutines and use atomics.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	failThreshold int
	passThreshold int

	up      atomic.Bool
	lastErr atomic.Pointer[error]

	consecutiveFails  int
	consecutivePasses int
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{
		name:          name,
		timeout:       timeout,
		check:         check,
		failThreshold: defaultFailThreshold,
		passThreshold: defaultPassThreshold,
	}
	p.up.Store(true) // assume healthy until observed otherwise
	return p
}

// observe runs the check once and advances the threshold state machine.
// Must only be called from the probe's own goroutine.
func (p *probe) observe(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(checkCtx)
	p.lastErr.Store(&err)

	if err != nil {
		p.consecutivePasses = 0
		p.consecutiveFails++
		if p.consecutiveFails >= p.failThreshold {
			p.up.Store(false)
		}
		return
	}

	p.consecutiveFails = 0
	p.consecutivePasses++
	if p.consecutivePasses >= p.passThreshold {
		p.up.Store(true)
	}
}

// loop re-observes the probe at interval until ctx is cancelled. The first
// observation happens immediately.
func (p *probe) loop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.observe(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.observe(ctx)
		}
	}
}

func (p *probe) healthy() bool {
	return p.up.Load()
}

func (p *probe) failure() error {
	if ep := p.lastErr.Load(); ep != nil {
		return *ep
	}
	return nil
}

// Health manages the liveness and readiness probes for a service.
type Health struct {
	ready atomic.Bool

	// mu guards the probe slices and cancel. Registration happens before
	// Start; HTTP handlers only take a read lock to snapshot the slices.
	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New creates a Health instance. The service starts not-ready; call
// SetReady(true) once initialization completes.
func New() *Health {
	return &Health{}
}

// AddLivenessCheck registers a liveness check: is the process alive and
// functioning at all (goroutine counts, GC pauses, deadlocks).
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a readiness check: can the service take traffic
// right now (database connectivity and the like).
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches one goroutine per registered probe, each re-running its
// check at the given interval. Register all checks before calling Start.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	for _, p := range probes {
		go p.loop(ctx, interval)
	}
}

// SetReady sets the manual readiness gate: true once initialization is done,
// false during graceful shutdown so load balancers drain the instance.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the service should receive traffic: the manual
// gate is open and every readiness probe is passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy() {
			return false
		}
	}
	return true
}

// Stop cancels all probe goroutines. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

// probeReport is the JSON body served by the health endpoints.
type probeReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while all liveness probes
// pass, otherwise 503 with the failing checks listed.
func (h *Health) LiveEndpoint(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.liveness))
	copy(probes, h.liveness)
	h.mu.RUnlock()

	writeReport(w, failing(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, _ *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.readiness))
	copy(probes, h.readiness)
	h.mu.RUnlock()

	failures := failing(probes)
	if !ready {
		failures["_readiness"] = "service is not ready"
	}
	writeReport(w, failures)
}

// failing maps probe name to error message for every probe currently down,
// using the stored last error rather than re-running checks on request.
func failing(probes []*probe) map[string]string {
	failures := make(map[string]string)
	for _, p := range probes {
		if p.healthy() {
			continue
		}
		if err := p.failure(); err != nil {
			failures[p.name] = err.Error()
		} else {
			failures[p.name] = "check is unhealthy"
		}
	}
	return failures
}

func writeReport(w http.ResponseWriter, failures map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	report := probeReport{Status: "ok"}
	status := http.StatusOK
	if len(failures) > 0 {
		report.Status = "unhealthy"
		report.Checks = failures
		status = http.StatusServiceUnavailable
	}

	w.WriteHeader(status)
	// Best effort: the status is already written, so an encode error can
	// only mean the client went away.
	_ = json.NewEncoder(w).Encode(report)
}
