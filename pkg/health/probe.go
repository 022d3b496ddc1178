package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// Result is the outcome of one probe
type Result struct {
	Healthy bool
	Message string
	Latency time.Duration
}

func failed(start time.Time, format string, args ...any) Result {
	return Result{Message: fmt.Sprintf(format, args...), Latency: time.Since(start)}
}

// Prober checks one worker on its slot
type Prober interface {
	// Probe performs the check and returns the result
	Probe(ctx context.Context) Result

	// Type returns the kind of check
	Type() types.HealthCheckType

	// Target returns the probed address or url
	Target() string
}

// NewProber builds the prober cfg asks for against the host of slot
func NewProber(cfg ProbeConfig, slot types.SlotID) (Prober, error) {
	if slot.IsEmpty() {
		return nil, fmt.Errorf("no slot to probe")
	}
	switch cfg.Type {
	case types.HealthCheckHTTP:
		return NewHTTPProber(cfg, slot), nil
	case types.HealthCheckTCP:
		return NewTCPProber(cfg, slot), nil
	default:
		return nil, fmt.Errorf("unsupported probe type %q", cfg.Type)
	}
}

// probeAddr is the worker endpoint: the slave host with the role's check port
func probeAddr(slot types.SlotID, port int32) string {
	return net.JoinHostPort(slot.Host(), strconv.Itoa(int(port)))
}

// ProbeConfig is the resolved probing configuration of a checker
type ProbeConfig struct {
	Type     types.HealthCheckType
	Port     int32
	Path     string
	Interval time.Duration
	Timeout  time.Duration

	// Retries is the number of consecutive failures before a worker that
	// once passed is reported dead
	Retries int
}

// DefaultProbeConfig returns the defaults for unset fields
func DefaultProbeConfig() ProbeConfig {
	return ProbeConfig{
		Type:     types.HealthCheckDefault,
		Path:     "/",
		Interval: 3 * time.Second,
		Timeout:  2 * time.Second,
		Retries:  3,
	}
}

// ResolveProbeConfig applies cfg over the defaults
func ResolveProbeConfig(cfg types.HealthCheckerConfig) ProbeConfig {
	out := DefaultProbeConfig()
	if cfg.Type != "" {
		out.Type = cfg.Type
	}
	out.Port = cfg.Port
	if cfg.Path != "" {
		out.Path = cfg.Path
	}
	if cfg.IntervalSeconds > 0 {
		out.Interval = time.Duration(cfg.IntervalSeconds) * time.Second
	}
	if cfg.TimeoutSeconds > 0 {
		out.Timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if cfg.Retries > 0 {
		out.Retries = int(cfg.Retries)
	}
	return out
}

// probeStatus tracks consecutive results of one worker's probe
type probeStatus struct {
	checks               int
	consecutiveFailures  int
	consecutiveSuccesses int
	everPassed           bool
	lastResult           Result
}

func (s *probeStatus) update(result Result) {
	s.checks++
	s.lastResult = result
	if result.Healthy {
		s.consecutiveSuccesses++
		s.consecutiveFailures = 0
		s.everPassed = true
		return
	}
	s.consecutiveFailures++
	s.consecutiveSuccesses = 0
}

// info maps the probe history to a health verdict. A worker that never
// passed is still starting and only reported not ready.
func (s *probeStatus) info(retries int) types.HealthInfo {
	switch {
	case s.checks == 0:
		return types.HealthInfo{HealthStatus: types.HealthUnknown, WorkerStatus: types.WorkerUnknown}
	case s.consecutiveFailures == 0:
		return types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerReady}
	case !s.everPassed:
		return types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerNotReady}
	case s.consecutiveFailures >= retries:
		return types.HealthInfo{HealthStatus: types.HealthDead, WorkerStatus: types.WorkerNotReady}
	default:
		return types.HealthInfo{HealthStatus: types.HealthAlive, WorkerStatus: types.WorkerReady}
	}
}
