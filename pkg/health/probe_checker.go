package health

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/cuemby/rolekeeper/pkg/types"
)

const maxConcurrentProbes = 16

type probeTarget struct {
	slot    types.SlotID
	version string
	prober  Prober
	status  probeStatus
}

// ProbeChecker probes the workers of one role over HTTP or TCP in the
// background. Workers whose process is not running are not probed.
type ProbeChecker struct {
	mu      sync.Mutex
	id      string
	cfg     ProbeConfig
	logger  zerolog.Logger
	targets map[string]*probeTarget
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewProbeChecker creates a stopped checker; Start begins probing
func NewProbeChecker(id string, cfg ProbeConfig, logger zerolog.Logger) *ProbeChecker {
	return &ProbeChecker{
		id:      id,
		cfg:     cfg,
		logger:  logger.With().Str("component", "health").Str("checker", id).Logger(),
		targets: make(map[string]*probeTarget),
	}
}

// Start runs the probe loop until Stop
func (c *ProbeChecker) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	go c.run(c.stopCh, c.doneCh)
}

// Stop ends the probe loop and waits for it
func (c *ProbeChecker) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	close(c.stopCh)
	done := c.doneCh
	c.mu.Unlock()
	<-done
}

func (c *ProbeChecker) run(stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Interval)
			c.ProbeAll(ctx)
			cancel()
		case <-stopCh:
			return
		}
	}
}

// IsWorking reports whether the probe loop runs
func (c *ProbeChecker) IsWorking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// Update replaces the probed workers. A worker keeps its history while its
// address and version are unchanged.
func (c *ProbeChecker) Update(workers []types.WorkerSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make(map[string]*probeTarget, len(workers))
	for _, w := range workers {
		if !w.Assigned || !w.ProcessRunning || w.SlotID.IsEmpty() {
			continue
		}
		if t, ok := c.targets[w.NodeID]; ok && t.slot == w.SlotID && t.version == w.Version {
			next[w.NodeID] = t
			continue
		}
		prober, err := NewProber(c.cfg, w.SlotID)
		if err != nil {
			c.logger.Error().Err(err).Str("worker", w.NodeID).Msg("Cannot probe worker")
			continue
		}
		next[w.NodeID] = &probeTarget{slot: w.SlotID, version: w.Version, prober: prober}
	}
	c.targets = next
}

// ProbeAll probes every worker once
func (c *ProbeChecker) ProbeAll(ctx context.Context) {
	c.mu.Lock()
	ids := make([]string, 0, len(c.targets))
	probers := make([]Prober, 0, len(c.targets))
	for id, t := range c.targets {
		ids = append(ids, id)
		probers = append(probers, t.prober)
	}
	c.mu.Unlock()

	results := make([]Result, len(probers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentProbes)
	for i, p := range probers {
		g.Go(func() error {
			results[i] = p.Probe(gctx)
			return nil
		})
	}
	_ = g.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, id := range ids {
		t, ok := c.targets[id]
		if !ok || t.prober != probers[i] {
			continue
		}
		before := t.status.info(c.cfg.Retries)
		t.status.update(results[i])
		after := t.status.info(c.cfg.Retries)
		if before.HealthStatus != after.HealthStatus || before.WorkerStatus != after.WorkerStatus {
			c.logger.Info().
				Str("worker", id).
				Str("target", t.prober.Target()).
				Dur("latency", results[i].Latency).
				Str("health", string(after.HealthStatus)).
				Str("status", string(after.WorkerStatus)).
				Str("message", results[i].Message).
				Msg("Worker health changed")
		}
	}
}

// HealthInfos returns the verdict of every probed worker, tagged with the
// version it was probed at
func (c *ProbeChecker) HealthInfos() map[string]types.HealthInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]types.HealthInfo, len(c.targets))
	for id, t := range c.targets {
		info := t.status.info(c.cfg.Retries)
		info.Version = t.version
		out[id] = info
	}
	return out
}

// ProbeManager hands out ProbeCheckers, or MemoryCheckers for roles that
// use the default check
type ProbeManager struct {
	mu       sync.Mutex
	logger   zerolog.Logger
	probes   map[string]*ProbeChecker
	fallback *MemoryManager
}

// NewProbeManager creates a manager with no checkers
func NewProbeManager(logger zerolog.Logger) *ProbeManager {
	return &ProbeManager{
		logger:   logger,
		probes:   make(map[string]*ProbeChecker),
		fallback: NewMemoryManager(),
	}
}

// GetHealthChecker returns the checker of id, restarting it when cfg changed
func (m *ProbeManager) GetHealthChecker(id string, cfg types.HealthCheckerConfig) Checker {
	pc := ResolveProbeConfig(cfg)

	m.mu.Lock()
	defer m.mu.Unlock()
	if pc.Type != types.HealthCheckHTTP && pc.Type != types.HealthCheckTCP {
		if c, ok := m.probes[id]; ok {
			c.Stop()
			delete(m.probes, id)
		}
		return m.fallback.GetHealthChecker(id, cfg)
	}
	if c, ok := m.probes[id]; ok {
		if c.cfg == pc {
			return c
		}
		c.Stop()
	}
	c := NewProbeChecker(id, pc, m.logger)
	c.Start()
	m.probes[id] = c
	return c
}

// ReleaseHealthChecker stops and forgets the checker of id
func (m *ProbeManager) ReleaseHealthChecker(id string) {
	m.mu.Lock()
	c, ok := m.probes[id]
	delete(m.probes, id)
	m.mu.Unlock()
	if ok {
		c.Stop()
	}
	m.fallback.ReleaseHealthChecker(id)
}

// Stop stops every checker
func (m *ProbeManager) Stop() {
	m.mu.Lock()
	probes := m.probes
	m.probes = make(map[string]*ProbeChecker)
	m.mu.Unlock()
	for _, c := range probes {
		c.Stop()
	}
}
