package metrics

import (
	"time"
)

// RoleStats is a point-in-time summary of one role
type RoleStats struct {
	Name       string
	Replicas   int
	Available  int
	Completed  int
	Releasing  int
	Recovering int
	IsComplete bool
}

// StatsSource supplies role summaries to the collector
type StatsSource interface {
	RoleStats() []RoleStats
}

// Collector periodically copies role summaries into the role gauges
type Collector struct {
	source   StatsSource
	interval time.Duration
	known    map[string]bool
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(source StatsSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		known:    make(map[string]bool),
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		c.Collect()

		for {
			select {
			case <-ticker.C:
				c.Collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

// Collect samples the source once
func (c *Collector) Collect() {
	stats := c.source.RoleStats()
	RolesTotal.Set(float64(len(stats)))

	seen := make(map[string]bool, len(stats))
	for _, s := range stats {
		seen[s.Name] = true
		RoleReplicas.WithLabelValues(s.Name, "total").Set(float64(s.Replicas))
		RoleReplicas.WithLabelValues(s.Name, "available").Set(float64(s.Available))
		RoleReplicas.WithLabelValues(s.Name, "completed").Set(float64(s.Completed))
		RoleReplicas.WithLabelValues(s.Name, "releasing").Set(float64(s.Releasing))
		RoleReplicas.WithLabelValues(s.Name, "recovering").Set(float64(s.Recovering))
		if s.IsComplete {
			RoleCompleted.WithLabelValues(s.Name).Set(1)
		} else {
			RoleCompleted.WithLabelValues(s.Name).Set(0)
		}
	}

	// Drop series of roles that went away
	for name := range c.known {
		if !seen[name] {
			RoleReplicas.DeletePartialMatch(map[string]string{"role": name})
			RoleCompleted.DeleteLabelValues(name)
		}
	}
	c.known = seen
}
