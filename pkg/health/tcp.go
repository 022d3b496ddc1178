package health

import (
	"context"
	"net"
	"time"

	"github.com/cuemby/rolekeeper/pkg/types"
)

// TCPProber passes when the worker's port on its slot host accepts a connection
type TCPProber struct {
	slot   types.SlotID
	addr   string
	dialer net.Dialer
}

// NewTCPProber probes <slot host>:<cfg.Port>
func NewTCPProber(cfg ProbeConfig, slot types.SlotID) *TCPProber {
	return &TCPProber{
		slot:   slot,
		addr:   probeAddr(slot, cfg.Port),
		dialer: net.Dialer{Timeout: cfg.Timeout},
	}
}

// Probe runs one check against the slot
func (t *TCPProber) Probe(ctx context.Context) Result {
	start := time.Now()
	conn, err := t.dialer.DialContext(ctx, "tcp", t.addr)
	if err != nil {
		return failed(start, "slot %s: %v", t.slot, err)
	}
	_ = conn.Close()
	return Result{Healthy: true, Message: "connected", Latency: time.Since(start)}
}

// Type returns the check kind
func (t *TCPProber) Type() types.HealthCheckType {
	return types.HealthCheckTCP
}

// Target returns what is probed
func (t *TCPProber) Target() string {
	return t.addr
}
